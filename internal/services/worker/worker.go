// Package worker runs the background job-processing pool: it claims jobs
// from the Job Queue, runs the Matcher, and upserts Evidence Store rows
// (§4.3, §4.6).
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
)

// Pool runs N concurrent job processors against the Job Queue.
type Pool struct {
	storage   interfaces.StorageManager
	matcher   interfaces.Matcher
	watchlist interfaces.WatchlistProvider
	logger    *common.Logger
	hub       *JobWSHub

	workerCount        int
	pollInterval       time.Duration
	matcherDeadline    time.Duration
	cleanupEveryNLoops int
	jobRetention       time.Duration
	evidenceRetention  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a job-processing Pool. Non-positive tunables fall back to
// conservative defaults so a zero-value common.ScreeningConfig still runs.
func New(storage interfaces.StorageManager, matcher interfaces.Matcher, watchlist interfaces.WatchlistProvider, logger *common.Logger, cfg common.ScreeningConfig) *Pool {
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 2
	}
	pollSeconds := cfg.WorkerPollSeconds
	if pollSeconds <= 0 {
		pollSeconds = 5
	}
	matcherDeadline := cfg.MatcherDeadlineSeconds
	if matcherDeadline <= 0 {
		matcherDeadline = 30
	}
	cleanupEvery := cfg.CleanupEveryNLoops
	if cleanupEvery <= 0 {
		cleanupEvery = 50
	}
	jobRetentionDays := cfg.JobRetentionDays
	if jobRetentionDays <= 0 {
		jobRetentionDays = 7
	}
	evidenceRetentionMonths := cfg.EvidenceRetentionMonths

	return &Pool{
		storage:            storage,
		matcher:            matcher,
		watchlist:          watchlist,
		logger:             logger,
		hub:                NewJobWSHub(logger),
		workerCount:        workerCount,
		pollInterval:       time.Duration(pollSeconds) * time.Second,
		matcherDeadline:    time.Duration(matcherDeadline) * time.Second,
		cleanupEveryNLoops: cleanupEvery,
		jobRetention:       time.Duration(jobRetentionDays) * 24 * time.Hour,
		evidenceRetention:  time.Duration(evidenceRetentionMonths) * 30 * 24 * time.Hour,
	}
}

// Hub returns the WebSocket hub for external handler registration.
func (p *Pool) Hub() *JobWSHub {
	return p.hub
}

// safeGo launches a goroutine with panic recovery and logging.
func (p *Pool) safeGo(name string, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in worker pool goroutine")
			}
		}()
		fn()
	}()
}

// Start recovers orphaned in-flight jobs and launches the processor pool and
// WebSocket hub. Safe to call multiple times — stops any existing pool first.
func (p *Pool) Start() {
	if p.cancel != nil {
		p.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	if count, err := p.storage.JobQueueStore().ResetRunningJobs(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to reset orphaned running jobs")
	} else if count > 0 {
		p.logger.Info().Int("count", count).Msg("Reset orphaned running jobs to pending")
	}

	p.safeGo("websocket-hub", func() { p.hub.Run() })

	for i := 0; i < p.workerCount; i++ {
		name := fmt.Sprintf("processor-%d", i)
		p.safeGo(name, func() { p.processLoop(ctx) })
	}

	p.logger.Info().
		Int("worker_count", p.workerCount).
		Dur("poll_interval", p.pollInterval).
		Msg("Worker pool started")
}

// Stop cancels all loops and waits for completion.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.hub.Stop()
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

func (p *Pool) processLoop(ctx context.Context) {
	loops := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.storage.JobQueueStore().ClaimOne(ctx)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Processor: claim error")
			if !sleepOrDone(ctx, p.pollInterval) {
				return
			}
			continue
		}
		if job == nil {
			loops++
			if p.cleanupEveryNLoops > 0 && loops%p.cleanupEveryNLoops == 0 {
				p.runRetentionSweep(ctx)
			}
			if !sleepOrDone(ctx, p.pollInterval) {
				return
			}
			continue
		}

		p.hub.Broadcast(models.JobEvent{Type: "job_started", Job: job, Timestamp: time.Now(), QueueSize: 0})

		start := time.Now()
		execErr := p.execute(ctx, job)
		duration := time.Since(start)

		if execErr != nil {
			p.logger.Warn().
				Str("job_id", job.JobID).
				Str("fingerprint", job.Fingerprint).
				Dur("duration", duration).
				Err(execErr).
				Msg("Job failed")
			if err := p.storage.JobQueueStore().Fail(ctx, job.JobID, execErr.Error()); err != nil {
				p.logger.Warn().Str("job_id", job.JobID).Err(err).Msg("Failed to mark job failed")
			}
			job.Status = models.JobStatusFailed
			job.ErrorMessage = execErr.Error()
			p.hub.Broadcast(models.JobEvent{Type: "job_failed", Job: job, Timestamp: time.Now()})
			continue
		}

		if err := p.storage.JobQueueStore().Complete(ctx, job.JobID); err != nil {
			p.logger.Warn().Str("job_id", job.JobID).Err(err).Msg("Failed to mark job complete")
		}
		job.Status = models.JobStatusCompleted
		p.logger.Debug().
			Str("job_id", job.JobID).
			Str("fingerprint", job.Fingerprint).
			Dur("duration", duration).
			Msg("Job completed")
		p.hub.Broadcast(models.JobEvent{Type: "job_completed", Job: job, Timestamp: time.Now()})
	}
}

// execute runs the Matcher against a claimed job and upserts the result. It
// re-checks the Evidence Store first: a force_rescreen=false job whose
// fingerprint became valid again while queued (e.g. a duplicate submit that
// lost the dedupe race) is satisfied from cache instead of rescreening.
func (p *Pool) execute(ctx context.Context, job *models.Job) error {
	if !job.ForceRescreen {
		if cached, err := p.storage.EvidenceStore().GetValid(ctx, job.Fingerprint); err == nil && cached != nil {
			return nil
		}
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, p.matcherDeadline)
	defer cancel()

	snapshot, err := p.watchlist.CurrentSnapshot(deadlineCtx)
	if err != nil {
		return err
	}

	input := models.ScreeningInput{Name: job.Name, DOB: job.DOB, EntityType: job.EntityType}
	decision, err := p.matcher.Screen(deadlineCtx, input, snapshot, job.SearchBackend)
	if err != nil {
		return err
	}

	_, err = p.storage.EvidenceStore().Upsert(ctx, input, decision, job.Requestor, job.ForceRescreen)
	return err
}

func (p *Pool) runRetentionSweep(ctx context.Context) {
	cutoff := time.Now().Add(-p.jobRetention)
	if n, err := p.storage.JobQueueStore().PurgeTerminalOlderThan(ctx, cutoff); err != nil {
		p.logger.Warn().Err(err).Msg("Job retention sweep failed")
	} else if n > 0 {
		p.logger.Info().Int("count", n).Msg("Purged terminal jobs past retention")
	}

	if p.evidenceRetention > 0 {
		evCutoff := time.Now().Add(-p.evidenceRetention)
		if n, err := p.storage.EvidenceStore().PurgeOlderThan(ctx, evCutoff); err != nil {
			p.logger.Warn().Err(err).Msg("Evidence retention sweep failed")
		} else if n > 0 {
			p.logger.Info().Int("count", n).Msg("Purged expired evidence rows past retention")
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
