package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// jobSelectFields lists the fields to select from job_queue, aliasing
// job_id to id for struct mapping.
const jobSelectFields = "job_id, fingerprint, name, dob, entity_type, requestor, reason, " +
	"business_reference, search_backend, refresh_run_id, force_rescreen, status, " +
	"created_at, started_at, finished_at, error_message"

// JobQueueStore implements interfaces.JobQueueStore using SurrealDB.
type JobQueueStore struct {
	db       *surrealdb.DB
	logger   *common.Logger
	evidence interfaces.EvidenceStore
}

// NewJobQueueStore creates a new JobQueueStore. evidence is consulted by
// Enqueue to decide the Reused outcome (§4.3).
func NewJobQueueStore(db *surrealdb.DB, logger *common.Logger, evidence interfaces.EvidenceStore) *JobQueueStore {
	return &JobQueueStore{db: db, logger: logger, evidence: evidence}
}

// Enqueue is an atomic check-then-insert enforcing at-most-one in-flight job
// per fingerprint (§4.3). Precedence: a valid Evidence Store row for the
// fingerprint wins as Reused; otherwise any job in {pending, running} for the
// fingerprint is AlreadyPending; otherwise a new job is inserted as Queued.
// The insert races against job_queue's unique index on inflight_fingerprint
// (see manager.go): inflight_fingerprint is set to Fingerprint while a job is
// pending/running and cleared on completion, so two concurrent enqueues for
// the same fingerprint can both pass findInflight but only one CREATE wins;
// the loser's index-violation error is mapped back to AlreadyPending.
func (s *JobQueueStore) Enqueue(ctx context.Context, job *models.Job) (models.EnqueueOutcome, error) {
	if valid, err := s.evidence.GetValid(ctx, job.Fingerprint); err != nil {
		return models.EnqueueOutcome{Outcome: models.EnqueueError, Error: err.Error()}, err
	} else if valid != nil {
		return models.EnqueueOutcome{Outcome: models.EnqueueReused}, nil
	}

	existing, err := s.findInflight(ctx, job.Fingerprint)
	if err != nil {
		return models.EnqueueOutcome{Outcome: models.EnqueueError, Error: err.Error()}, err
	}
	if existing != nil {
		return models.EnqueueOutcome{Outcome: models.EnqueueAlreadyPending, JobID: existing.JobID}, nil
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.InflightFingerprint = job.Fingerprint

	sql := "CREATE $rid CONTENT $job"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("job_queue", job.JobID), "job": job}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		if isIndexConflictError(err) {
			existing, findErr := s.findInflight(ctx, job.Fingerprint)
			if findErr == nil && existing != nil {
				return models.EnqueueOutcome{Outcome: models.EnqueueAlreadyPending, JobID: existing.JobID}, nil
			}
			return models.EnqueueOutcome{Outcome: models.EnqueueAlreadyPending}, nil
		}
		return models.EnqueueOutcome{Outcome: models.EnqueueError, Error: err.Error()}, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return models.EnqueueOutcome{Outcome: models.EnqueueQueued, JobID: job.JobID}, nil
}

func (s *JobQueueStore) findInflight(ctx context.Context, fingerprint string) (*models.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM job_queue WHERE fingerprint = $fp AND status IN [$pending, $running] LIMIT 1"
	vars := map[string]any{"fp": fingerprint, "pending": models.JobStatusPending, "running": models.JobStatusRunning}

	results, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to check in-flight jobs: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}
	return nil, nil
}

// ClaimOne atomically selects and claims the oldest pending job. This
// directly adapts the two-step select-then-conditional-update claim
// pattern: a candidate is selected, then claimed with an UPDATE ... WHERE
// status = pending guard so a second claimer racing the same row loses.
func (s *JobQueueStore) ClaimOne(ctx context.Context) (*models.Job, error) {
	selectSQL := "SELECT " + jobSelectFields + " FROM job_queue WHERE status = $pending ORDER BY created_at ASC LIMIT 1"
	vars := map[string]any{"pending": models.JobStatusPending}

	candidates, err := surrealdb.Query[[]models.Job](ctx, s.db, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to select candidate job: %w", err)
	}
	if candidates == nil || len(*candidates) == 0 || len((*candidates)[0].Result) == 0 {
		return nil, nil
	}
	candidate := (*candidates)[0].Result[0]

	now := time.Now()
	updateSQL := "UPDATE $rid SET status = $running, started_at = $now WHERE status = $pending"
	updateVars := map[string]any{
		"rid":     surrealmodels.NewRecordID("job_queue", candidate.JobID),
		"running": models.JobStatusRunning,
		"pending": models.JobStatusPending,
		"now":     now,
	}
	result, err := surrealdb.Query[[]models.Job](ctx, s.db, updateSQL, updateVars)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
		// Another claimer won the race; caller should retry.
		return nil, nil
	}

	candidate.Status = models.JobStatusRunning
	candidate.StartedAt = &now
	return &candidate, nil
}

func (s *JobQueueStore) Complete(ctx context.Context, jobID string) error {
	now := time.Now()
	sql := "UPDATE $rid SET status = $status, finished_at = $now, inflight_fingerprint = NONE"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("job_queue", jobID),
		"status": models.JobStatusCompleted,
		"now":    now,
	}
	if _, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (s *JobQueueStore) Fail(ctx context.Context, jobID, errorMessage string) error {
	now := time.Now()
	sql := "UPDATE $rid SET status = $status, finished_at = $now, error_message = $msg, inflight_fingerprint = NONE"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("job_queue", jobID),
		"status": models.JobStatusFailed,
		"now":    now,
		"msg":    errorMessage,
	}
	if _, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return nil
}

func (s *JobQueueStore) Status(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := surrealdb.Select[models.Job](ctx, s.db, surrealmodels.NewRecordID("job_queue", jobID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select job: %w", err)
	}
	return job, nil
}

func (s *JobQueueStore) PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	sql := "DELETE FROM job_queue WHERE status IN [$completed, $failed] AND finished_at < $cutoff"
	vars := map[string]any{
		"completed": models.JobStatusCompleted,
		"failed":    models.JobStatusFailed,
		"cutoff":    cutoff,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to purge terminal jobs: %w", err)
	}
	return 0, nil
}

func (s *JobQueueStore) CountPendingPlusRunning(ctx context.Context) (int, error) {
	sql := "SELECT count() AS cnt FROM job_queue WHERE status IN [$pending, $running] GROUP ALL"
	vars := map[string]any{"pending": models.JobStatusPending, "running": models.JobStatusRunning}

	type countResult struct {
		Cnt int `json:"cnt"`
	}
	results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending+running: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

// ResetRunningJobs resets jobs left running by a crashed worker process back
// to pending. Called on startup.
func (s *JobQueueStore) ResetRunningJobs(ctx context.Context) (int, error) {
	sql := "UPDATE job_queue SET status = $pending, started_at = NONE WHERE status = $running"
	_, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{
		"pending": models.JobStatusPending,
		"running": models.JobStatusRunning,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset running jobs: %w", err)
	}
	return 0, nil
}

var _ interfaces.JobQueueStore = (*JobQueueStore)(nil)
