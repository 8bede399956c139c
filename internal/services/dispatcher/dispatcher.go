// Package dispatcher implements the Dispatcher (D): the request-time
// decision between cache reuse, synchronous screening, and background
// enqueue (§4.4).
package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/ekd"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
)

// ErrInvalidInput is returned for requests missing required fields or
// carrying an unrecognized reason_for_check.
var ErrInvalidInput = errors.New("dispatcher: invalid input")

// Request is the inbound screening request (§6).
type Request struct {
	Name              string
	DOB               string
	EntityType        string
	Requestor         string
	Reason            string
	BusinessReference string
	SearchBackend     string
	ForceRescreen     bool
}

// Outcome describes how a screen() call was resolved.
type Outcome struct {
	Kind      string // "cached" | "synchronous" | "queued" | "reused" | "already_pending"
	Decision  *interfaces.Decision
	Row       *models.EvidenceRow
	JobID     string
	Fingerprint string
}

const (
	OutcomeCached         = "cached"
	OutcomeSynchronous    = "synchronous"
	OutcomeQueued         = "queued"
	OutcomeReused         = "reused"
	OutcomeAlreadyPending = "already_pending"
)

// Dispatcher implements the Dispatcher component.
type Dispatcher struct {
	storage   interfaces.StorageManager
	matcher   interfaces.Matcher
	watchlist interfaces.WatchlistProvider
	logger    *common.Logger

	syncThreshold int
	persistent    bool
}

// New creates a Dispatcher. persistent=false runs every request inline with
// no caching or queueing (§4.4 step 4) — appropriate only when the system
// is configured without a storage backend. Per-IP rate governance (§4.9) is
// enforced by the HTTP middleware in front of this endpoint, not here.
func New(storage interfaces.StorageManager, matcher interfaces.Matcher, watchlist interfaces.WatchlistProvider, logger *common.Logger, syncThreshold int, persistent bool) *Dispatcher {
	if syncThreshold <= 0 {
		syncThreshold = 5
	}
	return &Dispatcher{
		storage:       storage,
		matcher:       matcher,
		watchlist:     watchlist,
		logger:        logger,
		syncThreshold: syncThreshold,
		persistent:    persistent,
	}
}

// Screen handles screen(request) per §4.4.
func (d *Dispatcher) Screen(ctx context.Context, req Request) (Outcome, error) {
	if req.Name == "" || req.Requestor == "" {
		return Outcome{}, ErrInvalidInput
	}
	if !models.ValidReasons[req.Reason] {
		return Outcome{}, ErrInvalidInput
	}

	fingerprint, err := ekd.Fingerprint(req.Name, req.EntityType, req.DOB)
	if err != nil {
		return Outcome{}, ErrInvalidInput
	}

	input := models.ScreeningInput{Name: req.Name, DOB: req.DOB, EntityType: req.EntityType}

	if !d.persistent {
		decision, err := d.screenInline(ctx, input, req.SearchBackend)
		if err != nil {
			return Outcome{}, err
		}
		d.audit(ctx, req, fingerprint, models.AuditSynchronous, "synchronous")
		return Outcome{Kind: OutcomeSynchronous, Decision: &decision, Fingerprint: fingerprint}, nil
	}

	if cached, err := d.storage.EvidenceStore().GetValid(ctx, fingerprint); err != nil {
		return Outcome{}, err
	} else if cached != nil && !req.ForceRescreen {
		d.audit(ctx, req, fingerprint, models.AuditCacheReuse, "cached")
		return Outcome{Kind: OutcomeCached, Row: cached, Fingerprint: fingerprint}, nil
	}

	pending, err := d.storage.JobQueueStore().CountPendingPlusRunning(ctx)
	if err != nil {
		return Outcome{}, err
	}

	if pending < d.syncThreshold {
		decision, err := d.screenInline(ctx, input, req.SearchBackend)
		if err != nil {
			return Outcome{}, err
		}
		row, err := d.storage.EvidenceStore().Upsert(ctx, input, decision, req.Requestor, req.ForceRescreen)
		if err != nil {
			return Outcome{}, err
		}
		d.audit(ctx, req, fingerprint, models.AuditSynchronous, "synchronous")
		return Outcome{Kind: OutcomeSynchronous, Decision: &decision, Row: row, Fingerprint: fingerprint}, nil
	}

	job := &models.Job{
		Fingerprint:       fingerprint,
		Name:              req.Name,
		DOB:               req.DOB,
		EntityType:        req.EntityType,
		Requestor:         req.Requestor,
		Reason:            req.Reason,
		BusinessReference: req.BusinessReference,
		SearchBackend:     req.SearchBackend,
		ForceRescreen:     req.ForceRescreen,
	}
	enqueueOutcome, err := d.storage.JobQueueStore().Enqueue(ctx, job)
	if err != nil {
		d.audit(ctx, req, fingerprint, models.AuditRejected, "rejected")
		return Outcome{}, err
	}

	switch enqueueOutcome.Outcome {
	case models.EnqueueReused:
		d.audit(ctx, req, fingerprint, models.AuditReusedByWorker, "reused")
		return Outcome{Kind: OutcomeReused, JobID: enqueueOutcome.JobID, Fingerprint: fingerprint}, nil
	case models.EnqueueAlreadyPending:
		d.audit(ctx, req, fingerprint, models.AuditQueued, "already_pending")
		return Outcome{Kind: OutcomeAlreadyPending, JobID: enqueueOutcome.JobID, Fingerprint: fingerprint}, nil
	default:
		d.audit(ctx, req, fingerprint, models.AuditQueued, "queued")
		return Outcome{Kind: OutcomeQueued, JobID: enqueueOutcome.JobID, Fingerprint: fingerprint}, nil
	}
}

func (d *Dispatcher) screenInline(ctx context.Context, input models.ScreeningInput, searchBackend string) (interfaces.Decision, error) {
	snapshot, err := d.watchlist.CurrentSnapshot(ctx)
	if err != nil {
		return interfaces.Decision{}, err
	}
	return d.matcher.Screen(ctx, input, snapshot, searchBackend)
}

func (d *Dispatcher) audit(ctx context.Context, req Request, fingerprint, action, outcome string) {
	d.storage.AuditSink().Record(ctx, models.AuditEvent{
		Timestamp:         time.Now(),
		Actor:             req.Requestor,
		Action:            action,
		Fingerprint:       fingerprint,
		BusinessReference: req.BusinessReference,
		Reason:            req.Reason,
		Outcome:           outcome,
	})
}
