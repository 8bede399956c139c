// Package interfaces defines the component contracts for the screening
// engine: the collaborator boundaries between storage, matching, dispatch,
// and the background worker and review services.
package interfaces

import (
	"context"
	"time"

	"github.com/meridiancompliance/opcheck/internal/models"
)

// StorageManager coordinates all storage backends behind a single lifecycle.
type StorageManager interface {
	EvidenceStore() EvidenceStore
	JobQueueStore() JobQueueStore
	RefreshRunStore() RefreshRunStore
	InternalStore() InternalStore
	AuditSink() AuditSink

	Close() error
}

// EvidenceStore exclusively owns every EvidenceRow (§4.2).
type EvidenceStore interface {
	// GetValid returns a row only if present and still within its validity
	// window. Read-only; never mutates validity.
	GetValid(ctx context.Context, fingerprint string) (*models.EvidenceRow, error)

	// Get returns the row regardless of validity, or nil if absent.
	Get(ctx context.Context, fingerprint string) (*models.EvidenceRow, error)

	// Upsert atomically replaces the decision fields and result blob for a
	// fingerprint, applying the review-field preservation/reset rules.
	Upsert(ctx context.Context, input models.ScreeningInput, decision Decision, requestor string, forceRescreen bool) (*models.EvidenceRow, error)

	SearchByName(ctx context.Context, substring string, limit int) ([]*models.EvidenceRow, error)
	SearchByFingerprint(ctx context.Context, fingerprint string) (*models.EvidenceRow, error)

	// ListValid returns every row still within its validity window. Used by
	// the Refresh Coordinator's "all currently-valid rows" candidate-selection
	// fallback (§4.7) when a more precise delta-overlap filter isn't available.
	ListValid(ctx context.Context) ([]*models.EvidenceRow, error)

	// MarkFalsePositive records an override without touching decision fields.
	MarkFalsePositive(ctx context.Context, fingerprint, reason, actor string) (*models.EvidenceRow, error)

	// ClaimReview atomically transitions UNREVIEWED -> IN_REVIEW. Returns
	// ErrReviewStateConflict if the row is not currently UNREVIEWED.
	ClaimReview(ctx context.Context, fingerprint, actor string) (*models.EvidenceRow, error)

	// CompleteReview atomically transitions IN_REVIEW -> COMPLETED. Returns
	// ErrReviewStateConflict if the row is not currently IN_REVIEW.
	CompleteReview(ctx context.Context, fingerprint, actor, outcome, notes string) (*models.EvidenceRow, error)

	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Decision is the output of the Matcher collaborator (§4.5).
type Decision struct {
	Status          string
	RiskLevel       string
	Confidence      string
	Score           float64
	UKSanctionsFlag bool
	PEPFlag         bool
	ResultBlob      models.ResultBlob
}

// Matcher is the fuzzy-matching/decision-rule collaborator (§4.5).
type Matcher interface {
	Screen(ctx context.Context, input models.ScreeningInput, snapshot models.WatchlistSnapshot, searchBackend string) (Decision, error)
}

// WatchlistProvider is the read-handle seam over the watchlist ingestion
// pipeline, which is an external collaborator out of scope for this
// repository (§1). Dispatcher, Worker, and the Refresh Coordinator all
// consult it rather than knowing how a snapshot is materialized.
type WatchlistProvider interface {
	CurrentSnapshot(ctx context.Context) (models.WatchlistSnapshot, error)
}

// JobQueueStore manages the persistent, exclusive-claim job queue (§4.3).
type JobQueueStore interface {
	// Enqueue is an atomic check-then-insert against ES and the queue,
	// enforcing MaxInflightPerFingerprint = 1.
	Enqueue(ctx context.Context, job *models.Job) (models.EnqueueOutcome, error)

	// ClaimOne atomically selects and claims the oldest pending job, skipping
	// rows already claimed by other claimers. Returns nil if none available.
	ClaimOne(ctx context.Context) (*models.Job, error)

	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID, errorMessage string) error

	Status(ctx context.Context, jobID string) (*models.Job, error)

	PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// CountPendingPlusRunning reports the dispatcher's sizing signal.
	CountPendingPlusRunning(ctx context.Context) (int, error)

	// ResetRunningJobs recovers jobs left running by a crashed worker process.
	ResetRunningJobs(ctx context.Context) (int, error)
}

// RefreshRunStore persists RefreshRun summaries (§3, §4.7).
type RefreshRunStore interface {
	Save(ctx context.Context, run *models.RefreshRun) error
	Get(ctx context.Context, runID string) (*models.RefreshRun, error)
	LastUKHash(ctx context.Context) (string, error)
}

// InternalStore manages the minimal user/account records used for actor
// identity and admin/refresh/review auth gating.
type InternalStore interface {
	GetUser(ctx context.Context, userID string) (*models.InternalUser, error)
	GetUserByEmail(ctx context.Context, email string) (*models.InternalUser, error)
	SaveUser(ctx context.Context, user *models.InternalUser) error
	ListUsers(ctx context.Context) ([]*models.InternalUser, error)

	GetSystemKV(ctx context.Context, key string) (string, error)
	SetSystemKV(ctx context.Context, key, value string) error
}

// AuditSink is the append-only structured event log (§4.10).
type AuditSink interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// ReviewStateMachine implements the per-evidence review workflow (§4.8).
type ReviewStateMachine interface {
	Claim(ctx context.Context, fingerprint, actor string) (*models.EvidenceRow, error)
	Complete(ctx context.Context, fingerprint, actor, outcome, notes string) (*models.EvidenceRow, error)
}

// RateGovernor enforces per-IP token buckets and per-account login backoff
// in the dispatch path (§4.9).
type RateGovernor interface {
	// AllowRequest reports whether a request from clientIP may proceed, and
	// if not, a Retry-After hint.
	AllowRequest(clientIP string) (allowed bool, retryAfter time.Duration)

	// RecordLoginFailure registers a failed login for account and returns a
	// backoff hint for subsequent attempts in the current window.
	RecordLoginFailure(account string) (backoff time.Duration)

	// RecordLoginSuccess clears the account's failure window.
	RecordLoginSuccess(account string)
}
