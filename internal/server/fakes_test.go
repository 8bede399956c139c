package server

import (
	"context"
	"time"

	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
)

// fakeStorageManager is a minimal in-memory interfaces.StorageManager used to
// exercise the HTTP handlers without a real SurrealDB connection.
type fakeStorageManager struct {
	evidence *fakeEvidenceStoreHTTP
	jobs     *fakeJobQueueStoreHTTP
	refresh  *fakeRefreshRunStoreHTTP
	internal *fakeInternalStoreHTTP
	audit    *fakeAuditSinkHTTP
}

func newFakeStorageManager() *fakeStorageManager {
	return &fakeStorageManager{
		evidence: &fakeEvidenceStoreHTTP{rows: map[string]*models.EvidenceRow{}},
		jobs:     &fakeJobQueueStoreHTTP{jobs: map[string]*models.Job{}},
		refresh:  &fakeRefreshRunStoreHTTP{runs: map[string]*models.RefreshRun{}},
		internal: &fakeInternalStoreHTTP{usersByEmail: map[string]*models.InternalUser{}},
		audit:    &fakeAuditSinkHTTP{},
	}
}

func (f *fakeStorageManager) EvidenceStore() interfaces.EvidenceStore       { return f.evidence }
func (f *fakeStorageManager) JobQueueStore() interfaces.JobQueueStore       { return f.jobs }
func (f *fakeStorageManager) RefreshRunStore() interfaces.RefreshRunStore   { return f.refresh }
func (f *fakeStorageManager) InternalStore() interfaces.InternalStore      { return f.internal }
func (f *fakeStorageManager) AuditSink() interfaces.AuditSink               { return f.audit }
func (f *fakeStorageManager) Close() error                                 { return nil }

type fakeEvidenceStoreHTTP struct {
	rows     map[string]*models.EvidenceRow
	claimErr error
	completeErr error
}

func (f *fakeEvidenceStoreHTTP) GetValid(_ context.Context, fp string) (*models.EvidenceRow, error) {
	return f.rows[fp], nil
}
func (f *fakeEvidenceStoreHTTP) Get(_ context.Context, fp string) (*models.EvidenceRow, error) {
	return f.rows[fp], nil
}
func (f *fakeEvidenceStoreHTTP) Upsert(_ context.Context, _ models.ScreeningInput, _ interfaces.Decision, _ string, _ bool) (*models.EvidenceRow, error) {
	return nil, nil
}
func (f *fakeEvidenceStoreHTTP) SearchByName(_ context.Context, substring string, _ int) ([]*models.EvidenceRow, error) {
	var out []*models.EvidenceRow
	for _, row := range f.rows {
		if row.DisplayName == substring {
			out = append(out, row)
		}
	}
	return out, nil
}
func (f *fakeEvidenceStoreHTTP) SearchByFingerprint(_ context.Context, fp string) (*models.EvidenceRow, error) {
	return f.rows[fp], nil
}
func (f *fakeEvidenceStoreHTTP) MarkFalsePositive(_ context.Context, fp, reason, actor string) (*models.EvidenceRow, error) {
	row, ok := f.rows[fp]
	if !ok {
		row = &models.EvidenceRow{Fingerprint: fp}
		f.rows[fp] = row
	}
	row.FalsePositiveReason = reason
	return row, nil
}
func (f *fakeEvidenceStoreHTTP) ListValid(_ context.Context) ([]*models.EvidenceRow, error) { return nil, nil }
func (f *fakeEvidenceStoreHTTP) ClaimReview(_ context.Context, fp, actor string) (*models.EvidenceRow, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	row, ok := f.rows[fp]
	if !ok {
		return nil, nil
	}
	row.ReviewState = models.ReviewInReview
	row.ReviewClaimedBy = actor
	return row, nil
}
func (f *fakeEvidenceStoreHTTP) CompleteReview(_ context.Context, fp, actor, outcome, notes string) (*models.EvidenceRow, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	row, ok := f.rows[fp]
	if !ok {
		return nil, nil
	}
	row.ReviewState = models.ReviewCompleted
	row.ReviewOutcome = outcome
	row.ReviewNotes = notes
	row.ReviewCompletedBy = actor
	return row, nil
}
func (f *fakeEvidenceStoreHTTP) PurgeOlderThan(_ context.Context, _ time.Time) (int, error) { return 0, nil }

type fakeJobQueueStoreHTTP struct {
	jobs map[string]*models.Job
}

func (f *fakeJobQueueStoreHTTP) Enqueue(_ context.Context, job *models.Job) (models.EnqueueOutcome, error) {
	f.jobs[job.JobID] = job
	return models.EnqueueOutcome{Outcome: models.EnqueueQueued}, nil
}
func (f *fakeJobQueueStoreHTTP) ClaimOne(_ context.Context) (*models.Job, error) { return nil, nil }
func (f *fakeJobQueueStoreHTTP) Complete(_ context.Context, _ string) error      { return nil }
func (f *fakeJobQueueStoreHTTP) Fail(_ context.Context, _, _ string) error       { return nil }
func (f *fakeJobQueueStoreHTTP) Status(_ context.Context, jobID string) (*models.Job, error) {
	return f.jobs[jobID], nil
}
func (f *fakeJobQueueStoreHTTP) PurgeTerminalOlderThan(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
func (f *fakeJobQueueStoreHTTP) CountPendingPlusRunning(_ context.Context) (int, error) { return 0, nil }
func (f *fakeJobQueueStoreHTTP) ResetRunningJobs(_ context.Context) (int, error)        { return 0, nil }

type fakeRefreshRunStoreHTTP struct {
	runs       map[string]*models.RefreshRun
	lastUKHash string
}

func (f *fakeRefreshRunStoreHTTP) Save(_ context.Context, run *models.RefreshRun) error {
	f.runs[run.RunID] = run
	f.lastUKHash = run.UKHash
	return nil
}
func (f *fakeRefreshRunStoreHTTP) Get(_ context.Context, runID string) (*models.RefreshRun, error) {
	return f.runs[runID], nil
}
func (f *fakeRefreshRunStoreHTTP) LastUKHash(_ context.Context) (string, error) {
	return f.lastUKHash, nil
}

type fakeInternalStoreHTTP struct {
	usersByEmail map[string]*models.InternalUser
}

func (f *fakeInternalStoreHTTP) GetUser(_ context.Context, userID string) (*models.InternalUser, error) {
	for _, u := range f.usersByEmail {
		if u.UserID == userID {
			return u, nil
		}
	}
	return nil, nil
}
func (f *fakeInternalStoreHTTP) GetUserByEmail(_ context.Context, email string) (*models.InternalUser, error) {
	return f.usersByEmail[email], nil
}
func (f *fakeInternalStoreHTTP) SaveUser(_ context.Context, user *models.InternalUser) error {
	f.usersByEmail[user.Email] = user
	return nil
}
func (f *fakeInternalStoreHTTP) ListUsers(_ context.Context) ([]*models.InternalUser, error) {
	var out []*models.InternalUser
	for _, u := range f.usersByEmail {
		out = append(out, u)
	}
	return out, nil
}
func (f *fakeInternalStoreHTTP) GetSystemKV(_ context.Context, _ string) (string, error)     { return "", nil }
func (f *fakeInternalStoreHTTP) SetSystemKV(_ context.Context, _, _ string) error             { return nil }

type fakeAuditSinkHTTP struct {
	events []models.AuditEvent
}

func (f *fakeAuditSinkHTTP) Record(_ context.Context, event models.AuditEvent) {
	f.events = append(f.events, event)
}

// fakeRateGovernorHTTP always allows and never backs off, unless configured otherwise.
type fakeRateGovernorHTTP struct {
	allow        bool
	loginBackoff time.Duration
}

func (f *fakeRateGovernorHTTP) AllowRequest(_ string) (bool, time.Duration) {
	if !f.allow {
		return false, time.Second
	}
	return true, 0
}
func (f *fakeRateGovernorHTTP) RecordLoginFailure(_ string) time.Duration { return f.loginBackoff }
func (f *fakeRateGovernorHTTP) RecordLoginSuccess(_ string)               {}

// fakeMatcherHTTP returns a fixed decision regardless of input.
type fakeMatcherHTTP struct {
	decision interfaces.Decision
	err      error
}

func (f *fakeMatcherHTTP) Screen(_ context.Context, _ models.ScreeningInput, _ models.WatchlistSnapshot, _ string) (interfaces.Decision, error) {
	return f.decision, f.err
}

// fakeWatchlistHTTP returns a fixed, empty snapshot.
type fakeWatchlistHTTP struct {
	snapshot models.WatchlistSnapshot
}

func (f *fakeWatchlistHTTP) CurrentSnapshot(_ context.Context) (models.WatchlistSnapshot, error) {
	return f.snapshot, nil
}
