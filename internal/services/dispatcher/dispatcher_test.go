package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMatcher struct {
	decision interfaces.Decision
	err      error
}

func (f *fakeMatcher) Screen(_ context.Context, _ models.ScreeningInput, _ models.WatchlistSnapshot, _ string) (interfaces.Decision, error) {
	return f.decision, f.err
}

type fakeWatchlist struct{}

func (fakeWatchlist) CurrentSnapshot(_ context.Context) (models.WatchlistSnapshot, error) {
	return models.WatchlistSnapshot{}, nil
}

type fakeEvidenceStore struct {
	valid *models.EvidenceRow
}

func (f *fakeEvidenceStore) GetValid(_ context.Context, _ string) (*models.EvidenceRow, error) {
	return f.valid, nil
}
func (f *fakeEvidenceStore) Get(_ context.Context, _ string) (*models.EvidenceRow, error) { return nil, nil }
func (f *fakeEvidenceStore) Upsert(_ context.Context, _ models.ScreeningInput, d interfaces.Decision, requestor string, _ bool) (*models.EvidenceRow, error) {
	return &models.EvidenceRow{Status: d.Status, LastRequestor: requestor}, nil
}
func (f *fakeEvidenceStore) SearchByName(_ context.Context, _ string, _ int) ([]*models.EvidenceRow, error) {
	return nil, nil
}
func (f *fakeEvidenceStore) SearchByFingerprint(_ context.Context, _ string) (*models.EvidenceRow, error) {
	return nil, nil
}
func (f *fakeEvidenceStore) MarkFalsePositive(_ context.Context, _, _, _ string) (*models.EvidenceRow, error) {
	return nil, nil
}
func (f *fakeEvidenceStore) PurgeOlderThan(_ context.Context, _ time.Time) (int, error) { return 0, nil }
func (f *fakeEvidenceStore) ListValid(_ context.Context) ([]*models.EvidenceRow, error) { return nil, nil }
func (f *fakeEvidenceStore) ClaimReview(_ context.Context, _, _ string) (*models.EvidenceRow, error) {
	return nil, nil
}
func (f *fakeEvidenceStore) CompleteReview(_ context.Context, _, _, _, _ string) (*models.EvidenceRow, error) {
	return nil, nil
}

type fakeJobQueueStore struct {
	pendingPlusRunning int
	enqueueOutcome     models.EnqueueOutcome
}

func (f *fakeJobQueueStore) Enqueue(_ context.Context, _ *models.Job) (models.EnqueueOutcome, error) {
	return f.enqueueOutcome, nil
}
func (f *fakeJobQueueStore) ClaimOne(_ context.Context) (*models.Job, error) { return nil, nil }
func (f *fakeJobQueueStore) Complete(_ context.Context, _ string) error     { return nil }
func (f *fakeJobQueueStore) Fail(_ context.Context, _, _ string) error      { return nil }
func (f *fakeJobQueueStore) Status(_ context.Context, _ string) (*models.Job, error) { return nil, nil }
func (f *fakeJobQueueStore) PurgeTerminalOlderThan(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
func (f *fakeJobQueueStore) CountPendingPlusRunning(_ context.Context) (int, error) {
	return f.pendingPlusRunning, nil
}
func (f *fakeJobQueueStore) ResetRunningJobs(_ context.Context) (int, error) { return 0, nil }

type fakeAuditSink struct {
	events []models.AuditEvent
}

func (f *fakeAuditSink) Record(_ context.Context, event models.AuditEvent) {
	f.events = append(f.events, event)
}

type fakeStorageManager struct {
	es *fakeEvidenceStore
	jq *fakeJobQueueStore
	as *fakeAuditSink
}

func (f *fakeStorageManager) EvidenceStore() interfaces.EvidenceStore     { return f.es }
func (f *fakeStorageManager) JobQueueStore() interfaces.JobQueueStore     { return f.jq }
func (f *fakeStorageManager) RefreshRunStore() interfaces.RefreshRunStore { return nil }
func (f *fakeStorageManager) InternalStore() interfaces.InternalStore     { return nil }
func (f *fakeStorageManager) AuditSink() interfaces.AuditSink             { return f.as }
func (f *fakeStorageManager) Close() error                                { return nil }

func newFakeStorage(pendingPlusRunning int, valid *models.EvidenceRow) *fakeStorageManager {
	return &fakeStorageManager{
		es: &fakeEvidenceStore{valid: valid},
		jq: &fakeJobQueueStore{pendingPlusRunning: pendingPlusRunning, enqueueOutcome: models.EnqueueOutcome{Outcome: models.EnqueueQueued, JobID: "job1"}},
		as: &fakeAuditSink{},
	}
}

func validRequest() Request {
	return Request{Name: "Jane Doe", EntityType: "Person", Requestor: "svc1", Reason: models.ReasonClientOnboarding}
}

func TestScreen_RejectsInvalidInput(t *testing.T) {
	d := New(newFakeStorage(0, nil), &fakeMatcher{}, fakeWatchlist{}, common.NewSilentLogger(), 5, true)
	_, err := d.Screen(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestScreen_RejectsUnknownReason(t *testing.T) {
	d := New(newFakeStorage(0, nil), &fakeMatcher{}, fakeWatchlist{}, common.NewSilentLogger(), 5, true)
	req := validRequest()
	req.Reason = "Not A Real Reason"
	_, err := d.Screen(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestScreen_CacheHitReturnsCached(t *testing.T) {
	storage := newFakeStorage(0, &models.EvidenceRow{Status: models.StatusCleared})
	d := New(storage, &fakeMatcher{}, fakeWatchlist{}, common.NewSilentLogger(), 5, true)

	out, err := d.Screen(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCached, out.Kind)
	assert.Equal(t, models.AuditCacheReuse, storage.as.events[0].Action)
}

func TestScreen_MissBelowThresholdRunsSynchronously(t *testing.T) {
	storage := newFakeStorage(0, nil)
	d := New(storage, &fakeMatcher{decision: interfaces.Decision{Status: models.StatusCleared}}, fakeWatchlist{}, common.NewSilentLogger(), 5, true)

	out, err := d.Screen(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynchronous, out.Kind)
	require.NotNil(t, out.Row)
}

func TestScreen_MissAboveThresholdEnqueues(t *testing.T) {
	storage := newFakeStorage(10, nil)
	d := New(storage, &fakeMatcher{}, fakeWatchlist{}, common.NewSilentLogger(), 5, true)

	out, err := d.Screen(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, out.Kind)
	assert.Equal(t, "job1", out.JobID)
}

func TestScreen_NonPersistentRunsInlineWithoutStorage(t *testing.T) {
	d := New(nil, &fakeMatcher{decision: interfaces.Decision{Status: models.StatusCleared}}, fakeWatchlist{}, common.NewSilentLogger(), 5, false)

	out, err := d.Screen(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynchronous, out.Kind)
	assert.Nil(t, out.Row)
}
