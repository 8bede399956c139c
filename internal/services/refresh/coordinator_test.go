package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/meridiancompliance/opcheck/internal/watchlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvidenceStore struct {
	valid []*models.EvidenceRow
}

func (f *fakeEvidenceStore) GetValid(_ context.Context, _ string) (*models.EvidenceRow, error) {
	return nil, nil
}
func (f *fakeEvidenceStore) Get(_ context.Context, _ string) (*models.EvidenceRow, error) { return nil, nil }
func (f *fakeEvidenceStore) Upsert(_ context.Context, _ models.ScreeningInput, _ interfaces.Decision, _ string, _ bool) (*models.EvidenceRow, error) {
	return nil, nil
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
func (f *fakeEvidenceStore) ListValid(_ context.Context) ([]*models.EvidenceRow, error) {
	return f.valid, nil
}
func (f *fakeEvidenceStore) ClaimReview(_ context.Context, _, _ string) (*models.EvidenceRow, error) {
	return nil, nil
}
func (f *fakeEvidenceStore) CompleteReview(_ context.Context, _, _, _, _ string) (*models.EvidenceRow, error) {
	return nil, nil
}

type fakeJobQueueStore struct {
	enqueued []*models.Job
}

func (f *fakeJobQueueStore) Enqueue(_ context.Context, job *models.Job) (models.EnqueueOutcome, error) {
	f.enqueued = append(f.enqueued, job)
	return models.EnqueueOutcome{Outcome: models.EnqueueQueued, JobID: "rjob"}, nil
}
func (f *fakeJobQueueStore) ClaimOne(_ context.Context) (*models.Job, error) { return nil, nil }
func (f *fakeJobQueueStore) Complete(_ context.Context, _ string) error     { return nil }
func (f *fakeJobQueueStore) Fail(_ context.Context, _, _ string) error      { return nil }
func (f *fakeJobQueueStore) Status(_ context.Context, _ string) (*models.Job, error) { return nil, nil }
func (f *fakeJobQueueStore) PurgeTerminalOlderThan(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
func (f *fakeJobQueueStore) CountPendingPlusRunning(_ context.Context) (int, error) { return 0, nil }
func (f *fakeJobQueueStore) ResetRunningJobs(_ context.Context) (int, error)        { return 0, nil }

type fakeRefreshRunStore struct {
	saved   []*models.RefreshRun
	lastHash string
}

func (f *fakeRefreshRunStore) Save(_ context.Context, run *models.RefreshRun) error {
	f.saved = append(f.saved, run)
	f.lastHash = run.UKHash
	return nil
}
func (f *fakeRefreshRunStore) Get(_ context.Context, _ string) (*models.RefreshRun, error) {
	return nil, nil
}
func (f *fakeRefreshRunStore) LastUKHash(_ context.Context) (string, error) {
	return f.lastHash, nil
}

type fakeStorageManager struct {
	es *fakeEvidenceStore
	jq *fakeJobQueueStore
	rr *fakeRefreshRunStore
}

func (f *fakeStorageManager) EvidenceStore() interfaces.EvidenceStore     { return f.es }
func (f *fakeStorageManager) JobQueueStore() interfaces.JobQueueStore     { return f.jq }
func (f *fakeStorageManager) RefreshRunStore() interfaces.RefreshRunStore { return f.rr }
func (f *fakeStorageManager) InternalStore() interfaces.InternalStore     { return nil }
func (f *fakeStorageManager) AuditSink() interfaces.AuditSink             { return nil }
func (f *fakeStorageManager) Close() error                                { return nil }

func TestCoordinator_FirstRunEnqueuesAllValidRows(t *testing.T) {
	valid := []*models.EvidenceRow{
		{Fingerprint: "fp1", DisplayName: "Jane Doe", Status: models.StatusCleared, NormalizedName: "jane doe"},
		{Fingerprint: "fp2", DisplayName: "John Roe", Status: models.StatusCleared, NormalizedName: "john roe"},
	}
	storage := &fakeStorageManager{es: &fakeEvidenceStore{valid: valid}, jq: &fakeJobQueueStore{}, rr: &fakeRefreshRunStore{}}
	holder := watchlist.NewHolder()
	c := New(storage, holder, common.NewSilentLogger())

	snapshot := models.WatchlistSnapshot{
		Sanctions: []models.WatchlistRow{{RowID: "r1", Name: "Alpha", Regime: "HM Treasury", IsUK: true, Revision: "v1"}},
	}

	run, err := c.Run(context.Background(), snapshot)
	require.NoError(t, err)
	assert.Equal(t, 1, run.DeltaAdded)
	assert.Equal(t, 2, run.QueuedCount)
	assert.Len(t, storage.jq.enqueued, 2)
}

func TestCoordinator_UnchangedHashSkipsEnumeration(t *testing.T) {
	snapshot := models.WatchlistSnapshot{
		Sanctions: []models.WatchlistRow{{RowID: "r1", Name: "Alpha", Regime: "HM Treasury", IsUK: true, Revision: "v1"}},
	}
	ukHash := hashRows(ukRegimeRows(snapshot))

	storage := &fakeStorageManager{
		es: &fakeEvidenceStore{valid: []*models.EvidenceRow{{Fingerprint: "fp1"}}},
		jq: &fakeJobQueueStore{},
		rr: &fakeRefreshRunStore{lastHash: ukHash},
	}
	holder := watchlist.NewHolder()
	c := New(storage, holder, common.NewSilentLogger())

	run, err := c.Run(context.Background(), snapshot)
	require.NoError(t, err)
	assert.Equal(t, 0, run.CandidateCount)
	assert.Empty(t, storage.jq.enqueued)
}

func TestHashRows_OrderIndependent(t *testing.T) {
	a := []models.WatchlistRow{{RowID: "x", Revision: "1"}, {RowID: "y", Revision: "2"}}
	b := []models.WatchlistRow{{RowID: "y", Revision: "2"}, {RowID: "x", Revision: "1"}}
	assert.Equal(t, hashRows(a), hashRows(b))
}

func TestDiffRows_ClassifiesAddedRemovedChanged(t *testing.T) {
	previous := []models.WatchlistRow{
		{RowID: "r1", Revision: "v1"},
		{RowID: "r2", Revision: "v1"},
	}
	current := []models.WatchlistRow{
		{RowID: "r1", Revision: "v2"},
		{RowID: "r3", Revision: "v1"},
	}
	added, removed, changed := diffRows(previous, current)
	assert.Len(t, added, 1)
	assert.Len(t, removed, 1)
	assert.Len(t, changed, 1)
}
