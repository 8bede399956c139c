package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

type fakeEvidenceStore struct {
	claimErr    error
	completeErr error
	claimedBy   string
	completedBy string
	outcome     string
	notes       string
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
func (f *fakeEvidenceStore) ListValid(_ context.Context) ([]*models.EvidenceRow, error) { return nil, nil }
func (f *fakeEvidenceStore) ClaimReview(_ context.Context, fingerprint, actor string) (*models.EvidenceRow, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	f.claimedBy = actor
	return &models.EvidenceRow{Fingerprint: fingerprint, ReviewState: models.ReviewInReview, ReviewClaimedBy: actor}, nil
}
func (f *fakeEvidenceStore) CompleteReview(_ context.Context, fingerprint, actor, outcome, notes string) (*models.EvidenceRow, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.completedBy = actor
	f.outcome = outcome
	f.notes = notes
	return &models.EvidenceRow{Fingerprint: fingerprint, ReviewState: models.ReviewCompleted, ReviewOutcome: outcome, ReviewNotes: notes}, nil
}

func TestStateMachine_Claim(t *testing.T) {
	es := &fakeEvidenceStore{}
	sm := New(es)

	row, err := sm.Claim(context.Background(), "fp1", "analyst1")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewInReview, row.ReviewState)
	assert.Equal(t, "analyst1", es.claimedBy)
}

func TestStateMachine_Claim_PropagatesConflict(t *testing.T) {
	es := &fakeEvidenceStore{claimErr: errConflict}
	sm := New(es)

	_, err := sm.Claim(context.Background(), "fp1", "analyst1")
	assert.ErrorIs(t, err, errConflict)
}

func TestStateMachine_Complete_RejectsUnknownOutcome(t *testing.T) {
	es := &fakeEvidenceStore{}
	sm := New(es)

	_, err := sm.Complete(context.Background(), "fp1", "analyst1", "Not A Real Outcome", "sufficient notes here")
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}

func TestStateMachine_Complete_RejectsShortNotes(t *testing.T) {
	es := &fakeEvidenceStore{}
	sm := New(es)

	_, err := sm.Complete(context.Background(), "fp1", "analyst1", models.OutcomeFalsePositiveProceeded, "short")
	assert.ErrorIs(t, err, ErrNotesTooShort)
}

func TestStateMachine_Complete_Succeeds(t *testing.T) {
	es := &fakeEvidenceStore{}
	sm := New(es)

	row, err := sm.Complete(context.Background(), "fp1", "analyst1", models.OutcomeConfirmedMatchBlocked, "confirmed match, payment blocked")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewCompleted, row.ReviewState)
	assert.Equal(t, models.OutcomeConfirmedMatchBlocked, es.outcome)
}
