// Package review implements the Review State Machine (RSM): the per-evidence
// claim/complete workflow an analyst drives from the review queue (§4.8).
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
)

// ErrInvalidOutcome is returned when Complete is called with an outcome
// outside the fixed enumeration.
var ErrInvalidOutcome = errors.New("review: outcome is not in the fixed enumeration")

// ErrNotesTooShort is returned when Complete's notes are below the minimum length.
var ErrNotesTooShort = errors.New("review: notes must be at least 10 characters")

// StateMachine implements interfaces.ReviewStateMachine over an EvidenceStore.
type StateMachine struct {
	evidence interfaces.EvidenceStore
}

// New creates a StateMachine.
func New(evidence interfaces.EvidenceStore) *StateMachine {
	return &StateMachine{evidence: evidence}
}

// Claim transitions UNREVIEWED -> IN_REVIEW.
func (m *StateMachine) Claim(ctx context.Context, fingerprint, actor string) (*models.EvidenceRow, error) {
	row, err := m.evidence.ClaimReview(ctx, fingerprint, actor)
	if err != nil {
		return nil, fmt.Errorf("claim review for %s: %w", fingerprint, err)
	}
	return row, nil
}

// Complete transitions IN_REVIEW -> COMPLETED, validating outcome and notes
// before touching storage.
func (m *StateMachine) Complete(ctx context.Context, fingerprint, actor, outcome, notes string) (*models.EvidenceRow, error) {
	if !models.ReviewOutcomes[outcome] {
		return nil, ErrInvalidOutcome
	}
	if len(notes) < models.MinReviewNotesLength {
		return nil, ErrNotesTooShort
	}

	row, err := m.evidence.CompleteReview(ctx, fingerprint, actor, outcome, notes)
	if err != nil {
		return nil, fmt.Errorf("complete review for %s: %w", fingerprint, err)
	}
	return row, nil
}

var _ interfaces.ReviewStateMachine = (*StateMachine)(nil)
