package surrealdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/ekd"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ErrReviewStateConflict is returned when a review transition is attempted
// from a state other than the one it requires (§4.8).
var ErrReviewStateConflict = errors.New("evidence: review state conflict")

// ErrNotFound is returned when an evidence row does not exist.
var ErrNotFound = errors.New("evidence: row not found")

// EvidenceStore implements interfaces.EvidenceStore using SurrealDB. It is
// the sole owner of every EvidenceRow (§4.2).
type EvidenceStore struct {
	db           *surrealdb.DB
	logger       *common.Logger
	validityDays int
}

// NewEvidenceStore creates a new EvidenceStore.
func NewEvidenceStore(db *surrealdb.DB, logger *common.Logger, validityDays int) *EvidenceStore {
	if validityDays <= 0 {
		validityDays = models.ValidityDays
	}
	return &EvidenceStore{db: db, logger: logger, validityDays: validityDays}
}

func (s *EvidenceStore) Get(ctx context.Context, fingerprint string) (*models.EvidenceRow, error) {
	row, err := surrealdb.Select[models.EvidenceRow](ctx, s.db, surrealmodels.NewRecordID("evidence", fingerprint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select evidence row: %w", err)
	}
	return row, nil
}

func (s *EvidenceStore) GetValid(ctx context.Context, fingerprint string) (*models.EvidenceRow, error) {
	row, err := s.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if !row.IsValid(time.Now()) {
		return nil, nil
	}
	return row, nil
}

// Upsert replaces the decision fields and result blob for a fingerprint,
// preserving the fingerprint's identity fields and applying the review-field
// preservation/reset rules (§4.2, §4.8): a materially different decision
// resets an IN_REVIEW/COMPLETED row back to UNREVIEWED; an unchanged decision
// preserves the existing review state untouched.
func (s *EvidenceStore) Upsert(ctx context.Context, input models.ScreeningInput, decision interfaces.Decision, requestor string, forceRescreen bool) (*models.EvidenceRow, error) {
	fingerprint, err := ekd.Fingerprint(input.Name, input.EntityType, input.DOB)
	if err != nil {
		return nil, err
	}
	normalizedName, err := ekd.NormalizeName(input.Name)
	if err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	row := &models.EvidenceRow{
		Fingerprint:     fingerprint,
		DisplayName:     input.Name,
		NormalizedName:  normalizedName,
		DateOfBirth:     input.DOB,
		EntityType:      input.EntityType,
		LastScreenedAt:  now,
		ValidUntil:      now.AddDate(0, 0, s.validityDays),
		Status:          decision.Status,
		RiskLevel:       decision.RiskLevel,
		Confidence:      decision.Confidence,
		Score:           decision.Score,
		UKSanctionsFlag: decision.UKSanctionsFlag,
		PEPFlag:         decision.PEPFlag,
		ResultBlob:      decision.ResultBlob,
		LastRequestor:   requestor,
		UpdatedAt:       now,
		ReviewState:     models.ReviewUnreviewed,
	}

	if existing != nil {
		if decisionUnchanged(existing, row) && !forceRescreen {
			row.ReviewState = existing.ReviewState
			row.ReviewOutcome = existing.ReviewOutcome
			row.ReviewNotes = existing.ReviewNotes
			row.ReviewClaimedBy = existing.ReviewClaimedBy
			row.ReviewClaimedAt = existing.ReviewClaimedAt
			row.ReviewCompletedBy = existing.ReviewCompletedBy
			row.ReviewCompletedAt = existing.ReviewCompletedAt
			row.FalsePositiveReason = existing.FalsePositiveReason
		}
	}

	sql := "UPSERT $rid CONTENT $row"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("evidence", fingerprint), "row": row}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := surrealdb.Query[[]models.EvidenceRow](ctx, s.db, sql, vars); err == nil {
			return row, nil
		} else {
			lastErr = err
		}
	}
	return nil, fmt.Errorf("failed to upsert evidence row after retries: %w", lastErr)
}

func (s *EvidenceStore) SearchByName(ctx context.Context, substring string, limit int) ([]*models.EvidenceRow, error) {
	if limit <= 0 {
		limit = 50
	}
	sql := "SELECT * FROM evidence WHERE string::contains(string::lowercase(display_name), string::lowercase($q)) LIMIT $limit"
	vars := map[string]any{"q": substring, "limit": limit}

	results, err := surrealdb.Query[[]models.EvidenceRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to search evidence by name: %w", err)
	}

	var rows []*models.EvidenceRow
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			rows = append(rows, &(*results)[0].Result[i])
		}
	}
	return rows, nil
}

func (s *EvidenceStore) SearchByFingerprint(ctx context.Context, fingerprint string) (*models.EvidenceRow, error) {
	return s.Get(ctx, fingerprint)
}

// ListValid returns every evidence row whose valid_until is still in the future.
func (s *EvidenceStore) ListValid(ctx context.Context) ([]*models.EvidenceRow, error) {
	sql := "SELECT * FROM evidence WHERE valid_until > $now"
	vars := map[string]any{"now": time.Now()}

	results, err := surrealdb.Query[[]models.EvidenceRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list valid evidence rows: %w", err)
	}

	var rows []*models.EvidenceRow
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			rows = append(rows, &(*results)[0].Result[i])
		}
	}
	return rows, nil
}

// MarkFalsePositive records an override flag without touching decision
// fields, the validity window, or the review workflow (§4.2, §4.8): this is
// an annotation on the row, not a review completion, so it leaves
// review_state exactly as it was. Claiming and completing the review still
// goes through ClaimReview/CompleteReview.
func (s *EvidenceStore) MarkFalsePositive(ctx context.Context, fingerprint, reason, actor string) (*models.EvidenceRow, error) {
	row, err := s.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("evidence row %s not found", fingerprint)
	}

	sql := `UPDATE $rid SET false_positive_reason = $reason`
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("evidence", fingerprint),
		"reason": reason,
	}
	if _, err := surrealdb.Query[[]models.EvidenceRow](ctx, s.db, sql, vars); err != nil {
		return nil, fmt.Errorf("failed to mark false positive: %w", err)
	}

	row.FalsePositiveReason = reason
	return row, nil
}

// ClaimReview atomically transitions a row from UNREVIEWED to IN_REVIEW,
// guarding the write with WHERE review_state = UNREVIEWED so a racing
// claimer loses (§4.8).
func (s *EvidenceStore) ClaimReview(ctx context.Context, fingerprint, actor string) (*models.EvidenceRow, error) {
	row, err := s.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}

	now := time.Now()
	sql := `UPDATE $rid SET review_state = $inReview, review_claimed_by = $actor,
		review_claimed_at = $now WHERE review_state = $unreviewed`
	vars := map[string]any{
		"rid":         surrealmodels.NewRecordID("evidence", fingerprint),
		"inReview":    models.ReviewInReview,
		"unreviewed":  models.ReviewUnreviewed,
		"actor":       actor,
		"now":         now,
	}
	result, err := surrealdb.Query[[]models.EvidenceRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to claim review: %w", err)
	}
	if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
		return nil, ErrReviewStateConflict
	}

	row.ReviewState = models.ReviewInReview
	row.ReviewClaimedBy = actor
	row.ReviewClaimedAt = &now
	return row, nil
}

// CompleteReview atomically transitions a row from IN_REVIEW to COMPLETED.
// Decision fields (status, risk_level, score, result_blob) are never
// touched by this call (§4.8 invariant).
func (s *EvidenceStore) CompleteReview(ctx context.Context, fingerprint, actor, outcome, notes string) (*models.EvidenceRow, error) {
	row, err := s.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}

	now := time.Now()
	sql := `UPDATE $rid SET review_state = $completed, review_outcome = $outcome,
		review_notes = $notes, review_completed_by = $actor, review_completed_at = $now
		WHERE review_state = $inReview`
	vars := map[string]any{
		"rid":       surrealmodels.NewRecordID("evidence", fingerprint),
		"completed": models.ReviewCompleted,
		"inReview":  models.ReviewInReview,
		"outcome":   outcome,
		"notes":     notes,
		"actor":     actor,
		"now":       now,
	}
	result, err := surrealdb.Query[[]models.EvidenceRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to complete review: %w", err)
	}
	if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
		return nil, ErrReviewStateConflict
	}

	row.ReviewState = models.ReviewCompleted
	row.ReviewOutcome = outcome
	row.ReviewNotes = notes
	row.ReviewCompletedBy = actor
	row.ReviewCompletedAt = &now
	return row, nil
}

func (s *EvidenceStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	sql := "DELETE FROM evidence WHERE last_screened_at < $cutoff"
	vars := map[string]any{"cutoff": cutoff}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to purge expired evidence: %w", err)
	}
	// SurrealDB DELETE doesn't return an affected count easily.
	return 0, nil
}

// decisionUnchanged reports whether a freshly computed decision matches the
// prior persisted decision on every field a reviewer would treat as material.
func decisionUnchanged(existing, fresh *models.EvidenceRow) bool {
	return existing.Status == fresh.Status &&
		existing.RiskLevel == fresh.RiskLevel &&
		existing.UKSanctionsFlag == fresh.UKSanctionsFlag &&
		existing.PEPFlag == fresh.PEPFlag
}

// Compile-time check
var _ interfaces.EvidenceStore = (*EvidenceStore)(nil)
