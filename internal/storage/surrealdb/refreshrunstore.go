package surrealdb

import (
	"context"
	"fmt"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RefreshRunStore persists RefreshRun summaries (§3, §4.7).
type RefreshRunStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewRefreshRunStore creates a new RefreshRunStore.
func NewRefreshRunStore(db *surrealdb.DB, logger *common.Logger) *RefreshRunStore {
	return &RefreshRunStore{db: db, logger: logger}
}

func (s *RefreshRunStore) Save(ctx context.Context, run *models.RefreshRun) error {
	sql := "UPSERT $rid CONTENT $run"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("refresh_runs", run.RunID), "run": run}
	if _, err := surrealdb.Query[[]models.RefreshRun](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save refresh run: %w", err)
	}
	return nil
}

func (s *RefreshRunStore) Get(ctx context.Context, runID string) (*models.RefreshRun, error) {
	run, err := surrealdb.Select[models.RefreshRun](ctx, s.db, surrealmodels.NewRecordID("refresh_runs", runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select refresh run: %w", err)
	}
	return run, nil
}

// LastUKHash returns the UK regime content hash recorded by the most recent
// refresh run, or empty string if none has run yet.
func (s *RefreshRunStore) LastUKHash(ctx context.Context) (string, error) {
	sql := "SELECT uk_hash FROM refresh_runs ORDER BY ran_at DESC LIMIT 1"

	type hashRow struct {
		UKHash string `json:"uk_hash"`
	}
	results, err := surrealdb.Query[[]hashRow](ctx, s.db, sql, nil)
	if err != nil {
		return "", fmt.Errorf("failed to query last UK hash: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].UKHash, nil
	}
	return "", nil
}

var _ interfaces.RefreshRunStore = (*RefreshRunStore)(nil)
