// Package refresh implements the Refresh Coordinator (RC): reacting to a
// newly-materialized watchlist snapshot by re-enqueueing evidence rows that
// may be affected by a UK-regime delta (§4.7).
package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/ekd"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/meridiancompliance/opcheck/internal/watchlist"
)

// Coordinator runs one Refresh Coordinator pass per Run call. A sync.Mutex
// provides the advisory lock keyed on refresh: this process is the only
// writer of refresh_runs, so in-process serialization is sufficient.
type Coordinator struct {
	storage interfaces.StorageManager
	holder  *watchlist.Holder
	logger  *common.Logger

	mu sync.Mutex
}

// New creates a Coordinator. holder is the same watchlist.Holder the
// Dispatcher and Worker read from — Run() installs the new snapshot into it
// after computing the delta against the snapshot it replaces.
func New(storage interfaces.StorageManager, holder *watchlist.Holder, logger *common.Logger) *Coordinator {
	return &Coordinator{storage: storage, holder: holder, logger: logger}
}

// Run executes one refresh pass against a newly materialized snapshot,
// per §4.7's numbered procedure.
func (c *Coordinator) Run(ctx context.Context, snapshot models.WatchlistSnapshot) (*models.RefreshRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ukRows := ukRegimeRows(snapshot)
	ukHash := hashRows(ukRows)

	prevHash, err := c.storage.RefreshRunStore().LastUKHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read previous uk hash: %w", err)
	}

	run := &models.RefreshRun{
		RunID:      uuid.New().String(),
		RanAt:      time.Now(),
		UKHash:     ukHash,
		PrevUKHash: prevHash,
		UKRowCount: len(ukRows),
	}

	if prevHash != "" && prevHash == ukHash {
		c.holder.Replace(snapshot)
		if err := c.storage.RefreshRunStore().Save(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to persist no-op refresh run: %w", err)
		}
		c.logger.Info().Str("run_id", run.RunID).Msg("Refresh: uk_hash unchanged, skipping enumeration")
		return run, nil
	}

	previous, err := c.holder.CurrentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	added, removed, changed := diffRows(ukRegimeRows(previous), ukRows)
	run.DeltaAdded = len(added)
	run.DeltaRemoved = len(removed)
	run.DeltaChanged = len(changed)

	c.holder.Replace(snapshot)

	candidates, err := c.selectCandidates(ctx, added, removed, changed)
	if err != nil {
		return nil, err
	}
	run.CandidateCount = len(candidates)

	for _, candidate := range candidates {
		job := &models.Job{
			Fingerprint:   candidate.Fingerprint,
			Name:          candidate.DisplayName,
			DOB:           candidate.DateOfBirth,
			EntityType:    candidate.EntityType,
			Requestor:     "refresh-coordinator",
			Reason:        models.ReasonPeriodicReScreen,
			RefreshRunID:  run.RunID,
			ForceRescreen: true,
		}
		outcome, err := c.storage.JobQueueStore().Enqueue(ctx, job)
		if err != nil {
			run.FailedCount++
			c.logger.Warn().Str("fingerprint", candidate.Fingerprint).Err(err).Msg("Refresh: failed to enqueue candidate")
			continue
		}
		switch outcome.Outcome {
		case models.EnqueueReused:
			run.ReusedCount++
		case models.EnqueueAlreadyPending:
			run.AlreadyPendingCount++
		default:
			run.QueuedCount++
		}
	}

	if err := c.storage.RefreshRunStore().Save(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist refresh run: %w", err)
	}

	c.logger.Info().
		Str("run_id", run.RunID).
		Int("delta_added", run.DeltaAdded).
		Int("delta_removed", run.DeltaRemoved).
		Int("delta_changed", run.DeltaChanged).
		Int("candidates", run.CandidateCount).
		Int("queued", run.QueuedCount).
		Msg("Refresh run complete")

	return run, nil
}

// selectCandidates identifies EvidenceRows that may be affected by the
// delta: rows referencing a removed or changed row, or a previously-cleared
// row whose normalized name prefix overlaps an added row. When the overlap
// heuristic yields nothing distinguishable from "everything", it falls back
// to every currently-valid row, per §4.7's explicitly sanctioned fallback.
func (c *Coordinator) selectCandidates(ctx context.Context, added, removed, changed []models.WatchlistRow) ([]*models.EvidenceRow, error) {
	valid, err := c.storage.EvidenceStore().ListValid(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list valid evidence rows: %w", err)
	}

	touchedRegimes := make(map[string]bool)
	for _, r := range removed {
		touchedRegimes[r.Regime] = true
	}
	for _, r := range changed {
		touchedRegimes[r.Regime] = true
	}

	addedPrefixes := make([]string, 0, len(added))
	for _, r := range added {
		if norm, err := ekd.NormalizeName(r.Name); err == nil && norm != "" {
			addedPrefixes = append(addedPrefixes, namePrefix(norm))
		}
	}

	var candidates []*models.EvidenceRow
	for _, row := range valid {
		if touchedRegimes[row.ResultBlob.Regime] {
			candidates = append(candidates, row)
			continue
		}
		if row.Status == models.StatusCleared {
			prefix := namePrefix(row.NormalizedName)
			for _, p := range addedPrefixes {
				if prefix != "" && prefix == p {
					candidates = append(candidates, row)
					break
				}
			}
		}
	}

	if len(candidates) == 0 {
		return valid, nil
	}
	return candidates, nil
}

func namePrefix(normalizedName string) string {
	fields := strings.Fields(normalizedName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func ukRegimeRows(snapshot models.WatchlistSnapshot) []models.WatchlistRow {
	var rows []models.WatchlistRow
	for _, r := range snapshot.Sanctions {
		if r.IsUK {
			rows = append(rows, r)
		}
	}
	for _, r := range snapshot.PEPs {
		if r.IsUK {
			rows = append(rows, r)
		}
	}
	return rows
}

// hashRows computes a deterministic fingerprint of the sorted UK-regime row
// identities, used as the uk_hash short-circuit.
func hashRows(rows []models.WatchlistRow) string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.RowID+"|"+r.Revision)
	}
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// diffRows compares two UK-regime row sets by RowID, classifying each as
// added, removed, or changed (same RowID, different Revision).
func diffRows(previous, current []models.WatchlistRow) (added, removed, changed []models.WatchlistRow) {
	prevByID := make(map[string]models.WatchlistRow, len(previous))
	for _, r := range previous {
		prevByID[r.RowID] = r
	}
	currByID := make(map[string]models.WatchlistRow, len(current))
	for _, r := range current {
		currByID[r.RowID] = r
	}

	for id, row := range currByID {
		prevRow, existed := prevByID[id]
		if !existed {
			added = append(added, row)
		} else if prevRow.Revision != row.Revision {
			changed = append(changed, row)
		}
	}
	for id, row := range prevByID {
		if _, stillPresent := currByID[id]; !stillPresent {
			removed = append(removed, row)
		}
	}
	return added, removed, changed
}
