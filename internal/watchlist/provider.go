// Package watchlist provides the in-process read-handle implementation of
// interfaces.WatchlistProvider. Materializing a snapshot from the upstream
// sanctions/PEP datasets is the watchlist data ingestion pipeline, which is
// explicitly out of scope (§1) — this package only holds whatever snapshot
// was last handed to it and serves it to readers under a lock.
package watchlist

import (
	"context"
	"sync"

	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
)

// Holder is a concurrency-safe in-memory WatchlistProvider.
type Holder struct {
	mu       sync.RWMutex
	snapshot models.WatchlistSnapshot
}

// NewHolder creates an empty Holder. Replace must be called before any
// screening decision can be made with a non-empty snapshot.
func NewHolder() *Holder {
	return &Holder{}
}

// CurrentSnapshot implements interfaces.WatchlistProvider.
func (h *Holder) CurrentSnapshot(_ context.Context) (models.WatchlistSnapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot, nil
}

// Replace atomically installs a newly-materialized snapshot, as handed in
// by whatever process runs the (out-of-scope) ingestion pipeline.
func (h *Holder) Replace(snapshot models.WatchlistSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = snapshot
}

var _ interfaces.WatchlistProvider = (*Holder)(nil)
