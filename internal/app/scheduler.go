package app

import (
	"context"
	"time"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
)

// startBacklogMonitor periodically logs the job queue's pending+running
// depth so an operator watching logs can see the Dispatcher's sync/queue
// threshold being crossed without polling the API.
func startBacklogMonitor(ctx context.Context, storage interfaces.StorageManager, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Backlog monitor: stopped")
			return
		case <-ticker.C:
			reportBacklog(ctx, storage, logger)
		}
	}
}

func reportBacklog(ctx context.Context, storage interfaces.StorageManager, logger *common.Logger) {
	count, err := storage.JobQueueStore().CountPendingPlusRunning(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Backlog monitor: failed to read queue depth")
		return
	}
	logger.Debug().Int("pending_plus_running", count).Msg("Backlog monitor: queue depth")
}
