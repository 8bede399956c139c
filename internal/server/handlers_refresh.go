package server

import (
	"net/http"

	"github.com/meridiancompliance/opcheck/internal/models"
)

func refreshRunBody(run *models.RefreshRun) map[string]interface{} {
	return map[string]interface{}{
		"run_id":  run.RunID,
		"ran_at":  run.RanAt,
		"uk_hash": run.UKHash,
		"delta": map[string]interface{}{
			"added":   run.DeltaAdded,
			"removed": run.DeltaRemoved,
			"changed": run.DeltaChanged,
		},
		"rescreen": map[string]interface{}{
			"candidates":      run.CandidateCount,
			"queued":          run.QueuedCount,
			"reused":          run.ReusedCount,
			"already_pending": run.AlreadyPendingCount,
			"failed":          run.FailedCount,
		},
	}
}

// handleRefreshTrigger implements POST /refresh_opensanctions (§4.7, §6): runs
// one Refresh Coordinator pass against the watchlist snapshot currently held
// by the provider. Ingestion of a new snapshot happens out-of-process (§1);
// this endpoint assumes that has already happened by the time it is called.
func (s *Server) handleRefreshTrigger(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	snapshot, err := s.app.Watchlist.CurrentSnapshot(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read watchlist snapshot")
		return
	}

	run, err := s.app.RefreshRunner.Run(r.Context(), snapshot)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "refresh run failed")
		return
	}

	s.app.Storage.AuditSink().Record(r.Context(), models.AuditEvent{
		Actor:  "internal-api-key",
		Action: models.AuditRefreshRun,
		Detail: map[string]interface{}{"run_id": run.RunID},
	})

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "completed",
		"refresh_run":  refreshRunBody(run),
	})
}

// handleRefreshGet implements GET /opcheck/refresh/{run_id} (§6).
func (s *Server) handleRefreshGet(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	runID := PathParam(r, "/opcheck/refresh/", "")
	if runID == "" {
		WriteError(w, http.StatusNotFound, "run_id is required in path")
		return
	}

	run, err := s.app.Storage.RefreshRunStore().Get(r.Context(), runID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read refresh run")
		return
	}
	if run == nil {
		WriteError(w, http.StatusNotFound, "refresh run not found")
		return
	}

	WriteJSON(w, http.StatusOK, refreshRunBody(run))
}
