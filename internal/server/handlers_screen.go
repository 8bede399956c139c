package server

import (
	"errors"
	"net/http"

	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/meridiancompliance/opcheck/internal/services/dispatcher"
)

type screenRequestBody struct {
	Name              string `json:"name"`
	DOB               string `json:"dob"`
	EntityType        string `json:"entity_type"`
	Requestor         string `json:"requestor"`
	ReasonForCheck    string `json:"reason_for_check"`
	BusinessReference string `json:"business_reference"`
	SearchBackend     string `json:"search_backend"`
}

func (b screenRequestBody) toRequest() dispatcher.Request {
	entityType := b.EntityType
	if entityType == "" {
		entityType = "Person"
	}
	return dispatcher.Request{
		Name:              b.Name,
		DOB:               b.DOB,
		EntityType:        entityType,
		Requestor:         b.Requestor,
		Reason:            b.ReasonForCheck,
		BusinessReference: b.BusinessReference,
		SearchBackend:     b.SearchBackend,
	}
}

// handleScreen implements POST /opcheck (§6).
func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var body screenRequestBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	if body.BusinessReference == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, "business_reference is required", "business_reference")
		return
	}

	outcome, err := s.app.Dispatcher.Screen(r.Context(), body.toRequest())
	if err != nil {
		if errors.Is(err, dispatcher.ErrInvalidInput) {
			WriteErrorWithCode(w, http.StatusBadRequest, "invalid screening request", "invalid_input")
			return
		}
		WriteError(w, http.StatusInternalServerError, "screening failed")
		return
	}

	s.writeScreenOutcome(w, outcome)
}

func (s *Server) writeScreenOutcome(w http.ResponseWriter, outcome dispatcher.Outcome) {
	switch outcome.Kind {
	case dispatcher.OutcomeCached, dispatcher.OutcomeSynchronous:
		if outcome.Row != nil {
			WriteJSON(w, http.StatusOK, wireBody(outcome.Row))
			return
		}
		// Non-persistent inline mode: no EvidenceRow was written, so respond
		// using the Decision directly.
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"Is PEP":        outcome.Decision.PEPFlag,
			"Is Sanctioned": outcome.Decision.Status == models.StatusFailSanction,
			"Confidence":    outcome.Decision.Confidence,
			"Score":         outcome.Decision.Score,
			"Risk Level":    outcome.Decision.RiskLevel,
			"Top Matches":   outcome.Decision.ResultBlob.TopMatches,
			"Match Found":   outcome.Decision.Status != models.StatusCleared,
			"Check Summary": outcome.Decision.ResultBlob.CheckSummary,
			"entity_key":    outcome.Fingerprint,
		})
	default:
		location := "/opcheck/jobs/" + outcome.JobID
		w.Header().Set("Location", location)
		WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"job_id":   outcome.JobID,
			"location": location,
		})
	}
}

// handleBulkScreen implements POST /opcheck/bulk (§6): an array of up to 500
// submit bodies, returning an equal-length array of per-item outcomes.
func (s *Server) handleBulkScreen(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var bodies []screenRequestBody
	if !DecodeJSON(w, r, &bodies) {
		return
	}
	if len(bodies) > 500 {
		WriteErrorWithCode(w, http.StatusBadRequest, "bulk requests are limited to 500 items", "too_many_items")
		return
	}

	results := make([]map[string]interface{}, len(bodies))
	for i, body := range bodies {
		outcome, err := s.app.Dispatcher.Screen(r.Context(), body.toRequest())
		if err != nil {
			results[i] = map[string]interface{}{"status": "error", "error": err.Error()}
			continue
		}
		item := map[string]interface{}{"status": outcome.Kind}
		if outcome.JobID != "" {
			item["job_id"] = outcome.JobID
		}
		results[i] = item
	}

	WriteJSON(w, http.StatusOK, results)
}

// handleJobStatus implements GET /opcheck/jobs/{job_id} (§6).
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := PathParam(r, "/opcheck/jobs/", "")
	if jobID == "" {
		WriteError(w, http.StatusNotFound, "job_id is required in path")
		return
	}

	job, err := s.app.Storage.JobQueueStore().Status(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read job status")
		return
	}
	if job == nil {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := map[string]interface{}{
		"status": job.Status,
		"job_id": job.JobID,
	}
	if job.ErrorMessage != "" {
		resp["error_message"] = job.ErrorMessage
	}
	if job.Status == models.JobStatusCompleted {
		if row, err := s.app.Storage.EvidenceStore().SearchByFingerprint(r.Context(), job.Fingerprint); err == nil && row != nil {
			resp["result"] = wireBody(row)
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}

// handleJobsStream implements GET /opcheck/jobs/stream, a WebSocket feed of
// job lifecycle events (§4.6 expansion).
func (s *Server) handleJobsStream(w http.ResponseWriter, r *http.Request) {
	if s.app.WorkerPool == nil {
		WriteError(w, http.StatusServiceUnavailable, "background worker pool is not enabled")
		return
	}
	s.app.WorkerPool.Hub().ServeWS(w, r)
}
