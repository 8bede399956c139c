package server

import (
	"errors"
	"net/http"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/meridiancompliance/opcheck/internal/services/review"
	"github.com/meridiancompliance/opcheck/internal/storage/surrealdb"
)

// handleEvidenceGet implements GET /opcheck/evidence/{fingerprint}.
func (s *Server) handleEvidenceGet(w http.ResponseWriter, r *http.Request, fingerprint string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	row, err := s.app.Storage.EvidenceStore().Get(r.Context(), fingerprint)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read evidence")
		return
	}
	if row == nil {
		WriteError(w, http.StatusNotFound, "evidence not found")
		return
	}
	WriteJSON(w, http.StatusOK, wireBody(row))
}

// handleEvidenceSearch implements GET /opcheck/evidence?q=<substring>&limit=<n>.
func (s *Server) handleEvidenceSearch(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, "q is required", "q")
		return
	}
	limit := parseLimit(r, 50, 200)

	rows, err := s.app.Storage.EvidenceStore().SearchByName(r.Context(), q, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "search failed")
		return
	}

	bodies := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		bodies[i] = wireBody(row)
	}
	WriteJSON(w, http.StatusOK, bodies)
}

type falsePositiveBody struct {
	Reason string `json:"reason"`
}

// handleMarkFalsePositive implements POST /opcheck/evidence/{fingerprint}/false-positive.
func (s *Server) handleMarkFalsePositive(w http.ResponseWriter, r *http.Request, fingerprint string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var body falsePositiveBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	if body.Reason == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, "reason is required", "reason")
		return
	}

	actor := common.ActorOrAnonymous(r.Context())
	row, err := s.app.Storage.EvidenceStore().MarkFalsePositive(r.Context(), fingerprint, body.Reason, actor)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to mark false positive")
		return
	}

	s.app.Storage.AuditSink().Record(r.Context(), models.AuditEvent{
		Actor:       actor,
		Action:      models.AuditFalsePositive,
		Fingerprint: fingerprint,
		Outcome:     "false_positive_marked",
	})

	WriteJSON(w, http.StatusOK, wireBody(row))
}

type reviewCompleteBody struct {
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}

// handleReviewClaim implements POST /opcheck/evidence/{fingerprint}/review/claim.
func (s *Server) handleReviewClaim(w http.ResponseWriter, r *http.Request, fingerprint string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	actor := common.ActorOrAnonymous(r.Context())
	row, err := s.app.ReviewService.Claim(r.Context(), fingerprint, actor)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	s.app.Storage.AuditSink().Record(r.Context(), models.AuditEvent{
		Actor:       actor,
		Action:      models.AuditReviewClaimed,
		Fingerprint: fingerprint,
	})

	WriteJSON(w, http.StatusOK, wireBody(row))
}

// handleReviewComplete implements POST /opcheck/evidence/{fingerprint}/review/complete.
func (s *Server) handleReviewComplete(w http.ResponseWriter, r *http.Request, fingerprint string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var body reviewCompleteBody
	if !DecodeJSON(w, r, &body) {
		return
	}

	actor := common.ActorOrAnonymous(r.Context())
	row, err := s.app.ReviewService.Complete(r.Context(), fingerprint, actor, body.Outcome, body.Notes)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	s.app.Storage.AuditSink().Record(r.Context(), models.AuditEvent{
		Actor:       actor,
		Action:      models.AuditReviewCompleted,
		Fingerprint: fingerprint,
		Outcome:     body.Outcome,
	})

	WriteJSON(w, http.StatusOK, wireBody(row))
}

func writeReviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, review.ErrInvalidOutcome):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "outcome")
	case errors.Is(err, review.ErrNotesTooShort):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "notes")
	case errors.Is(err, surrealdb.ErrNotFound):
		WriteError(w, http.StatusNotFound, "evidence not found")
	case errors.Is(err, surrealdb.ErrReviewStateConflict):
		WriteError(w, http.StatusConflict, "review is not in the required state for this transition")
	default:
		WriteError(w, http.StatusInternalServerError, "review operation failed")
	}
}
