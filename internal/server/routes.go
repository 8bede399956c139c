package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/meridiancompliance/opcheck/internal/common"
)

// registerRoutes sets up all REST API routes on the mux (§6).
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/version", s.handleVersion)

	// Screening
	mux.HandleFunc("/opcheck/bulk", s.handleBulkScreen)
	mux.HandleFunc("/opcheck/jobs/stream", s.handleJobsStream)
	mux.HandleFunc("/opcheck/jobs/", s.handleJobStatus)
	mux.HandleFunc("/opcheck", s.handleScreen)

	// Evidence / review
	mux.HandleFunc("/opcheck/evidence", s.handleEvidenceSearch)
	mux.HandleFunc("/opcheck/evidence/", s.routeEvidence)

	// Refresh coordinator
	mux.HandleFunc("/opcheck/refresh/", s.handleRefreshGet)
	mux.HandleFunc("/refresh_opensanctions", s.internalOnly(s.handleRefreshTrigger))

	// Auth
	mux.HandleFunc("/auth/login", s.handleLogin)
}

// internalOnly wraps h with the internal-API-key/allowlist gate (§4.9), used
// for the refresh trigger and other administrative endpoints.
func (s *Server) internalOnly(h http.HandlerFunc) http.HandlerFunc {
	wrapped := internalKeyMiddleware(s.app.Config)(h)
	return wrapped.ServeHTTP
}

// routeEvidence dispatches /opcheck/evidence/{fingerprint}[/false-positive|/review/claim|/review/complete].
func (s *Server) routeEvidence(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/opcheck/evidence/")
	if path == "" {
		WriteError(w, http.StatusNotFound, "fingerprint is required in path")
		return
	}

	parts := strings.SplitN(path, "/", 2)
	fingerprint := parts[0]
	if len(parts) == 1 {
		s.handleEvidenceGet(w, r, fingerprint)
		return
	}

	switch parts[1] {
	case "false-positive":
		s.internalOnly(func(w http.ResponseWriter, r *http.Request) {
			s.handleMarkFalsePositive(w, r, fingerprint)
		})(w, r)
	case "review/claim":
		s.internalOnly(func(w http.ResponseWriter, r *http.Request) {
			s.handleReviewClaim(w, r, fingerprint)
		})(w, r)
	case "review/complete":
		s.internalOnly(func(w http.ResponseWriter, r *http.Request) {
			s.handleReviewComplete(w, r, fingerprint)
		})(w, r)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

func parseLimit(r *http.Request, def, max int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
