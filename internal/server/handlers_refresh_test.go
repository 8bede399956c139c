package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/stretchr/testify/require"
)

func TestHandleRefreshTrigger_NoOpWhenHashUnchanged(t *testing.T) {
	s, storage := newTestServer(interfaces.Decision{}, nil)
	storage.refresh.lastUKHash = "" // first run always proceeds with an empty prior hash

	req := httptest.NewRequest(http.MethodPost, "/refresh_opensanctions", nil)
	rr := httptest.NewRecorder()

	s.handleRefreshTrigger(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Contains(t, got, "refresh_run")
	require.Len(t, storage.audit.events, 1)
	require.Equal(t, models.AuditRefreshRun, storage.audit.events[0].Action)
}

func TestHandleRefreshGet_NotFound(t *testing.T) {
	s, _ := newTestServer(interfaces.Decision{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/opcheck/refresh/missing", nil)
	rr := httptest.NewRecorder()

	s.handleRefreshGet(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleRefreshGet_ReturnsPersistedRun(t *testing.T) {
	s, storage := newTestServer(interfaces.Decision{}, nil)
	storage.refresh.runs["run-1"] = &models.RefreshRun{RunID: "run-1", UKHash: "abc", QueuedCount: 3}

	req := httptest.NewRequest(http.MethodGet, "/opcheck/refresh/run-1", nil)
	rr := httptest.NewRecorder()

	s.handleRefreshGet(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "run-1", got["run_id"])
}
