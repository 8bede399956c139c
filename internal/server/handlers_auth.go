package server

import (
	"net/http"
	"strconv"

	"github.com/meridiancompliance/opcheck/internal/models"
)

type loginRequestBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin implements POST /auth/login: a minimal account login that
// issues a bearer token for the refresh/review/admin surface. Login/signup
// UX beyond this is out of scope (§1).
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var body loginRequestBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	if body.Email == "" || body.Password == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, "email and password are required", "credentials")
		return
	}

	user, err := s.app.Storage.InternalStore().GetUserByEmail(r.Context(), body.Email)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if user == nil || !checkPassword(user.PasswordHash, body.Password) {
		backoff := s.app.RateGovernor.RecordLoginFailure(body.Email)
		s.app.Storage.AuditSink().Record(r.Context(), models.AuditEvent{
			Actor:  body.Email,
			Action: models.AuditLoginFailed,
		})
		resp := map[string]interface{}{"error": "invalid email or password"}
		if backoff > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(backoff.Seconds())+1))
		}
		WriteJSON(w, http.StatusUnauthorized, resp)
		return
	}

	s.app.RateGovernor.RecordLoginSuccess(body.Email)

	token, err := signActorToken(user, &s.app.Config.Auth)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": int(s.app.Config.Auth.GetTokenExpiry().Seconds()),
		"role":       user.Role,
	})
}
