package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// breakglassAdminID is the fixed account ID used to gate the admin/refresh/
// review endpoints (§3 expansion) before any real user management exists.
const breakglassAdminID = "breakglass-admin"

// ensureBreakglassAdmin creates the break-glass admin user if it does not
// already exist. Returns the cleartext password if a new user was created,
// or "" if the user already exists.
func ensureBreakglassAdmin(ctx context.Context, store interfaces.InternalStore, logger *common.Logger) string {
	if _, err := store.GetUser(ctx, breakglassAdminID); err == nil {
		logger.Info().Msg("Break-glass admin already exists")
		return ""
	}

	buf := make([]byte, 18) // 18 bytes -> 24 chars in base64
	if _, err := rand.Read(buf); err != nil {
		logger.Error().Err(err).Msg("Failed to generate random password for break-glass admin")
		return ""
	}
	password := base64.RawURLEncoding.EncodeToString(buf)

	passwordBytes := []byte(password)
	if len(passwordBytes) > 72 {
		passwordBytes = passwordBytes[:72]
	}
	hash, err := bcrypt.GenerateFromPassword(passwordBytes, 10)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to hash break-glass admin password")
		return ""
	}

	user := &models.InternalUser{
		UserID:       breakglassAdminID,
		Email:        "admin@opcheck.local",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		CreatedAt:    time.Now(),
	}

	if err := store.SaveUser(ctx, user); err != nil {
		logger.Error().Err(err).Msg("Failed to save break-glass admin user")
		return ""
	}

	logger.Warn().
		Str("email", "admin@opcheck.local").
		Str("password", password).
		Msg("Break-glass admin created")

	return password
}
