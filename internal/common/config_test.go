package common

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Screening.SyncThreshold)
	assert.Equal(t, 2, cfg.Screening.WorkerCount)
	assert.Equal(t, 365, cfg.Screening.ValidityDays)
	assert.Equal(t, 75.0, cfg.Screening.MatchThreshold)
	assert.Equal(t, 60.0, cfg.Screening.SuggestionThreshold)
}

func TestApplyEnvOverrides(t *testing.T) {
	os.Setenv("OPCHECK_PORT", "9090")
	os.Setenv("OPCHECK_WORKER_COUNT", "4")
	os.Setenv("OPCHECK_INTERNAL_API_KEY", "test-key")
	defer os.Unsetenv("OPCHECK_PORT")
	defer os.Unsetenv("OPCHECK_WORKER_COUNT")
	defer os.Unsetenv("OPCHECK_INTERNAL_API_KEY")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Screening.WorkerCount)
	assert.Equal(t, "test-key", cfg.Screening.InternalApiKey)
}

func TestLoadConfig_MissingFileIsSkipped(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.toml")
	assert.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
}

func TestIsProduction(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.False(t, cfg.IsProduction())
	cfg.Environment = "production"
	assert.True(t, cfg.IsProduction())
}

func TestValidateRequired_DevDefaultsFlagged(t *testing.T) {
	cfg := NewDefaultConfig()
	missing := cfg.ValidateRequired()
	assert.Contains(t, missing, "auth.jwt_secret")
	assert.Contains(t, missing, "screening.internal_api_key")
}

func TestValidateRequired_SatisfiedWhenSet(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.JWTSecret = "a-properly-long-production-signing-secret"
	cfg.Screening.InternalApiKey = "prod-key"
	missing := cfg.ValidateRequired()
	assert.NotContains(t, missing, "auth.jwt_secret")
	assert.NotContains(t, missing, "screening.internal_api_key")
}
