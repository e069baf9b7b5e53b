package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "STORE_DRIVER", "JWT_ACCESS_TTL", "MAIL_PROVIDER", "MAIL_FAILURE_FATAL", "REMOTE_TIMEOUT"} {
		t.Setenv(k, "")
	}
	cfg := ConfigFromEnv()

	assert.Equal(t, "0.0.0.0:8431", cfg.HTTPAddr)
	assert.Equal(t, "mongo", cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, "log", cfg.Mail.Provider)
	assert.True(t, cfg.Mail.FailureIsFatal)
	assert.Equal(t, 3*time.Second, cfg.Breaker.CallTimeout)
	assert.Equal(t, uint32(10), cfg.Breaker.MinRequests)
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("JWT_ACCESS_TTL", "15m")
	t.Setenv("JWT_REFRESH_TTL", "3600")
	t.Setenv("MAIL_FAILURE_FATAL", "false")
	t.Setenv("USER_SERVICE_URL", "http://user-service:8080/")
	t.Setenv("BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("BREAKER_WINDOW_SIZE", "20")

	cfg := ConfigFromEnv()

	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, time.Hour, cfg.JWT.RefreshTTL)
	assert.False(t, cfg.Mail.FailureIsFatal)
	assert.Equal(t, "http://user-service:8080", cfg.UserServiceURL)
	assert.InDelta(t, 0.25, cfg.Breaker.FailureRatio, 0.0001)
	assert.Equal(t, uint32(20), cfg.Breaker.WindowSize)
}

func TestEnvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_TTL", "soon")
	assert.Equal(t, time.Minute, envDuration("SOME_TTL", time.Minute))
}
