package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("APP_ENV", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("LOCK_TTL", "")
	t.Setenv("LOCK_WAIT", "")
	t.Setenv("RECHECK_AVAILABILITY_ON_UPDATE", "")
	t.Setenv("CANCELLED_FREES_SLOT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
	assert.Equal(t, 3*time.Second, cfg.LockWait)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.False(t, cfg.RecheckAvailabilityOnUpdate)
	assert.False(t, cfg.CancelledFreesSlot)
}

func TestLoad_JWTSecretRequiredInProd(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_RedisURLAndKnobs(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_URL", "redis://booker:pw@redis.internal:6380")
	t.Setenv("LOCK_TTL", "3")
	t.Setenv("LOCK_WAIT", "750ms")
	t.Setenv("SHUTDOWN_TIMEOUT", "1m")
	t.Setenv("RECHECK_AVAILABILITY_ON_UPDATE", "true")
	t.Setenv("CANCELLED_FREES_SLOT", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	assert.Equal(t, "booker", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
	assert.Equal(t, 750*time.Millisecond, cfg.LockWait)
	assert.Equal(t, time.Minute, cfg.ShutdownTimeout)
	assert.True(t, cfg.RecheckAvailabilityOnUpdate)
	assert.True(t, cfg.CancelledFreesSlot)
}

func TestGetDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("SOME_TIMEOUT", "soon")
	assert.Equal(t, 7*time.Second, getDuration("SOME_TIMEOUT", 7*time.Second))
}
