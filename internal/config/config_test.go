package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDRESS", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.True(t, cfg.RequireAPIKey)
	assert.Empty(t, cfg.JWTSecret)
	assert.False(t, cfg.RedisEnabled())
	assert.ErrorIs(t, cfg.RequireDatabase(), ErrDatabaseRequired)
	assert.Equal(t, 30*time.Second, cfg.Tools.ExecutionTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Tools.VolumeLookupTimeout)
	assert.Equal(t, time.Duration(0), cfg.HTTP.WriteTimeout)
	assert.Equal(t, 100, cfg.BillingQueue.BatchSize)
	assert.False(t, cfg.AuditFile.Enabled)
	assert.False(t, cfg.AuditS3.Enabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://gw@db/gw")
	t.Setenv("REDIS_ADDRESS", "redis:6379")
	t.Setenv("REQUIRE_API_KEY", "false")
	t.Setenv("TOOL_EXECUTION_TIMEOUT", "5s")
	t.Setenv("BILLING_QUEUE_MAX_RETRIES", "7")
	t.Setenv("AUDIT_FILE_MAX_SIZE", "2048")
	t.Setenv("PRICING_FILE", "/etc/gw/pricing.yaml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.NoError(t, cfg.RequireDatabase())
	assert.True(t, cfg.RedisEnabled())
	assert.False(t, cfg.RequireAPIKey)
	assert.Equal(t, 5*time.Second, cfg.Tools.ExecutionTimeout)
	assert.Equal(t, 7, cfg.BillingQueue.MaxRetries)
	assert.Equal(t, int64(2048), cfg.AuditFile.MaxSize)
	assert.Equal(t, "/etc/gw/pricing.yaml", cfg.Pricing.File)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("TRACKER_STORE_TIMEOUT", "soon")
	t.Setenv("AUDIT_FILE_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 2*time.Second, cfg.Tracker.StoreTimeout)
	assert.False(t, cfg.AuditFile.Enabled)
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	t.Setenv("AUDIT_S3_ENABLED", "true")
	t.Setenv("AUDIT_S3_BUCKET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("AUDIT_S3_BUCKET", "audit-bucket")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "audit-bucket", cfg.AuditS3.S3Bucket)
}
