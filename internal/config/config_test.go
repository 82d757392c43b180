package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, "api", cfg.Role)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, time.Second, cfg.IdleBackoff())
	assert.Equal(t, 2*time.Second, cfg.ErrorBackoff())
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 30, cfg.ClaimLeaseSeconds())
	assert.Equal(t, "v1", cfg.ArtifactContractVersion)
	assert.Equal(t, "strict", cfg.ArtifactCompatPolicy)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("APP_ROLE", "worker-normalize")
	t.Setenv("WORKER_POLL_INTERVAL_MS", "50")
	t.Setenv("WORKER_CLAIM_LEASE_SECONDS", "120")
	t.Setenv("ARTIFACT_COMPAT_POLICY", "compatible")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "worker-normalize", cfg.Role)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 120, cfg.ClaimLeaseSeconds())
	assert.Equal(t, "compatible", cfg.ArtifactCompatPolicy)
}

func TestNonPositiveKnobsFallBack(t *testing.T) {
	t.Setenv("WORKER_POLL_INTERVAL_MS", "0")
	t.Setenv("WORKER_CLAIM_LEASE_SECONDS", "-5")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 30, cfg.ClaimLeaseSeconds())
}

func TestEnvHelpers(t *testing.T) {
	assert.True(t, Config{AppEnv: "Dev"}.IsDev())
	assert.True(t, Config{AppEnv: "PROD"}.IsProd())
	assert.True(t, Config{AppEnv: "test"}.IsTest())
	assert.False(t, Config{AppEnv: "test"}.IsProd())
}
