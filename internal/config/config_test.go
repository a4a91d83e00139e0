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

	assert.Equal(t, "be-approvals", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 600*time.Second, cfg.Approval.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Approval.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Approval.SweepInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APPROVAL_TIMEOUT", "120s")
	t.Setenv("APPROVAL_POLL_INTERVAL", "500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 120*time.Second, cfg.Approval.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Approval.PollInterval)
}

func TestLoadRejectsPollNotShorterThanTimeout(t *testing.T) {
	t.Setenv("APPROVAL_TIMEOUT", "2s")
	t.Setenv("APPROVAL_POLL_INTERVAL", "2s")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("APPROVAL_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 600*time.Second, cfg.Approval.Timeout)
}
