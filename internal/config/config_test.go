package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, uint(2), cfg.UpstreamMaxRetries)
	assert.Equal(t, 150*time.Millisecond, cfg.UpstreamRetryBaseDelay)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.Empty(t, cfg.GatewayAPIKeys)

	openai := cfg.Providers["openai"]
	assert.Equal(t, "https://api.openai.com", openai.BaseURL)
	assert.Empty(t, openai.APIKey)
}

func TestLoadTrimsBaseURLAndAPIKey(t *testing.T) {
	t.Setenv("OPENAI_BASE_URL", "https://example.com/v1/")
	t.Setenv("OPENAI_API_KEY", "  sk-test  ")

	cfg, err := Load("")
	require.NoError(t, err)

	openai := cfg.Providers["openai"]
	assert.Equal(t, "https://example.com/v1", openai.BaseURL)
	assert.Equal(t, "sk-test", openai.APIKey)
}

func TestLoadSplitsGatewayAPIKeys(t *testing.T) {
	t.Setenv("GATEWAY_API_KEYS", " a, b ,,c ")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.GatewayAPIKeys)
}

func TestLoadOverridesRetryPolicy(t *testing.T) {
	t.Setenv("UPSTREAM_MAX_RETRIES", "5")
	t.Setenv("UPSTREAM_RETRY_BASE_DELAY_MS", "10")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint(5), cfg.UpstreamMaxRetries)
	assert.Equal(t, 10*time.Millisecond, cfg.UpstreamRetryBaseDelay)
}

func TestHasAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.HasAPIKey("anthropic"))
	assert.False(t, cfg.HasAPIKey("openai"))
}
