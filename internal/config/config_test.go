package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("missing-env", "")
	require.NoError(t, err)

	assert.Equal(t, 30000, cfg.AI.TimeoutMs)
	assert.Equal(t, 2, cfg.AI.MaxRetries)
	assert.Equal(t, 1000, cfg.AI.RetryDelayMs)
	assert.Equal(t, "claude-first", cfg.AI.ModelStrategy)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 1000, cfg.Metrics.QueueMax)
	assert.Equal(t, 2000, cfg.Metrics.FlushMs)
	assert.Equal(t, 50, cfg.Metrics.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout())
	assert.Equal(t, 2*time.Second, cfg.Metrics.FlushInterval())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AI_TIMEOUT_MS", "5000")
	t.Setenv("AI_MAX_RETRIES", "4")
	t.Setenv("AI_RETRY_DELAY_MS", "250")
	t.Setenv("AI_MODEL_STRATEGY", "round-robin")
	t.Setenv("AI_METRICS_ENABLED", "false")
	t.Setenv("AI_METRICS_QUEUE_MAX", "20")
	t.Setenv("AI_METRICS_DIR", "/tmp/ai-metrics")
	t.Setenv("APP_SERVER_PORT", "9090")

	cfg, err := Load("test", "")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.AI.TimeoutMs)
	assert.Equal(t, 4, cfg.AI.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.AI.RetryDelay())
	assert.Equal(t, "round-robin", cfg.AI.ModelStrategy)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 20, cfg.Metrics.QueueMax)
	assert.Equal(t, "/tmp/ai-metrics", cfg.Metrics.Dir)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadNormalizesInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AI_TIMEOUT_MS", "-1")
	t.Setenv("AI_MODEL_STRATEGY", "cheapest")
	t.Setenv("AI_METRICS_QUEUE_MAX", "0")

	cfg, err := Load("test", "")
	require.NoError(t, err)

	assert.Equal(t, 30000, cfg.AI.TimeoutMs)
	assert.Equal(t, "claude-first", cfg.AI.ModelStrategy)
	assert.Equal(t, 1000, cfg.Metrics.QueueMax)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.yaml")
	content := `
ai:
  timeout_ms: 12000
  model_strategy: openai-first
metrics:
  batch_size: 10
database:
  driver: postgres
  host: db.internal
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load("dev", path)
	require.NoError(t, err)

	assert.Equal(t, 12000, cfg.AI.TimeoutMs)
	assert.Equal(t, "openai-first", cfg.AI.ModelStrategy)
	assert.Equal(t, 10, cfg.Metrics.BatchSize)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load("dev", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLiveReadsEnvOnEveryCall(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("test", "")
	require.NoError(t, err)

	t.Setenv("ROOM_CLASSIFIER_AB_SPLIT", "25")
	assert.Equal(t, "25", cfg.Live().GetString("ROOM_CLASSIFIER_AB_SPLIT"))

	t.Setenv("ROOM_CLASSIFIER_AB_SPLIT", "40")
	assert.Equal(t, "40", cfg.Live().GetString("ROOM_CLASSIFIER_AB_SPLIT"))
}
