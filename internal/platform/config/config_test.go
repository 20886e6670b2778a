package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timekeep/pkg/platform/resilience"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("TIMEKEEP_CONFIG", "")
	t.Setenv("DEDUP_TOLERANCE", "")
	t.Setenv("QUALITY_THRESHOLD", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 60*time.Second, cfg.Ingest.DedupTolerance)
	assert.Equal(t, 40, cfg.Ingest.QualityThreshold)
	assert.NotEmpty(t, cfg.Server.JWTSigningKey)
	assert.Contains(t, cfg.Stacks, resilience.DependencyRegistry)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TIMEKEEP_CONFIG", "")
	t.Setenv("DEDUP_TOLERANCE", "90s")
	t.Setenv("QUALITY_THRESHOLD", "55")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Ingest.DedupTolerance)
	assert.Equal(t, 55, cfg.Ingest.QualityThreshold)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("TIMEKEEP_CONFIG", "")

	t.Run("unparseable tolerance", func(t *testing.T) {
		t.Setenv("DEDUP_TOLERANCE", "soon")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("quality out of range", func(t *testing.T) {
		t.Setenv("DEDUP_TOLERANCE", "")
		t.Setenv("QUALITY_THRESHOLD", "150")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}

func TestYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timekeep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ingest:
  dedup_tolerance: 30s
queues:
  anomaly:
    capacity: 16
    workers: 1
rules:
  failed_login_threshold: 50
resilience:
  registry:
    timeout: 500ms
`), 0o600))

	t.Setenv("TIMEKEEP_CONFIG", path)
	t.Setenv("DEDUP_TOLERANCE", "")
	t.Setenv("QUALITY_THRESHOLD", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Ingest.DedupTolerance)
	assert.Equal(t, 16, cfg.Queues.Anomaly.Capacity)
	assert.Equal(t, 50, cfg.Rules.FailedLoginThreshold)
	// untouched keys keep defaults
	assert.Equal(t, 40, cfg.Ingest.QualityThreshold)
	assert.Equal(t, 15*time.Minute, cfg.Rules.FailedLoginWindow)

	registry := cfg.Stacks[resilience.DependencyRegistry]
	assert.Equal(t, 500*time.Millisecond, registry.Timeout)
	assert.Equal(t, resilience.DefaultRetryConfig().MaxAttempts, registry.Retry.MaxAttempts)
	assert.Equal(t, 10, registry.Breaker.MinThroughput)
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	err := cfg.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestUpstreamsAndDevices(t *testing.T) {
	t.Setenv("TIMEKEEP_CONFIG", "")
	t.Setenv("DEDUP_TOLERANCE", "")
	t.Setenv("QUALITY_THRESHOLD", "")
	t.Setenv("REGISTRY_URL", "http://registry.internal")
	t.Setenv("SHIFT_TOKEN", "s3cret")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://registry.internal", cfg.Registry.URL)
	assert.Equal(t, "s3cret", cfg.Shifts.Token)
	assert.Equal(t, 5*time.Minute, cfg.Registry.CacheTTL)

	require.NoError(t, cfg.Overlay([]byte(`
devices:
  devices:
    - serial: ZK-001
`)))
	assert.Error(t, cfg.Validate(), "device without tenant")
}

func TestLoadExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timekeep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
notify:
  origin_patterns: ["ops.example.com"]
`), 0o600))
	t.Setenv("TIMEKEEP_CONFIG", filepath.Join(t.TempDir(), "ignored.yaml"))
	t.Setenv("DEDUP_TOLERANCE", "")
	t.Setenv("QUALITY_THRESHOLD", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops.example.com"}, cfg.Notify.OriginPatterns)
	assert.Equal(t, 64, cfg.Notify.SubscriberBuffer)
}
