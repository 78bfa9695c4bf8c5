package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Search.BucketCount)
	assert.Equal(t, 1440, cfg.Search.RequestWindow)
	assert.Equal(t, "sequential", cfg.Search.Policy)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "document-ingest", cfg.Kafka.Topics.DocumentIngest)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
search:
  policy: parallel
  workers: 3
  stopWords: [and, in, on]
redis:
  enabled: true
  cacheTTL: 5s
`), 0o644))

	t.Setenv("SP_SERVER_PORT", "9100")
	t.Setenv("SP_SEARCH_BUCKET_COUNT", "16")
	t.Setenv("SP_KAFKA_ENABLED", "true")
	t.Setenv("SP_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "parallel", cfg.Search.Policy)
	assert.Equal(t, 3, cfg.Search.Workers)
	assert.Equal(t, 16, cfg.Search.BucketCount)
	assert.Equal(t, []string{"and", "in", "on"}, cfg.Search.StopWords)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Redis.CacheTTL)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsInvalidSearch(t *testing.T) {
	t.Setenv("SP_SEARCH_POLICY", "async")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSearchValidate(t *testing.T) {
	valid := SearchConfig{BucketCount: 1, RequestWindow: 1, Policy: "PAR"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		cfg  SearchConfig
	}{
		{"zero buckets", SearchConfig{BucketCount: 0, RequestWindow: 1}},
		{"negative workers", SearchConfig{BucketCount: 1, RequestWindow: 1, Workers: -1}},
		{"zero window", SearchConfig{BucketCount: 1}},
		{"bad policy", SearchConfig{BucketCount: 1, RequestWindow: 1, Policy: "fast"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}
