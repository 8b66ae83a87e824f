package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	cfg.Logging.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "updates", cfg.Stream.Name)
	assert.Equal(t, 30*time.Second, cfg.Indexer.ScanInterval)
	assert.Equal(t, ":8080", cfg.Gateway.Addr)
}

func TestYAMLOverridesDefaults(t *testing.T) {
	cfg := defaultConfig()

	data := []byte(`
stream:
  url: nats://broker:4222
  storage: memory
database:
  url: postgres://db/collab
indexer:
  batch_limit: 200
`)
	require.NoError(t, yaml.Unmarshal(data, cfg))
	cfg.Logging.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "nats://broker:4222", cfg.Stream.URL)
	assert.Equal(t, "memory", cfg.Stream.Storage)
	assert.Equal(t, "postgres://db/collab", cfg.Database.URL)
	assert.Equal(t, int64(200), cfg.Indexer.BatchLimit)
	// Untouched sections keep their defaults.
	assert.Equal(t, "updates", cfg.Stream.Name)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STREAM_URL", "nats://env:4222")
	t.Setenv("DATABASE_URL", "postgres://env/collab")
	t.Setenv("GATEWAY_ADDR", ":9999")

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "nats://env:4222", cfg.Stream.URL)
	assert.Equal(t, "postgres://env/collab", cfg.Database.URL)
	assert.Equal(t, ":9999", cfg.Gateway.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty stream name", func(c *Config) { c.Stream.Name = "" }},
		{"bad storage", func(c *Config) { c.Stream.Storage = "tape" }},
		{"zero scan interval", func(c *Config) { c.Indexer.ScanInterval = 0 }},
		{"zero batch limit", func(c *Config) { c.Indexer.BatchLimit = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Logging.ApplyDefaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoggingDefaultsFillGaps(t *testing.T) {
	c := LoggingConfig{Level: "debug"}
	c.ApplyDefaults()

	assert.Equal(t, "debug", c.Console.Level)
	assert.Equal(t, "text", c.Format)
	assert.Equal(t, "logs", c.Dir)
	assert.Equal(t, 100, c.Rotation.MaxSize)
	require.NoError(t, c.Validate())
}
