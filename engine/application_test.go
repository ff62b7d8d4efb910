package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assetstream.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadApplicationConfig_Defaults(t *testing.T) {
	config, err := LoadApplicationConfig("")
	require.NoError(t, err)

	assert.Equal(t, "software", config.Backend)
	assert.Equal(t, 4, config.Streaming.Workers)
	assert.Equal(t, uint64(256_000_000), config.Streaming.StagingCapacity.Uint64())
	assert.Equal(t, uint64(4), config.Streaming.StagingAlignment)
	assert.Equal(t, 30*time.Second, config.Streaming.StallTimeout.Std())
}

func TestLoadApplicationConfig_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
name = "viewer"
log_level = "warn"
assets_dir = "/data/assets"
backend = "noop"

[streaming]
workers = 8
staging_capacity = "64MiB"
staging_alignment = 16
keep_cpu_data = true
stall_timeout = "2s"

[metrics]
address = ":9090"
`)

	config, err := LoadApplicationConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "viewer", config.Name)
	assert.Equal(t, "warn", config.LogLevel)
	assert.Equal(t, "/data/assets", config.AssetsDir)
	assert.Equal(t, "noop", config.Backend)
	assert.Equal(t, uint32(60), config.TickRate, "unset keys keep their default")
	assert.Equal(t, ":9090", config.Metrics.Address)

	ssc := config.StreamingSystemConfig()
	assert.Equal(t, 8, ssc.WorkerCount)
	assert.Equal(t, uint64(64*core.MiB), ssc.StagingCapacity)
	assert.Equal(t, uint64(16), ssc.StagingAlignment)
	assert.True(t, ssc.KeepCPUData)
	assert.Equal(t, 2*time.Second, config.Streaming.StallTimeout.Std())
}

func TestLoadApplicationConfig_Errors(t *testing.T) {
	_, err := LoadApplicationConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadApplicationConfig(writeConfig(t, "name = \n"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadApplicationConfig(writeConfig(t, "[streaming]\nworkers = 0\n"))
	assert.ErrorIs(t, err, core.ErrNoWorkers)

	_, err = LoadApplicationConfig(writeConfig(t, "[streaming]\nstaging_capacity = \"big\"\n"))
	assert.Error(t, err)
}

func TestApplicationConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ApplicationConfig)
		errIs  error
	}{
		{"zero capacity", func(c *ApplicationConfig) { c.Streaming.StagingCapacity = 0 }, core.ErrInvalidStagingCapacity},
		{"negative workers", func(c *ApplicationConfig) { c.Streaming.Workers = -1 }, core.ErrNoWorkers},
		{"alignment not power of two", func(c *ApplicationConfig) { c.Streaming.StagingAlignment = 12 }, nil},
		{"zero tick rate", func(c *ApplicationConfig) { c.TickRate = 0 }, nil},
		{"bad log level", func(c *ApplicationConfig) { c.LogLevel = "loud" }, nil},
		{"unknown backend", func(c *ApplicationConfig) { c.Backend = "metal" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultApplicationConfig()
			tt.mutate(config)
			err := config.Validate()
			require.Error(t, err)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}
		})
	}

	assert.NoError(t, DefaultApplicationConfig().Validate())
}
