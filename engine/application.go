package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/systems"
)

type StreamingConfig struct {
	// Number of decode workers.
	Workers int `toml:"workers"`
	// Size of the staging region, e.g. "256MB".
	StagingCapacity core.ByteSize `toml:"staging_capacity"`
	// Alignment of each staging reservation in bytes.
	StagingAlignment uint64 `toml:"staging_alignment"`
	// Keep host copies of payloads once they are device resident.
	KeepCPUData bool `toml:"keep_cpu_data"`
	// Assets still not ready after this long are reported as stalled. Zero disables the check.
	StallTimeout core.Duration `toml:"stall_timeout"`
}

type MetricsConfig struct {
	// Address of the Prometheus endpoint. Empty disables it.
	Address string `toml:"address"`
}

type ApplicationConfig struct {
	// The application name, used in logs.
	Name string `toml:"name"`
	// One of debug, info, warn, error, fatal.
	LogLevel string `toml:"log_level"`
	// Root of the watched asset tree.
	AssetsDir string `toml:"assets_dir"`
	// Device backend the engine uploads to.
	Backend string `toml:"backend"`
	// Engine ticks per second.
	TickRate uint32 `toml:"tick_rate"`

	Streaming StreamingConfig `toml:"streaming"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:      "assetstream",
		LogLevel:  "info",
		AssetsDir: "assets",
		Backend:   "software",
		TickRate:  60,
		Streaming: StreamingConfig{
			Workers:          4,
			StagingCapacity:  core.ByteSize(systems.DEFAULT_STAGING_CAPACITY),
			StagingAlignment: systems.DEFAULT_STAGING_ALIGNMENT,
			StallTimeout:     core.Duration(30 * time.Second),
		},
	}
}

// LoadApplicationConfig reads a TOML file over the defaults. An empty path
// returns the defaults.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	config := DefaultApplicationConfig()
	if path == "" {
		return config, config.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, config); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("failed to parse config file %s at %d:%d: %w", path, row, col, err)
		}
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ApplicationConfig) Validate() error {
	if c.Streaming.Workers < 1 {
		return core.ErrNoWorkers
	}
	if c.Streaming.StagingCapacity == 0 {
		return core.ErrInvalidStagingCapacity
	}
	if a := c.Streaming.StagingAlignment; a != 0 && a&(a-1) != 0 {
		return fmt.Errorf("staging alignment must be a power of two, got %d", a)
	}
	switch c.Backend {
	case "software", "noop", "vulkan":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.TickRate == 0 {
		return fmt.Errorf("tick rate must be greater than zero")
	}
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// StreamingSystemConfig converts the file level settings for the streaming system.
func (c *ApplicationConfig) StreamingSystemConfig() systems.StreamingSystemConfig {
	return systems.StreamingSystemConfig{
		WorkerCount:      c.Streaming.Workers,
		StagingCapacity:  c.Streaming.StagingCapacity.Uint64(),
		StagingAlignment: c.Streaming.StagingAlignment,
		KeepCPUData:      c.Streaming.KeepCPUData,
	}
}
