package core

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LogConfig configures the engine logger.
type LogConfig struct {
	Level        string `toml:"level"`
	Prefix       string `toml:"prefix"`
	ReportCaller bool   `toml:"report_caller"`
}

// DescriptorConfig holds the fixed capacity of every descriptor table.
// Tables never grow after the engine has started.
type DescriptorConfig struct {
	RenderTarget uint32 `toml:"render_target"`
	DepthStencil uint32 `toml:"depth_stencil"`
	CBVSRVUAV    uint32 `toml:"cbv_srv_uav"`
	Sampler      uint32 `toml:"sampler"`
}

type FrameConfig struct {
	InFlight            uint32 `toml:"in_flight"`
	MaxDeferredReleases uint32 `toml:"max_deferred_releases"`
}

type UploadConfig struct {
	// Size in bytes of the copy queue staging buffer.
	BufferSize uint64 `toml:"buffer_size"`
}

type DebugConfig struct {
	// Validation enables the contract checks that are skipped in release
	// builds (double deallocation, unissued descriptors).
	Validation bool `toml:"validation"`
}

type Config struct {
	Log         LogConfig        `toml:"log"`
	Descriptors DescriptorConfig `toml:"descriptors"`
	Frames      FrameConfig      `toml:"frames"`
	Upload      UploadConfig     `toml:"upload"`
	Debug       DebugConfig      `toml:"debug"`
}

const (
	MaxFramesInFlight uint32 = 8
	MinUploadSize     uint64 = 64 * 1024
)

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Prefix: "benzin",
		},
		Descriptors: DescriptorConfig{
			RenderTarget: 256,
			DepthStencil: 64,
			CBVSRVUAV:    65536,
			Sampler:      128,
		},
		Frames: FrameConfig{
			InFlight:            3,
			MaxDeferredReleases: 1024,
		},
		Upload: UploadConfig{
			BufferSize: 64 * 1024 * 1024,
		},
		Debug: DebugConfig{
			Validation: true,
		},
	}
}

// ParseConfig decodes a TOML document on top of the default configuration,
// so missing keys keep their default values.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

func (c *Config) Validate() error {
	d := c.Descriptors
	if d.RenderTarget == 0 || d.DepthStencil == 0 || d.CBVSRVUAV == 0 || d.Sampler == 0 {
		return fmt.Errorf("%w: descriptor capacities must be non-zero", ErrInvalidConfig)
	}
	if c.Frames.InFlight == 0 || c.Frames.InFlight > MaxFramesInFlight {
		return fmt.Errorf("%w: frames.in_flight must be in [1, %d], got %d", ErrInvalidConfig, MaxFramesInFlight, c.Frames.InFlight)
	}
	if c.Frames.MaxDeferredReleases == 0 {
		return fmt.Errorf("%w: frames.max_deferred_releases must be non-zero", ErrInvalidConfig)
	}
	if c.Upload.BufferSize < MinUploadSize {
		return fmt.Errorf("%w: upload.buffer_size must be at least %d bytes", ErrInvalidConfig, MinUploadSize)
	}
	return nil
}

// Marshal encodes the configuration back to TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
