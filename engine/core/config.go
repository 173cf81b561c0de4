package core

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

type ApplicationConfig struct {
	// The application name used in windowing.
	Name string `toml:"name"`
	// Window starting position.
	StartPosX uint32 `toml:"pos_x"`
	StartPosY uint32 `toml:"pos_y"`
	// Window starting size.
	StartWidth  uint32 `toml:"width"`
	StartHeight uint32 `toml:"height"`
}

type RendererConfig struct {
	// Upper bound of frames whose GPU work may be in flight at once.
	MaxFramesInFlight uint32 `toml:"max_frames_in_flight"`
	// How long a fence wait may block before the frame loop gives up.
	FenceTimeoutMs uint64 `toml:"fence_timeout_ms"`
	// Edge length of every light's square depth map.
	ShadowMapSize uint32 `toml:"shadow_map_size"`
	// Directory holding the compiled SPIR-V shaders.
	ShaderDir string `toml:"shader_dir"`
	// Enables VK_LAYER_KHRONOS_validation and the debug report callback.
	Validation bool `toml:"validation"`
	// Fixed per-pool descriptor budget. Never grown at runtime.
	Descriptors gpu.DescriptorBudget `toml:"descriptors"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Config is computed once at startup and handed down by value; nothing
// mutates it afterwards.
type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Log         LogConfig         `toml:"log"`
	// Path of the scene description file. Empty means the built-in scene.
	Scene string `toml:"scene"`
}

func DefaultConfig() Config {
	return Config{
		Application: ApplicationConfig{
			Name:        "Penumbra",
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  1280,
			StartHeight: 720,
		},
		Renderer: RendererConfig{
			MaxFramesInFlight: 2,
			FenceTimeoutMs:    5000,
			ShadowMapSize:     2048,
			ShaderDir:         "assets/shaders",
			Validation:        false,
			Descriptors: gpu.DescriptorBudget{
				MaxSets:               128,
				UniformBuffers:        128,
				CombinedImageSamplers: 128,
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads a TOML file over the defaults. An empty path returns the
// defaults untouched.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: reading config %s: %s", ErrConfiguration, path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing config %s: %s", ErrConfiguration, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Application.StartWidth == 0 || c.Application.StartHeight == 0 {
		return fmt.Errorf("%w: window size must be non-zero, got %dx%d", ErrConfiguration, c.Application.StartWidth, c.Application.StartHeight)
	}
	if c.Renderer.MaxFramesInFlight == 0 {
		return fmt.Errorf("%w: max_frames_in_flight must be at least 1", ErrConfiguration)
	}
	if c.Renderer.ShadowMapSize == 0 {
		return fmt.Errorf("%w: shadow_map_size must be non-zero", ErrConfiguration)
	}
	if c.Renderer.FenceTimeoutMs == 0 {
		return fmt.Errorf("%w: fence_timeout_ms must be non-zero", ErrConfiguration)
	}
	d := c.Renderer.Descriptors
	if d.MaxSets == 0 || d.UniformBuffers == 0 || d.CombinedImageSamplers == 0 {
		return fmt.Errorf("%w: descriptor budget must be non-zero in every category, got %+v", ErrConfiguration, d)
	}
	return nil
}
