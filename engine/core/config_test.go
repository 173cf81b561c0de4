package core

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "penumbra.toml")
	data := `
scene = "scenes/demo.toml"

[application]
name = "test"
width = 640
height = 480

[renderer]
max_frames_in_flight = 3

[renderer.descriptors]
max_sets = 64

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Application.Name != "test" || cfg.Application.StartWidth != 640 {
		t.Errorf("application = %+v", cfg.Application)
	}
	if cfg.Renderer.MaxFramesInFlight != 3 {
		t.Errorf("max frames in flight = %d, want 3", cfg.Renderer.MaxFramesInFlight)
	}
	if cfg.Renderer.Descriptors.MaxSets != 64 || cfg.Renderer.Descriptors.UniformBuffers != 128 {
		t.Errorf("descriptors = %+v, want max_sets overridden and the rest defaulted", cfg.Renderer.Descriptors)
	}
	if cfg.Renderer.ShadowMapSize != DefaultConfig().Renderer.ShadowMapSize {
		t.Errorf("shadow map size = %d, want default", cfg.Renderer.ShadowMapSize)
	}
	if cfg.Scene != "scenes/demo.toml" || cfg.Log.Level != "debug" {
		t.Errorf("scene=%q level=%q", cfg.Scene, cfg.Log.Level)
	}
}

func TestValidateRejectsZeroBudgets(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"frames", func(c *Config) { c.Renderer.MaxFramesInFlight = 0 }},
		{"shadow", func(c *Config) { c.Renderer.ShadowMapSize = 0 }},
		{"sets", func(c *Config) { c.Renderer.Descriptors.MaxSets = 0 }},
		{"samplers", func(c *Config) { c.Renderer.Descriptors.CombinedImageSamplers = 0 }},
		{"window", func(c *Config) { c.Application.StartHeight = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Validate error = %v, want ErrConfiguration", err)
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer func() {
		SetLogOutput(os.Stderr)
		_ = SetLogLevel("info")
	}()

	if err := SetLogLevel("warn"); err != nil {
		t.Fatalf("SetLogLevel(warn): %v", err)
	}
	LogInfo("hidden")
	LogWarn("shown %d", 7)
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown 7") {
		t.Fatalf("log output at warn level = %q", out)
	}

	if err := SetLogLevel("loud"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("SetLogLevel(loud) error = %v, want ErrConfiguration", err)
	}
}
