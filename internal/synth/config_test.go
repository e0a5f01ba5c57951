package synth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	body := `{
		"sample_rate": 40000,
		"inter_channels": 192,
		"hidden_channels": 192,
		"filter_channels": 768,
		"heads": 2,
		"layers": 6,
		"kernel_size": 3,
		"embed_dim": 768,
		"speaker_embed_dim": 256,
		"speakers": 109,
		"upsample_rates": [10, 10, 2, 2],
		"upsample_initial_channels": 512,
		"upsample_kernel_sizes": [16, 16, 4, 4],
		"resblock_kernel_sizes": [3, 7, 11],
		"resblock_dilations": [[1, 3, 5], [1, 3, 5], [1, 3, 5]],
		"has_pitch": true
	}`

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.SampleRate != 40000 || !cfg.HasPitch {
		t.Fatalf("config fields not parsed: %+v", cfg)
	}

	if cfg.HopProduct() != 400 {
		t.Fatalf("HopProduct = %d, want 400", cfg.HopProduct())
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero sample rate", mutate: func(c *Config) { c.SampleRate = 0 }},
		{name: "odd inter channels", mutate: func(c *Config) { c.InterChannels = 5 }},
		{name: "heads not dividing hidden", mutate: func(c *Config) { c.Heads = 3 }},
		{name: "even kernel", mutate: func(c *Config) { c.KernelSize = 4 }},
		{name: "no upsample rates", mutate: func(c *Config) { c.UpsampleRates = nil }},
		{name: "kernel rate mismatch", mutate: func(c *Config) { c.UpsampleKernelSizes = []int{4} }},
		{name: "dilation kernel mismatch", mutate: func(c *Config) { c.ResblockDilations = nil }},
		{name: "no speakers", mutate: func(c *Config) { c.Speakers = 0 }},
		{name: "negative rate", mutate: func(c *Config) { c.UpsampleRates = []int{2, -2} }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tinyConfig(true)
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("invalid config accepted")
			}
		})
	}

	if err := tinyConfig(true).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
