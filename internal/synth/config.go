package synth

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config describes the architecture of one voice bundle, loaded from the
// bundle's config.json. Weight shapes are validated against it at load time.
type Config struct {
	SampleRate int `json:"sample_rate"`

	InterChannels  int `json:"inter_channels"`
	HiddenChannels int `json:"hidden_channels"`
	FilterChannels int `json:"filter_channels"`
	Heads          int `json:"heads"`
	Layers         int `json:"layers"`
	KernelSize     int `json:"kernel_size"`

	EmbedDim        int `json:"embed_dim"`
	SpeakerEmbedDim int `json:"speaker_embed_dim"`
	Speakers        int `json:"speakers"`

	UpsampleRates           []int   `json:"upsample_rates"`
	UpsampleInitialChannels int     `json:"upsample_initial_channels"`
	UpsampleKernelSizes     []int   `json:"upsample_kernel_sizes"`
	ResblockKernelSizes     []int   `json:"resblock_kernel_sizes"`
	ResblockDilations       [][]int `json:"resblock_dilations"`

	HasPitch bool `json:"has_pitch"`
}

// LoadConfig reads and validates a bundle's config.json.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("synth: read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("synth: parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("synth: config %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("sample_rate must be > 0")
	case c.InterChannels <= 0 || c.InterChannels%2 != 0:
		return fmt.Errorf("inter_channels must be positive and even")
	case c.HiddenChannels <= 0:
		return fmt.Errorf("hidden_channels must be > 0")
	case c.FilterChannels <= 0:
		return fmt.Errorf("filter_channels must be > 0")
	case c.Heads <= 0 || c.HiddenChannels%c.Heads != 0:
		return fmt.Errorf("heads must be > 0 and divide hidden_channels")
	case c.Layers <= 0:
		return fmt.Errorf("layers must be > 0")
	case c.KernelSize <= 0 || c.KernelSize%2 == 0:
		return fmt.Errorf("kernel_size must be odd and > 0")
	case c.EmbedDim <= 0:
		return fmt.Errorf("embed_dim must be > 0")
	case c.SpeakerEmbedDim <= 0:
		return fmt.Errorf("speaker_embed_dim must be > 0")
	case c.Speakers <= 0:
		return fmt.Errorf("speakers must be > 0")
	case len(c.UpsampleRates) == 0:
		return fmt.Errorf("upsample_rates must not be empty")
	case len(c.UpsampleKernelSizes) != len(c.UpsampleRates):
		return fmt.Errorf("upsample_kernel_sizes must match upsample_rates")
	case c.UpsampleInitialChannels <= 0:
		return fmt.Errorf("upsample_initial_channels must be > 0")
	case len(c.ResblockKernelSizes) == 0:
		return fmt.Errorf("resblock_kernel_sizes must not be empty")
	case len(c.ResblockDilations) != len(c.ResblockKernelSizes):
		return fmt.Errorf("resblock_dilations must match resblock_kernel_sizes")
	}

	for _, r := range c.UpsampleRates {
		if r <= 0 {
			return fmt.Errorf("upsample rates must be > 0")
		}
	}

	return nil
}

// HopProduct is the total upsampling factor from latent frames to samples.
func (c *Config) HopProduct() int {
	prod := 1
	for _, r := range c.UpsampleRates {
		prod *= r
	}

	return prod
}
