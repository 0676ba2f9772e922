// Package config loads and persists the voxtail configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/voxtail/voxtail/internal/paths"
)

// Config represents the merged voxtail configuration
type Config struct {
	Watch    WatchConfig    `json:"watch"`
	Model    ModelConfig    `json:"model"`
	Pipeline PipelineConfig `json:"pipeline"`
	Output   OutputConfig   `json:"output"`
	Capacity CapacityConfig `json:"capacity"`
}

// WatchConfig controls the directory watcher and debouncer.
type WatchConfig struct {
	Dir           string   `json:"dir"`           // Media directory; auto-detected when empty
	Extensions    []string `json:"extensions"`    // Audio suffixes of interest
	QuietMs       int      `json:"quietMs"`       // Quiet interval before a file counts as settled
	Backfill      bool     `json:"backfill"`      // Scan for files missed while stopped
	LookbackHours int      `json:"lookbackHours"` // Backfill window
}

// ModelConfig controls the whisper model and its lifecycle.
type ModelConfig struct {
	ModelsDir     string `json:"modelsDir"` // Directory containing ggml-*.bin files
	Model         string `json:"model"`     // Model file name (e.g. "ggml-base.en.bin")
	Language      string `json:"language"`  // Language code, "auto" for detection
	Threads       uint   `json:"threads"`   // 0 = auto
	EvictionHours int    `json:"evictionHours"`
	RetentionDays int    `json:"retentionDays"` // Delete unused cached model files after this
	Cleanup       bool   `json:"cleanup"`       // Enable cached model cleanup
}

// PipelineConfig controls the dispatch queue and worker pool.
type PipelineConfig struct {
	QueueSize  int `json:"queueSize"`
	Workers    int `json:"workers"`
	MaxRetries int `json:"maxRetries"`
}

// OutputConfig controls transcript delivery.
type OutputConfig struct {
	Clipboard bool   `json:"clipboard"`
	LogDir    string `json:"logDir"` // Daily transcript logs; default under ~/.voxtail
}

// CapacityConfig holds the memory budget heuristics.
type CapacityConfig struct {
	SystemMemoryFactor float64 `json:"systemMemoryFactor"` // Fraction of system RAM considered usable
	VRAMFactor         float64 `json:"vramFactor"`         // Fraction of accelerator memory considered usable
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			Extensions:    []string{".opus", ".ogg", ".m4a", ".mp3", ".wav"},
			QuietMs:       1500,
			Backfill:      true,
			LookbackHours: 1,
		},
		Model: ModelConfig{
			ModelsDir:     "~/.voxtail/models",
			Model:         "ggml-base.en.bin",
			Language:      "en",
			EvictionHours: 72,
			RetentionDays: 3,
			Cleanup:       true,
		},
		Pipeline: PipelineConfig{
			QueueSize:  64,
			Workers:    1,
			MaxRetries: 3,
		},
		Output: OutputConfig{
			Clipboard: true,
		},
		Capacity: CapacityConfig{
			SystemMemoryFactor: 0.5,
			VRAMFactor:         0.7,
		},
	}
}

// Load reads the configuration file if present and overlays it on the
// defaults. A missing config file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	path, err := paths.ConfigPath()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyBounds()
	return cfg, nil
}

// Save writes the configuration to the default location.
func (c *Config) Save() error {
	path, err := paths.DefaultConfigPath()
	if err != nil {
		return err
	}
	return AtomicWriteJSON(path, c, 0600)
}

// applyBounds clamps nonsense values back to usable ones.
func (c *Config) applyBounds() {
	if c.Watch.QuietMs <= 0 {
		c.Watch.QuietMs = 1500
	}
	if c.Watch.LookbackHours <= 0 {
		c.Watch.LookbackHours = 1
	}
	if len(c.Watch.Extensions) == 0 {
		c.Watch.Extensions = Default().Watch.Extensions
	}
	if c.Pipeline.QueueSize <= 0 {
		c.Pipeline.QueueSize = 64
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 1
	}
	if c.Pipeline.MaxRetries <= 0 {
		c.Pipeline.MaxRetries = 3
	}
	if c.Model.EvictionHours <= 0 {
		c.Model.EvictionHours = 72
	}
	if c.Model.RetentionDays <= 0 {
		c.Model.RetentionDays = 3
	}
	if c.Capacity.SystemMemoryFactor <= 0 || c.Capacity.SystemMemoryFactor > 1 {
		c.Capacity.SystemMemoryFactor = 0.5
	}
	if c.Capacity.VRAMFactor <= 0 || c.Capacity.VRAMFactor > 1 {
		c.Capacity.VRAMFactor = 0.7
	}
}
