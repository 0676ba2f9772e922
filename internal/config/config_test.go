package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Watch.QuietMs != 1500 {
		t.Errorf("QuietMs = %d", cfg.Watch.QuietMs)
	}
	if !cfg.Watch.Backfill {
		t.Error("backfill should default on")
	}
	if cfg.Model.Model != "ggml-base.en.bin" {
		t.Errorf("Model = %q", cfg.Model.Model)
	}
	if cfg.Pipeline.Workers != 1 || cfg.Pipeline.QueueSize != 64 {
		t.Errorf("pipeline defaults = %+v", cfg.Pipeline)
	}
	if cfg.Capacity.SystemMemoryFactor != 0.5 || cfg.Capacity.VRAMFactor != 0.7 {
		t.Errorf("capacity defaults = %+v", cfg.Capacity)
	}
	if !cfg.Output.Clipboard {
		t.Error("clipboard should default on")
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".voxtail")
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}
	body := `{
		"watch": {"quietMs": 3000, "dir": "/custom/media"},
		"model": {"model": "ggml-small.bin"},
		"pipeline": {"workers": 2}
	}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Watch.QuietMs != 3000 {
		t.Errorf("QuietMs = %d, want override 3000", cfg.Watch.QuietMs)
	}
	if cfg.Watch.Dir != "/custom/media" {
		t.Errorf("Dir = %q", cfg.Watch.Dir)
	}
	if cfg.Model.Model != "ggml-small.bin" {
		t.Errorf("Model = %q", cfg.Model.Model)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("Workers = %d", cfg.Pipeline.Workers)
	}

	// Untouched fields keep their defaults.
	if cfg.Model.EvictionHours != 72 {
		t.Errorf("EvictionHours = %d, want default 72", cfg.Model.EvictionHours)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Watch.QuietMs != 1500 {
		t.Errorf("expected defaults, got QuietMs = %d", cfg.Watch.QuietMs)
	}
}

func TestApplyBoundsClampsNonsense(t *testing.T) {
	cfg := &Config{}
	cfg.Watch.QuietMs = -5
	cfg.Pipeline.Workers = 0
	cfg.Pipeline.QueueSize = -1
	cfg.Capacity.SystemMemoryFactor = 3.0
	cfg.Capacity.VRAMFactor = 0

	cfg.applyBounds()

	if cfg.Watch.QuietMs != 1500 {
		t.Errorf("QuietMs = %d", cfg.Watch.QuietMs)
	}
	if cfg.Pipeline.Workers != 1 {
		t.Errorf("Workers = %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.QueueSize != 64 {
		t.Errorf("QueueSize = %d", cfg.Pipeline.QueueSize)
	}
	if cfg.Capacity.SystemMemoryFactor != 0.5 {
		t.Errorf("SystemMemoryFactor = %v", cfg.Capacity.SystemMemoryFactor)
	}
	if cfg.Capacity.VRAMFactor != 0.7 {
		t.Errorf("VRAMFactor = %v", cfg.Capacity.VRAMFactor)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := Default()
	cfg.Watch.Dir = "/media/voicenotes"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Watch.Dir != "/media/voicenotes" {
		t.Errorf("Dir = %q after round trip", loaded.Watch.Dir)
	}
}
