package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxtail/voxtail/internal/capacity"
	"github.com/voxtail/voxtail/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.Default().Model
	cfg.ModelsDir = t.TempDir()
	m, err := NewManager(cfg, capacity.DefaultBudget())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestAcquireMissingModelFails(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()

	if _, err := m.Acquire("ggml-base.en.bin"); err == nil {
		t.Fatal("acquire without a downloaded model file should fail")
	}

	// A failed load leaves nothing resident.
	if got := m.Resident(); len(got) != 0 {
		t.Fatalf("resident = %v, want empty", got)
	}
}

func TestEvictIdleSkipsEmptyManager(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()

	m.evictIdle()
	if got := m.Resident(); len(got) != 0 {
		t.Fatalf("resident = %v", got)
	}
}

func writeModelFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("ggml bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCleanupCacheRemovesStaleModels(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()

	// Configured model: stale but must survive.
	keep := writeModelFile(t, m.modelsDir, m.cfg.Model, 30*24*time.Hour)
	// Other cached model, unused past retention: goes.
	stale := writeModelFile(t, m.modelsDir, "ggml-small.bin", 30*24*time.Hour)
	// Recently used cached model: stays.
	fresh := writeModelFile(t, m.modelsDir, "ggml-tiny.bin", time.Hour)
	// Not a model file at all: untouched.
	other := writeModelFile(t, m.modelsDir, "notes.txt", 30*24*time.Hour)

	m.sweeper.cleanupCache()

	for _, path := range []string{keep, fresh, other} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s should have survived cleanup", filepath.Base(path))
		}
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale cached model should have been removed")
	}
}

func TestCleanupCacheDisabledByZeroRetention(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()
	m.cfg.RetentionDays = 0

	stale := writeModelFile(t, m.modelsDir, "ggml-small.bin", 365*24*time.Hour)
	m.sweeper.cleanupCache()

	if _, err := os.Stat(stale); err != nil {
		t.Error("zero retention must disable cleanup")
	}
}

// stubProvider records whether the sweep closed it.
type stubProvider struct {
	closed bool
}

func (p *stubProvider) Transcribe(filePath string) (string, time.Duration, error) {
	return "", 0, nil
}
func (p *stubProvider) Name() string { return "stub" }
func (p *stubProvider) Close() error {
	p.closed = true
	return nil
}

// plant inserts a loaded instance directly, bypassing Acquire, so
// eviction can be tested without a real whisper model on disk.
func plant(m *Manager, name string, refs int, idle time.Duration) (*instance, *stubProvider) {
	ready := make(chan struct{})
	close(ready)
	p := &stubProvider{}
	inst := &instance{
		name:     name,
		provider: p,
		loadedAt: time.Now().Add(-idle),
		lastUsed: time.Now().Add(-idle),
		refs:     refs,
		ready:    ready,
	}
	m.mu.Lock()
	m.instances[name] = inst
	m.mu.Unlock()
	return inst, p
}

func TestEvictIdleUnloadsOnlyUnreferencedStaleModels(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()
	window := m.EvictionAfter()

	// Idle past the window with no holders: evicted.
	_, idleProv := plant(m, "ggml-small.bin", 0, window+time.Hour)
	// Just as old but still held by a worker: survives.
	_, heldProv := plant(m, "ggml-base.en.bin", 1, window+time.Hour)
	// Unreferenced but recently used: survives.
	_, freshProv := plant(m, "ggml-tiny.bin", 0, time.Minute)

	m.evictIdle()

	resident := make(map[string]bool)
	for _, name := range m.Resident() {
		resident[name] = true
	}
	if resident["ggml-small.bin"] {
		t.Error("idle unreferenced model should have been evicted")
	}
	if !idleProv.closed {
		t.Error("evicted model's provider was not closed")
	}
	if !resident["ggml-base.en.bin"] || heldProv.closed {
		t.Error("model with a live holder must never be evicted, regardless of age")
	}
	if !resident["ggml-tiny.bin"] || freshProv.closed {
		t.Error("recently used model should not have been evicted")
	}
}

func TestEvictIdleSkipsLoadingInstance(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()

	// Loading in progress: ready still open, timestamps zero.
	loading := &instance{name: "ggml-medium.bin", ready: make(chan struct{})}
	m.mu.Lock()
	m.instances[loading.name] = loading
	m.mu.Unlock()

	m.evictIdle()

	if got := m.Resident(); len(got) != 1 || got[0] != "ggml-medium.bin" {
		t.Fatalf("resident = %v, want the loading instance untouched", got)
	}
}

func TestReleaseNilHandle(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()
	m.Release(nil)
}
