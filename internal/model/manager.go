// Package model owns the loaded whisper instances: load on first
// demand, refcounted use, idle eviction. Refcounts - not wall-clock
// alone - gate destruction: a model a worker holds is never unloaded
// regardless of age.
package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/voxtail/voxtail/internal/capacity"
	"github.com/voxtail/voxtail/internal/config"
	. "github.com/voxtail/voxtail/internal/logging"
	"github.com/voxtail/voxtail/internal/paths"
	"github.com/voxtail/voxtail/internal/stt"
)

// instance is one resident model plus its bookkeeping.
type instance struct {
	name     string
	provider stt.Provider
	loadedAt time.Time
	lastUsed time.Time
	refs     int

	// closed once loading finishes (successfully or not)
	ready   chan struct{}
	loadErr error
}

// Handle is a worker's lease on a loaded model. Release it when done.
type Handle struct {
	inst *instance
	mgr  *Manager
}

// Transcribe runs inference through the leased model.
func (h *Handle) Transcribe(filePath string) (string, time.Duration, error) {
	return h.inst.provider.Transcribe(filePath)
}

// Model returns the leased model's file name.
func (h *Handle) Model() string {
	return h.inst.name
}

// Manager loads models on demand and evicts idle ones.
type Manager struct {
	cfg       config.ModelConfig
	budget    capacity.Budget
	modelsDir string // tilde-expanded

	mu        sync.Mutex
	instances map[string]*instance

	sweeper *sweeper
}

// NewManager creates a manager. No model is loaded until the first
// Acquire.
func NewManager(cfg config.ModelConfig, budget capacity.Budget) (*Manager, error) {
	modelsDir, err := paths.ExpandTilde(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("expand models dir: %w", err)
	}

	m := &Manager{
		cfg:       cfg,
		budget:    budget,
		modelsDir: modelsDir,
		instances: make(map[string]*instance),
	}
	m.sweeper = newSweeper(m)
	return m, nil
}

// ModelsDir returns the expanded model directory.
func (m *Manager) ModelsDir() string {
	return m.modelsDir
}

// EvictionAfter returns the configured idle-eviction window.
func (m *Manager) EvictionAfter() time.Duration {
	return time.Duration(m.cfg.EvictionHours) * time.Hour
}

// Acquire returns a usable handle for the named model, loading it if
// not resident. Loading blocks the calling worker only; the watcher and
// settler never call Acquire. A capacity verdict of warn or
// insufficient is logged and the load attempted anyway - the estimate
// is heuristic, the allocator has the final word.
func (m *Manager) Acquire(modelName string) (*Handle, error) {
	m.mu.Lock()

	if inst, ok := m.instances[modelName]; ok {
		inst.refs++
		m.mu.Unlock()

		<-inst.ready
		if inst.loadErr != nil {
			m.mu.Lock()
			inst.refs--
			m.mu.Unlock()
			return nil, inst.loadErr
		}

		m.mu.Lock()
		inst.lastUsed = time.Now()
		m.mu.Unlock()
		return &Handle{inst: inst, mgr: m}, nil
	}

	inst := &instance{
		name:  modelName,
		refs:  1,
		ready: make(chan struct{}),
	}
	m.instances[modelName] = inst
	m.mu.Unlock()

	m.adviseCapacity(modelName)

	provider, err := stt.NewWhisperCppProvider(stt.WhisperCppConfig{
		ModelsDir: m.modelsDir,
		Model:     modelName,
		Language:  m.cfg.Language,
		Threads:   m.cfg.Threads,
	})

	m.mu.Lock()
	if err != nil {
		inst.loadErr = err
		delete(m.instances, modelName)
		close(inst.ready)
		m.mu.Unlock()
		return nil, err
	}

	now := time.Now()
	inst.provider = provider
	inst.loadedAt = now
	inst.lastUsed = now
	close(inst.ready)
	m.mu.Unlock()

	touchModelFile(m.modelsDir, modelName)

	return &Handle{inst: inst, mgr: m}, nil
}

// Release returns a handle. The model stays resident; the sweep decides
// when it actually unloads.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	h.inst.refs--
	h.inst.lastUsed = time.Now()
	if h.inst.refs < 0 {
		L_error("model: refcount went negative", "model", h.inst.name)
		h.inst.refs = 0
	}
}

// adviseCapacity logs how the chosen model sits against current
// hardware. Advisory only.
func (m *Manager) adviseCapacity(modelName string) {
	family := stt.FamilyOf(modelName)
	if family == "" {
		return
	}

	profile := capacity.Sample()
	switch capacity.Validate(family, profile, m.budget) {
	case capacity.VerdictWarn:
		L_warn("model: size is tight for this hardware, loading anyway",
			"model", modelName, "family", family)
	case capacity.VerdictInsufficient:
		L_warn("model: size exceeds the memory budget, loading anyway - expect pressure",
			"model", modelName, "family", family,
			"recommended", capacity.Recommend(profile, m.budget))
	}
}

// evictIdle unloads every instance with no holders that has been idle
// past the eviction window. Called by the sweeper, never per-request.
func (m *Manager) evictIdle() {
	window := m.EvictionAfter()
	cutoff := time.Now().Add(-window)

	m.mu.Lock()
	var victims []*instance
	for name, inst := range m.instances {
		select {
		case <-inst.ready:
		default:
			continue // still loading
		}
		if inst.refs == 0 && inst.loadErr == nil && inst.lastUsed.Before(cutoff) {
			victims = append(victims, inst)
			delete(m.instances, name)
		}
	}
	m.mu.Unlock()

	for _, inst := range victims {
		L_info("model: evicting idle model", "model", inst.name,
			"idle", time.Since(inst.lastUsed).Round(time.Minute))
		if err := inst.provider.Close(); err != nil {
			L_warn("model: close failed during eviction", "model", inst.name, "error", err)
		}
	}
}

// Resident reports the currently loaded model names, for diagnostics.
func (m *Manager) Resident() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.instances))
	for name := range m.instances {
		names = append(names, name)
	}
	return names
}

// Start begins the background sweep schedule.
func (m *Manager) Start() {
	m.sweeper.start()
}

// Close stops the sweep and unloads everything. In-flight handles are
// assumed drained by the caller (graceful shutdown drains workers
// first).
func (m *Manager) Close() {
	m.sweeper.stop()

	m.mu.Lock()
	instances := m.instances
	m.instances = make(map[string]*instance)
	m.mu.Unlock()

	for name, inst := range instances {
		select {
		case <-inst.ready:
		default:
			continue
		}
		if inst.loadErr != nil {
			continue
		}
		if err := inst.provider.Close(); err != nil {
			L_warn("model: close failed", "model", name, "error", err)
		}
	}
}
