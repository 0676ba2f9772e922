package model

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	. "github.com/voxtail/voxtail/internal/logging"
	"github.com/voxtail/voxtail/internal/stt"
)

// sweeper runs the manager's periodic jobs: the idle-eviction pass and
// the on-disk model cache cleanup.
type sweeper struct {
	mgr  *Manager
	cron *cron.Cron
}

func newSweeper(m *Manager) *sweeper {
	return &sweeper{
		mgr:  m,
		cron: cron.New(),
	}
}

func (s *sweeper) start() {
	if _, err := s.cron.AddFunc("@every 15m", s.mgr.evictIdle); err != nil {
		L_error("model: failed to schedule eviction sweep", "error", err)
	}
	if s.mgr.cfg.Cleanup {
		if _, err := s.cron.AddFunc("@daily", s.cleanupCache); err != nil {
			L_error("model: failed to schedule cache cleanup", "error", err)
		}
	}
	s.cron.Start()
}

func (s *sweeper) stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		L_warn("model: sweep jobs did not finish within shutdown grace")
	}
}

// cleanupCache deletes cached model files the daemon has not used
// within the retention window. The configured model is always kept.
// Loading a model refreshes its file mtime, so mtime tracks real usage
// rather than download time.
func (s *sweeper) cleanupCache() {
	retention := time.Duration(s.mgr.cfg.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	entries, err := os.ReadDir(s.mgr.modelsDir)
	if err != nil {
		L_warn("model: cache cleanup skipped, cannot read models dir",
			"dir", s.mgr.modelsDir, "error", err)
		return
	}

	resident := make(map[string]bool)
	for _, name := range s.mgr.Resident() {
		resident[name] = true
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || stt.GetModel(name) == nil {
			continue
		}
		if name == s.mgr.cfg.Model || resident[name] {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.mgr.modelsDir, name)
		if err := os.Remove(path); err != nil {
			L_warn("model: failed to remove stale cached model", "path", path, "error", err)
			continue
		}
		L_info("model: removed stale cached model", "model", name,
			"unused", time.Since(info.ModTime()).Round(time.Hour))
	}
}

// touchModelFile marks a model file as used so cache retention keeps
// recently loaded models.
func touchModelFile(dir, name string) {
	now := time.Now()
	path := filepath.Join(dir, name)
	if err := os.Chtimes(path, now, now); err != nil {
		L_debug("model: could not refresh model mtime", "path", path, "error", err)
	}
}
