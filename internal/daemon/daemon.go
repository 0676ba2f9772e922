// Package daemon wires the whole pipeline together and owns its
// lifecycle: recover the ledger, start workers, backfill, watch, and
// unwind all of it in order on shutdown.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/voxtail/voxtail/internal/capacity"
	"github.com/voxtail/voxtail/internal/config"
	"github.com/voxtail/voxtail/internal/ledger"
	. "github.com/voxtail/voxtail/internal/logging"
	"github.com/voxtail/voxtail/internal/model"
	"github.com/voxtail/voxtail/internal/paths"
	"github.com/voxtail/voxtail/internal/pipeline"
	"github.com/voxtail/voxtail/internal/sink"
	"github.com/voxtail/voxtail/internal/stt"
	"github.com/voxtail/voxtail/internal/watch"
)

// Daemon holds every running component.
type Daemon struct {
	cfg *config.Config

	ledger  *ledger.Ledger
	models  *model.Manager
	out     *sink.Sink
	queue   *pipeline.Queue
	pool    *pipeline.Pool
	settler *watch.Settler
	watcher *watch.Watcher
}

// New builds a daemon from configuration. Nothing starts running yet.
func New(cfg *config.Config) (*Daemon, error) {
	cfg.Watch.Dir = paths.DetectMediaDir(cfg.Watch.Dir)
	if cfg.Watch.Dir == "" {
		return nil, fmt.Errorf("no voice note directory found; set watch.dir in the config file")
	}
	if cfg.Output.LogDir == "" {
		dir, err := paths.TranscriptLogDir()
		if err != nil {
			return nil, err
		}
		cfg.Output.LogDir = dir
	}

	modelsDir, err := paths.ExpandTilde(cfg.Model.ModelsDir)
	if err != nil {
		return nil, err
	}
	if !stt.IsModelDownloaded(modelsDir, cfg.Model.Model) {
		return nil, fmt.Errorf("model %s not found in %s; run: voxtail model download",
			cfg.Model.Model, modelsDir)
	}

	d := &Daemon{cfg: cfg}

	dbPath, err := paths.LedgerPath()
	if err != nil {
		return nil, err
	}
	d.ledger, err = ledger.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	budget := capacity.Budget{
		SystemMemoryFactor: cfg.Capacity.SystemMemoryFactor,
		VRAMFactor:         cfg.Capacity.VRAMFactor,
	}
	d.models, err = model.NewManager(cfg.Model, budget)
	if err != nil {
		d.ledger.Close()
		return nil, err
	}

	d.out = sink.New(cfg.Output.LogDir, cfg.Output.Clipboard)
	d.queue = pipeline.NewQueue(cfg.Pipeline.QueueSize)
	d.pool = pipeline.NewPool(d.queue, d.ledger, d.models, d.out,
		cfg.Model.Model, cfg.Pipeline.MaxRetries)

	quiet := time.Duration(cfg.Watch.QuietMs) * time.Millisecond
	d.settler = watch.NewSettler(quiet, func(f watch.SettledFile) {
		d.queue.Enqueue(f)
	})

	d.watcher, err = watch.NewWatcher(cfg.Watch.Dir, cfg.Watch.Extensions, d.settler)
	if err != nil {
		d.models.Close()
		d.ledger.Close()
		return nil, err
	}

	return d, nil
}

// Run starts everything and blocks until ctx is cancelled, then shuts
// down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	// Work interrupted by the last shutdown or crash goes back to
	// pending before anything new is accepted.
	recovered, err := d.ledger.Recover()
	if err != nil {
		return fmt.Errorf("ledger recovery: %w", err)
	}
	if recovered > 0 {
		L_info("daemon: recovered interrupted work", "count", recovered)
	}

	d.models.Start()
	d.pool.Start(d.cfg.Pipeline.Workers)

	d.requeuePending()

	if d.cfg.Watch.Backfill {
		lookback := time.Duration(d.cfg.Watch.LookbackHours) * time.Hour
		found := d.watcher.Backfill(lookback)
		if found > 0 {
			L_info("daemon: backfill found candidates", "count", found)
		}
	}

	if err := d.watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	L_info("daemon: watching for voice notes", "dir", d.cfg.Watch.Dir,
		"model", d.cfg.Model.Model, "workers", d.cfg.Pipeline.Workers)

	<-ctx.Done()

	d.shutdown()
	return nil
}

// requeuePending turns leftover pending ledger rows back into queue
// items. The files may be gone by now; workers handle that.
func (d *Daemon) requeuePending() {
	entries, err := d.ledger.Pending()
	if err != nil {
		L_warn("daemon: could not list pending entries", "error", err)
		return
	}
	for _, e := range entries {
		d.queue.Enqueue(watch.SettledFile{
			Path:      e.Path,
			Size:      e.Size,
			ModTime:   e.ModTime,
			FirstSeen: e.FirstSeen,
		})
	}
	if len(entries) > 0 {
		L_info("daemon: requeued pending entries", "count", len(entries))
	}
}

// shutdown unwinds in dependency order: stop producing, drain
// consumers, then close storage.
func (d *Daemon) shutdown() {
	L_info("daemon: shutting down")
	SetShuttingDown()

	d.watcher.Stop()
	d.settler.Stop()
	d.pool.Drain()
	d.models.Close()

	if err := d.ledger.Close(); err != nil {
		L_warn("daemon: ledger close failed", "error", err)
	}
	L_info("daemon: stopped")
}
