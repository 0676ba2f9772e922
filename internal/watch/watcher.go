package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	. "github.com/voxtail/voxtail/internal/logging"
)

// Watcher subscribes to filesystem create/modify events under a
// directory tree and feeds matching files into a Settler. It keeps no
// queue of its own.
type Watcher struct {
	dir     string
	exts    map[string]bool
	settler *Settler
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for dir. extensions are matched
// case-insensitively against file suffixes (".opus", ".m4a", ...).
func NewWatcher(dir string, extensions []string, settler *Settler) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		// No watch target means no voice note is ever transcribed;
		// surfaced as fatal at the process boundary, never retried silently.
		return nil, fmt.Errorf("watch directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch target is not a directory: %s", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}

	return &Watcher{
		dir:     dir,
		exts:    exts,
		settler: settler,
		fsw:     fsw,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start subscribes to the directory tree and begins forwarding events.
// Subscription failure is returned to the caller (fatal); the event
// loop runs on its own goroutine until Stop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// fsnotify is not recursive; add every subdirectory up front and
	// pick up new ones from create events.
	count := 0
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			L_warn("watcher: skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		w.fsw.Close()
		return err
	}

	L_info("watcher: monitoring", "dir", w.dir, "subdirs", count)

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// run is the notification loop. It hands events straight to the
// settler and must stay fast: settlement timers, not this loop, absorb
// slow downstream consumers.
func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			L_warn("watcher: notification error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		// Path is gone; release the settler's bookkeeping for it
		w.settler.Forget(event.Name)
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	// New directories get added to the subscription as they appear
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := w.fsw.Add(event.Name); err != nil {
				L_warn("watcher: failed to watch new subdirectory", "path", event.Name, "error", err)
			} else {
				L_debug("watcher: watching new subdirectory", "path", event.Name)
			}
		}
		return
	}

	if !w.wantFile(event.Name) {
		return
	}

	kind := KindModified
	if event.Op&fsnotify.Create != 0 {
		kind = KindCreated
	}

	L_debug("watcher: event", "path", event.Name, "kind", kind.String())
	w.settler.Observe(FileEvent{
		Path:       event.Name,
		Kind:       kind,
		DetectedAt: time.Now(),
	})
}

func (w *Watcher) wantFile(path string) bool {
	return w.exts[strings.ToLower(filepath.Ext(path))]
}

// Backfill scans the tree for files modified within the lookback window
// and injects synthetic events for them, oldest first. Runs once,
// before live watching; the ledger dedupes anything already processed.
func (w *Watcher) Backfill(lookback time.Duration) int {
	cutoff := time.Now().Add(-lookback)

	type candidate struct {
		path    string
		modTime time.Time
	}
	var found []candidate

	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !w.wantFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			found = append(found, candidate{path: path, modTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		L_warn("watcher: backfill scan failed", "error", err)
		return 0
	}

	sort.Slice(found, func(i, j int) bool { return found[i].modTime.Before(found[j].modTime) })

	for _, c := range found {
		L_debug("watcher: backfill candidate", "path", c.path)
		w.settler.Observe(FileEvent{
			Path:       c.path,
			Kind:       KindCreated,
			DetectedAt: time.Now(),
		})
	}

	if len(found) > 0 {
		L_info("watcher: backfill queued candidates", "count", len(found), "lookback", lookback)
	} else {
		L_info("watcher: backfill found nothing new", "lookback", lookback)
	}
	return len(found)
}

// Stop ends the event loop and closes the underlying subscription.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false

	close(w.stopCh)
	w.fsw.Close()
	w.wg.Wait()
}
