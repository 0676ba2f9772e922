package watch

import (
	"os"
	"sync"
	"time"

	. "github.com/voxtail/voxtail/internal/logging"
)

// snapshot is one stat() observation of a file.
type snapshot struct {
	size    int64
	modTime time.Time
}

// pending tracks a file that has produced events but not yet settled.
type pending struct {
	timer     *time.Timer
	last      snapshot
	firstSeen time.Time
}

// Settler absorbs repeated notifications for a path while it is still
// being written, and emits a SettledFile once two consecutive stat
// snapshots taken at least the quiet interval apart are identical.
//
// The emit callback runs on the settle timer's goroutine and is allowed
// to block (the dispatch queue applies backpressure there, by choice -
// blocking the settler never blocks fsnotify delivery for other paths
// longer than one enqueue).
type Settler struct {
	quiet time.Duration
	emit  func(SettledFile)

	mu      sync.Mutex
	pending map[string]*pending
	// Last emitted (size, mtime) per path. An unchanged triple is never
	// emitted twice.
	emitted map[string]snapshot
	stopped bool
}

// NewSettler creates a settler with the given quiet interval.
func NewSettler(quiet time.Duration, emit func(SettledFile)) *Settler {
	if quiet <= 0 {
		quiet = 1500 * time.Millisecond
	}
	return &Settler{
		quiet:   quiet,
		emit:    emit,
		pending: make(map[string]*pending),
		emitted: make(map[string]snapshot),
	}
}

// Observe feeds one filesystem event into the settler. Schedules (or
// reschedules) a quiescence check for the path.
func (s *Settler) Observe(ev FileEvent) {
	snap, err := statFile(ev.Path)
	if err != nil {
		// Gone already (temp file, fast delete) - nothing to settle
		L_debug("settler: stat failed, ignoring", "path", ev.Path, "error", err)
		s.Forget(ev.Path)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if prev, ok := s.emitted[ev.Path]; ok && prev == snap {
		// Duplicate notification for a file we already emitted
		return
	}

	p, ok := s.pending[ev.Path]
	if !ok {
		p = &pending{firstSeen: ev.DetectedAt}
		s.pending[ev.Path] = p
	} else {
		p.timer.Stop()
	}
	p.last = snap

	path := ev.Path
	p.timer = time.AfterFunc(s.quiet, func() { s.check(path) })
}

// check compares the current stat against the snapshot taken when the
// timer was armed. Identical and non-empty means settled; otherwise the
// check is rescheduled with the fresh snapshot. A file that never stops
// changing is rescheduled forever - that is the contract, not an error.
func (s *Settler) check(path string) {
	snap, err := statFile(path)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}

	p, ok := s.pending[path]
	if !ok {
		s.mu.Unlock()
		return
	}

	if err != nil {
		// File vanished between events; forget it
		delete(s.pending, path)
		s.mu.Unlock()
		return
	}

	if snap != p.last || snap.size == 0 {
		// Still growing (or still a zero-byte placeholder) - go around again
		L_debug("settler: not settled yet", "path", path, "size", snap.size)
		p.last = snap
		p.timer = time.AfterFunc(s.quiet, func() { s.check(path) })
		s.mu.Unlock()
		return
	}

	settled := SettledFile{
		Path:      path,
		Size:      snap.size,
		ModTime:   snap.modTime,
		FirstSeen: p.firstSeen,
	}
	delete(s.pending, path)
	s.emitted[path] = snap
	s.mu.Unlock()

	L_debug("settler: file settled", "path", path, "size", snap.size)

	// Outside the lock: emit may block on queue backpressure
	s.emit(settled)
}

// Forget drops all state for a path: any armed check and its emitted
// record. Called when the path is removed or renamed away, so the
// emitted map does not grow without bound over a long-running watch.
func (s *Settler) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[path]; ok {
		p.timer.Stop()
		delete(s.pending, path)
	}
	delete(s.emitted, path)
}

// Stop cancels all pending checks. An emission already past its stopped
// check may still complete concurrently; the dispatch queue accepts or
// refuses that late hand-off safely.
func (s *Settler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for path, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, path)
	}
}

// PendingCount returns how many paths are awaiting settlement.
func (s *Settler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func statFile(path string) (snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{size: info.Size(), modTime: info.ModTime()}, nil
}
