package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// collector gathers emitted settled files behind a mutex.
type collector struct {
	mu    sync.Mutex
	files []SettledFile
}

func (c *collector) emit(f SettledFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = append(c.files, f)
}

func (c *collector) snapshot() []SettledFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SettledFile, len(c.files))
	copy(out, c.files)
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func waitForEmissions(t *testing.T, c *collector, want int, timeout time.Duration) []SettledFile {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		got := c.snapshot()
		if len(got) >= want {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	return c.snapshot()
}

func TestSettlerEmitsStableFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "note.opus", "opus audio bytes")

	var c collector
	s := NewSettler(50*time.Millisecond, c.emit)
	defer s.Stop()

	s.Observe(FileEvent{Path: path, Kind: KindCreated, DetectedAt: time.Now()})

	got := waitForEmissions(t, &c, 1, 2*time.Second)
	if len(got) != 1 {
		t.Fatalf("expected 1 emission, got %d", len(got))
	}
	if got[0].Path != path {
		t.Errorf("path = %q, want %q", got[0].Path, path)
	}
	if got[0].Size != int64(len("opus audio bytes")) {
		t.Errorf("size = %d, want %d", got[0].Size, len("opus audio bytes"))
	}
}

func TestSettlerEmitsAtMostOncePerSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "note.opus", "stable content")

	var c collector
	s := NewSettler(50*time.Millisecond, c.emit)
	defer s.Stop()

	// The same file generates several raw notifications in practice.
	for i := 0; i < 5; i++ {
		s.Observe(FileEvent{Path: path, Kind: KindModified, DetectedAt: time.Now()})
	}

	got := waitForEmissions(t, &c, 1, 2*time.Second)

	// More observations after the emission must not re-emit the same
	// size/mtime snapshot.
	s.Observe(FileEvent{Path: path, Kind: KindModified, DetectedAt: time.Now()})
	time.Sleep(200 * time.Millisecond)

	got = c.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 emission, got %d", len(got))
	}
}

func TestSettlerWaitsForGrowingFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "growing.opus", "first chunk")

	var c collector
	s := NewSettler(80*time.Millisecond, c.emit)
	defer s.Stop()

	s.Observe(FileEvent{Path: path, Kind: KindCreated, DetectedAt: time.Now()})

	// Grow the file before the quiet interval elapses.
	time.Sleep(20 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString(" second chunk"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()
	s.Observe(FileEvent{Path: path, Kind: KindModified, DetectedAt: time.Now()})

	got := waitForEmissions(t, &c, 1, 3*time.Second)
	if len(got) != 1 {
		t.Fatalf("expected 1 emission, got %d", len(got))
	}
	want := int64(len("first chunk second chunk"))
	if got[0].Size != want {
		t.Errorf("emitted size = %d, want final size %d", got[0].Size, want)
	}
}

func TestSettlerForgetsVanishedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gone.opus", "short lived")

	var c collector
	s := NewSettler(60*time.Millisecond, c.emit)
	defer s.Stop()

	s.Observe(FileEvent{Path: path, Kind: KindCreated, DetectedAt: time.Now()})
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if got := c.snapshot(); len(got) != 0 {
		t.Fatalf("expected no emissions for vanished file, got %d", len(got))
	}
	if n := s.PendingCount(); n != 0 {
		t.Errorf("pending count = %d, want 0", n)
	}
}

func TestSettlerHoldsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.opus", "")

	var c collector
	s := NewSettler(50*time.Millisecond, c.emit)
	defer s.Stop()

	s.Observe(FileEvent{Path: path, Kind: KindCreated, DetectedAt: time.Now()})
	time.Sleep(250 * time.Millisecond)
	if got := c.snapshot(); len(got) != 0 {
		t.Fatalf("zero-byte file must not settle, got %d emissions", len(got))
	}

	// Once content lands, it settles normally.
	if err := os.WriteFile(path, []byte("now has audio"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got := waitForEmissions(t, &c, 1, 3*time.Second)
	if len(got) != 1 {
		t.Fatalf("expected 1 emission after content arrived, got %d", len(got))
	}
}

func TestForgetPrunesEmittedRecord(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "note.opus", "opus audio bytes")

	var c collector
	s := NewSettler(50*time.Millisecond, c.emit)
	defer s.Stop()

	s.Observe(FileEvent{Path: path, Kind: KindCreated, DetectedAt: time.Now()})
	if got := waitForEmissions(t, &c, 1, 2*time.Second); len(got) != 1 {
		t.Fatalf("emissions = %d, want 1", len(got))
	}

	s.mu.Lock()
	n := len(s.emitted)
	s.mu.Unlock()
	if n != 1 {
		t.Fatalf("emitted records = %d, want 1", n)
	}

	// The file is deleted and the removal notification arrives.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	s.Forget(path)

	s.mu.Lock()
	n = len(s.emitted)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("emitted records = %d after Forget, want 0", n)
	}
}

func TestObservePrunesEmittedRecordForVanishedPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "note.opus", "opus audio bytes")

	var c collector
	s := NewSettler(50*time.Millisecond, c.emit)
	defer s.Stop()

	s.Observe(FileEvent{Path: path, Kind: KindCreated, DetectedAt: time.Now()})
	waitForEmissions(t, &c, 1, 2*time.Second)

	// A late event for an already-deleted path must not leave stale
	// bookkeeping behind.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	s.Observe(FileEvent{Path: path, Kind: KindModified, DetectedAt: time.Now()})

	s.mu.Lock()
	n := len(s.emitted)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("emitted records = %d, want 0", n)
	}
}

func TestSettledFileIdentity(t *testing.T) {
	mt := time.Unix(1700000000, 0)
	a := SettledFile{Path: "/x/a.opus", Size: 100, ModTime: mt}
	b := SettledFile{Path: "/x/a.opus", Size: 100, ModTime: mt}
	if a.Identity() != b.Identity() {
		t.Errorf("same snapshot should share identity")
	}

	c := SettledFile{Path: "/x/a.opus", Size: 101, ModTime: mt}
	if a.Identity() == c.Identity() {
		t.Errorf("different size must change identity")
	}

	d := SettledFile{Path: "/x/a.opus", Size: 100, ModTime: mt.Add(time.Second)}
	if a.Identity() == d.Identity() {
		t.Errorf("different mtime must change identity")
	}
}
