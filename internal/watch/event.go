// Package watch turns raw filesystem notifications into settled-file
// candidates: files whose size and mtime have stopped changing.
package watch

import (
	"fmt"
	"time"
)

// EventKind classifies a filesystem notification.
type EventKind int

const (
	// KindCreated means the file appeared
	KindCreated EventKind = iota
	// KindModified means the file grew or was rewritten
	KindModified
)

func (k EventKind) String() string {
	if k == KindCreated {
		return "created"
	}
	return "modified"
}

// FileEvent is a single filesystem notification for a candidate file.
// Transient; never persisted.
type FileEvent struct {
	Path       string
	Kind       EventKind
	DetectedAt time.Time
}

// SettledFile describes a file believed finished writing: two stat
// snapshots taken at least the quiet interval apart showed the same
// size and mtime.
type SettledFile struct {
	Path      string
	Size      int64
	ModTime   time.Time
	FirstSeen time.Time
}

// Identity returns the ledger key for this file: path plus the
// size/mtime pair the settler certified. The same path re-written with
// new content yields a new identity.
func (s SettledFile) Identity() string {
	return fmt.Sprintf("%s|%d|%d", s.Path, s.Size, s.ModTime.Unix())
}
