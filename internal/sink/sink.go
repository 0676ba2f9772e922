// Package sink delivers finished transcripts to the user: the daily
// transcript log on disk, and optionally the system clipboard. Delivery
// problems are logged and swallowed - a transcript that reached the
// ledger is done, whatever happens downstream.
package sink

import (
	"path/filepath"
	"time"

	"github.com/atotto/clipboard"

	. "github.com/voxtail/voxtail/internal/logging"
)

// Result is one completed transcription ready for delivery.
type Result struct {
	Path          string        // source audio file
	Text          string        // transcript
	AudioDuration time.Duration // length of the note itself
	Elapsed       time.Duration // wall time spent transcribing
	FinishedAt    time.Time
}

// Sink fans a result out to its destinations.
type Sink struct {
	daylog    *DayLog
	clipboard bool
}

// New creates a sink writing daily logs under logDir. Clipboard copy is
// optional and headless-safe: a missing clipboard tool degrades to a
// warning.
func New(logDir string, useClipboard bool) *Sink {
	return &Sink{
		daylog:    NewDayLog(logDir),
		clipboard: useClipboard,
	}
}

// Deliver writes the result everywhere it goes. Never returns an error;
// partial delivery is logged, not retried.
func (s *Sink) Deliver(res Result) {
	if err := s.daylog.Append(res); err != nil {
		L_warn("sink: daily log append failed", "file", filepath.Base(res.Path), "error", err)
	}

	if s.clipboard {
		if err := clipboard.WriteAll(res.Text); err != nil {
			L_warn("sink: clipboard copy failed", "error", err)
		}
	}
}
