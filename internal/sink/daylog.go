package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/voxtail/voxtail/internal/paths"
)

const headerWidth = 80

// DayLog appends transcript entries to one file per calendar day,
// named YYYY-MM-DD_daily.log. Entries are plain text meant for humans.
type DayLog struct {
	dir string
	mu  sync.Mutex
}

func NewDayLog(dir string) *DayLog {
	return &DayLog{dir: dir}
}

// Append writes one entry to today's log. The file is opened per call;
// the daemon writes a handful of entries an hour, not thousands a
// second.
func (d *DayLog) Append(res Result) error {
	if err := paths.EnsureDir(d.dir); err != nil {
		return fmt.Errorf("create transcript log dir: %w", err)
	}

	at := res.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	path := filepath.Join(d.dir, at.Format("2006-01-02")+"_daily.log")

	entry := formatEntry(res, at)

	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open daily log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("append daily log: %w", err)
	}
	return nil
}

func formatEntry(res Result, at time.Time) string {
	header := "─── " + at.Format("15:04:05") + " INFO "
	if pad := headerWidth - len([]rune(header)); pad > 0 {
		header += strings.Repeat("─", pad)
	}

	meta := fmt.Sprintf("%s  |  ⏳ %s  |  ⏱ done in %.1fs",
		filepath.Base(res.Path),
		formatAudioDuration(res.AudioDuration),
		res.Elapsed.Seconds())

	return header + "\n" + meta + "\n\n" + strings.TrimSpace(res.Text) + "\n\n"
}

// formatAudioDuration renders a note length the way people say it:
// "2m 41s" past a minute, "12.5s" under one.
func formatAudioDuration(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}
	secs := d.Seconds()
	if secs >= 60 {
		return fmt.Sprintf("%dm %ds", int(secs)/60, int(secs)%60)
	}
	return fmt.Sprintf("%.1fs", secs)
}
