package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDayLogAppend(t *testing.T) {
	dir := t.TempDir()
	d := NewDayLog(dir)

	at := time.Date(2026, 8, 29, 14, 30, 5, 0, time.Local)
	res := Result{
		Path:          "/notes/PTT-20260829-WA0012.opus",
		Text:          "  remember to buy oat milk  ",
		AudioDuration: 65 * time.Second,
		Elapsed:       2300 * time.Millisecond,
		FinishedAt:    at,
	}
	if err := d.Append(res); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "2026-08-29_daily.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(data)

	if !strings.Contains(got, "─── 14:30:05 INFO ") {
		t.Errorf("missing timestamp header:\n%s", got)
	}
	if !strings.Contains(got, "PTT-20260829-WA0012.opus  |  ⏳ 1m 5s  |  ⏱ done in 2.3s") {
		t.Errorf("missing meta line:\n%s", got)
	}
	if !strings.Contains(got, "\n\nremember to buy oat milk\n\n") {
		t.Errorf("transcript not trimmed and framed:\n%s", got)
	}
}

func TestDayLogAppendsToSameFile(t *testing.T) {
	dir := t.TempDir()
	d := NewDayLog(dir)

	at := time.Date(2026, 8, 29, 9, 0, 0, 0, time.Local)
	for i, text := range []string{"first note", "second note"} {
		err := d.Append(Result{
			Path:       "/notes/n.opus",
			Text:       text,
			Elapsed:    time.Second,
			FinishedAt: at.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "2026-08-29_daily.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "first note") || !strings.Contains(got, "second note") {
		t.Errorf("both entries should land in the same daily file:\n%s", got)
	}
}

func TestFormatAudioDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "unknown"},
		{-time.Second, "unknown"},
		{500 * time.Millisecond, "0.5s"},
		{12500 * time.Millisecond, "12.5s"},
		{60 * time.Second, "1m 0s"},
		{161 * time.Second, "2m 41s"},
	}
	for _, tt := range tests {
		if got := formatAudioDuration(tt.d); got != tt.want {
			t.Errorf("formatAudioDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestEntryHeaderWidth(t *testing.T) {
	entry := formatEntry(Result{
		Path:    "/n/x.opus",
		Text:    "hi",
		Elapsed: time.Second,
	}, time.Date(2026, 8, 29, 23, 59, 59, 0, time.Local))

	header := strings.SplitN(entry, "\n", 2)[0]
	if n := len([]rune(header)); n != 80 {
		t.Errorf("header rune width = %d, want 80", n)
	}
}
