// Package ledger is the durable record of which voice notes have been
// processed. It guarantees at-most-once output: for a given file
// identity, exactly one worker wins the claim and at most one entry
// ever reaches done.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"time"

	_ "github.com/mattn/go-sqlite3"
	. "github.com/voxtail/voxtail/internal/logging"
	"github.com/voxtail/voxtail/internal/paths"
)

// Entry statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Entry is one row of processing history.
type Entry struct {
	Identity    string
	Path        string
	Size        int64
	ModTime     time.Time
	Status      string
	Attempts    int
	ResultText  string
	FirstSeen   time.Time
	ProcessedAt time.Time
}

// Ledger wraps the history database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path.
func Open(dbPath string) (*Ledger, error) {
	if err := paths.EnsureParentDir(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	if runtime.GOOS != "windows" {
		tightenPermissions(dbPath)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// tightenPermissions chmods the db to owner-only; transcripts are private.
func tightenPermissions(dbPath string) {
	if err := os.Chmod(dbPath, 0600); err != nil {
		L_warn("ledger: could not set permissions", "path", dbPath, "error", err)
	}
}

// Claim atomically takes ownership of an identity: an unseen, pending
// or failed entry transitions to in_progress and Claim returns true; a
// done or already in_progress entry leaves Claim returning false. This
// single statement is the only concurrency-safety mechanism between
// workers - losing the race is expected, not an error.
func (l *Ledger) Claim(identity, path string, size int64, modTime time.Time) (bool, error) {
	res, err := l.db.Exec(`
		INSERT INTO notes (identity, path, size, mtime, status, attempts, first_seen)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(identity) DO UPDATE SET
			status = excluded.status,
			attempts = notes.attempts + 1
		WHERE notes.status IN (?, ?)
	`, identity, path, size, modTime.Unix(), StatusInProgress, time.Now().Unix(),
		StatusPending, StatusFailed)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", identity, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim %s: rows affected: %w", identity, err)
	}
	return n > 0, nil
}

// Commit transitions in_progress to done and persists the transcript.
func (l *Ledger) Commit(identity, resultText string) error {
	res, err := l.db.Exec(`
		UPDATE notes SET status = ?, result_text = ?, processed_at = ?
		WHERE identity = ? AND status = ?
	`, StatusDone, resultText, time.Now().Unix(), identity, StatusInProgress)
	if err != nil {
		return fmt.Errorf("commit %s: %w", identity, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("commit %s: entry not in progress", identity)
	}
	return nil
}

// Fail transitions in_progress to failed. A failed entry can be
// reclaimed by a later run.
func (l *Ledger) Fail(identity string) error {
	res, err := l.db.Exec(`
		UPDATE notes SET status = ?, processed_at = ?
		WHERE identity = ? AND status = ?
	`, StatusFailed, time.Now().Unix(), identity, StatusInProgress)
	if err != nil {
		return fmt.Errorf("fail %s: %w", identity, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fail %s: entry not in progress", identity)
	}
	return nil
}

// BumpAttempts records one more inference attempt for an owned entry.
func (l *Ledger) BumpAttempts(identity string) error {
	_, err := l.db.Exec(`UPDATE notes SET attempts = attempts + 1 WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("bump attempts %s: %w", identity, err)
	}
	return nil
}

// Recover resets entries stranded in_progress by an unclean shutdown
// back to pending so they are retried. Call once at startup, before
// any worker runs.
func (l *Ledger) Recover() (int, error) {
	res, err := l.db.Exec(`UPDATE notes SET status = ? WHERE status = ?`,
		StatusPending, StatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("recover stranded entries: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		L_info("ledger: reset stranded entries for retry", "count", n)
	}
	return int(n), nil
}

// Get returns the entry for an identity, or nil when unseen.
func (l *Ledger) Get(identity string) (*Entry, error) {
	row := l.db.QueryRow(`
		SELECT identity, path, size, mtime, status, attempts,
		       COALESCE(result_text, ''), first_seen, COALESCE(processed_at, 0)
		FROM notes WHERE identity = ?
	`, identity)

	var e Entry
	var mtime, firstSeen, processedAt int64
	err := row.Scan(&e.Identity, &e.Path, &e.Size, &mtime, &e.Status,
		&e.Attempts, &e.ResultText, &firstSeen, &processedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", identity, err)
	}

	e.ModTime = time.Unix(mtime, 0)
	e.FirstSeen = time.Unix(firstSeen, 0)
	if processedAt > 0 {
		e.ProcessedAt = time.Unix(processedAt, 0)
	}
	return &e, nil
}

// Pending returns identities waiting for a retry (pending status),
// oldest first. Used at startup to requeue recovered work.
func (l *Ledger) Pending() ([]Entry, error) {
	rows, err := l.db.Query(`
		SELECT identity, path, size, mtime, status, attempts,
		       COALESCE(result_text, ''), first_seen, COALESCE(processed_at, 0)
		FROM notes WHERE status = ? ORDER BY first_seen
	`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var mtime, firstSeen, processedAt int64
		if err := rows.Scan(&e.Identity, &e.Path, &e.Size, &mtime, &e.Status,
			&e.Attempts, &e.ResultText, &firstSeen, &processedAt); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		e.ModTime = time.Unix(mtime, 0)
		e.FirstSeen = time.Unix(firstSeen, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByStatus returns entry counts per status, for diagnostics.
func (l *Ledger) CountByStatus() (map[string]int, error) {
	rows, err := l.db.Query(`SELECT status, COUNT(*) FROM notes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
