package ledger

import (
	"database/sql"
	"fmt"

	. "github.com/voxtail/voxtail/internal/logging"
)

// initSchema creates the processing history table and indexes.
func initSchema(db *sql.DB) error {
	L_debug("ledger: initializing schema")

	// WAL lets the claim path and the health queries coexist
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL`); err != nil {
		return fmt.Errorf("set synchronous: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS notes (
			identity TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			size INTEGER NOT NULL,
			mtime INTEGER NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('pending','in_progress','done','failed')),
			attempts INTEGER NOT NULL DEFAULT 0,
			result_text TEXT,
			first_seen INTEGER NOT NULL,
			processed_at INTEGER
		)
	`); err != nil {
		return fmt.Errorf("create notes table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_notes_status ON notes(status)`); err != nil {
		return fmt.Errorf("create idx_notes_status: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_notes_path ON notes(path)`); err != nil {
		return fmt.Errorf("create idx_notes_path: %w", err)
	}

	L_debug("ledger: schema ready")
	return nil
}
