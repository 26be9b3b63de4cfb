// Package snapshot persists the known-ticket snapshot so a restart does
// not replay every assigned ticket as newly added.
package snapshot

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deskhive-io/deskhive/internal/diff"
)

// SQLiteStore persists snapshots in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot store: open: %w", err)
	}

	// WAL for concurrent readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshot (
			ticket_id INTEGER PRIMARY KEY,
			revision  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS poll_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("snapshot store: migrate: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. A malformed row (non-positive id or
// empty revision) fails fast with a descriptive error; recovery is the
// caller's responsibility.
func (s *SQLiteStore) Load() (diff.Snapshot, error) {
	rows, err := s.db.Query(`SELECT ticket_id, revision FROM snapshot`)
	if err != nil {
		return nil, fmt.Errorf("snapshot store: load: %w", err)
	}
	defer rows.Close()

	snap := diff.Snapshot{}
	for rows.Next() {
		var id int64
		var rev string
		if err := rows.Scan(&id, &rev); err != nil {
			return nil, fmt.Errorf("snapshot store: scan: %w", err)
		}
		if id <= 0 || rev == "" {
			return nil, fmt.Errorf("snapshot store: malformed row (ticket_id=%d, revision=%q)", id, rev)
		}
		snap[id] = rev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot store: load: %w", err)
	}
	return snap, nil
}

// Replace atomically swaps the persisted snapshot for the given one and
// records the poll time.
func (s *SQLiteStore) Replace(snap diff.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("snapshot store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM snapshot`); err != nil {
		return fmt.Errorf("snapshot store: clear: %w", err)
	}
	for id, rev := range snap {
		if _, err := tx.Exec(`INSERT INTO snapshot (ticket_id, revision) VALUES (?, ?)`, id, rev); err != nil {
			return fmt.Errorf("snapshot store: insert %d: %w", id, err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`INSERT INTO poll_meta (key, value) VALUES ('last_poll_at', ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, now); err != nil {
		return fmt.Errorf("snapshot store: meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot store: commit: %w", err)
	}
	return nil
}

// LastPollAt returns the time of the last persisted poll, or the zero time
// when none has been recorded.
func (s *SQLiteStore) LastPollAt() (time.Time, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM poll_meta WHERE key = 'last_poll_at'`).Scan(&v)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot store: last poll: %w", err)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot store: malformed last_poll_at %q: %w", v, err)
	}
	return t, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection (for testing).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}
