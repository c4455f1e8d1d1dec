package syncstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Fallback is the durable last-known-good copy of each resource, kept in a
// local SQLite file. It exists purely as a migration safety net: the sync
// engine saves successful fetches into it and invalidates the entry on
// every successful mutation so a stale record can never resurface through
// a fallback read.
type Fallback struct {
	db *sql.DB
}

// NewFallback opens (or creates) the fallback database at path.
func NewFallback(path string) (*Fallback, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create fallback directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open fallback database: %w", err)
	}

	f := &Fallback{db: db}
	if err := f.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return f, nil
}

// Close closes the database connection.
func (f *Fallback) Close() error {
	return f.db.Close()
}

func (f *Fallback) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resource_fallback (
		name     TEXT PRIMARY KEY,
		payload  TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);
	`
	_, err := f.db.Exec(schema)
	return err
}

// Save stores the JSON-serialized snapshot for a resource name.
func (f *Fallback) Save(name string, snapshot any) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal fallback snapshot: %w", err)
	}

	_, err = f.db.Exec(`
		INSERT INTO resource_fallback (name, payload, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at
	`, name, string(payload), time.Now().UTC().Format(time.RFC3339))
	return err
}

// Load decodes the saved snapshot for a resource name into out. It returns
// false when no entry exists.
func (f *Fallback) Load(name string, out any) (bool, error) {
	var payload string
	err := f.db.QueryRow("SELECT payload FROM resource_fallback WHERE name = ?", name).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("decode fallback snapshot: %w", err)
	}
	return true, nil
}

// Invalidate deletes the entry for a resource name. Missing entries are
// not an error.
func (f *Fallback) Invalidate(name string) error {
	_, err := f.db.Exec("DELETE FROM resource_fallback WHERE name = ?", name)
	return err
}
