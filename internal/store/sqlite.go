package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed collection store behind the façade.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dbPath, applies pragmas, and runs
// migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// List returns every document in a collection in insertion order.
func (s *SQLiteStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM documents
		WHERE collection = ?
		ORDER BY rowid
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []json.RawMessage{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		docs = append(docs, json.RawMessage(payload))
	}
	return docs, rows.Err()
}

// Get returns one document, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

// Insert stores a new document under a server-assigned ULID id.
func (s *SQLiteStore) Insert(ctx context.Context, collection string, payload json.RawMessage) (json.RawMessage, error) {
	doc, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}

	id := ulid.Make().String()
	doc["id"] = id
	stored, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, collection, id, string(stored), now, now); err != nil {
		return nil, err
	}
	if err := bumpRevision(ctx, tx, collection); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return stored, nil
}

// Replace overwrites the document with the given id.
func (s *SQLiteStore) Replace(ctx context.Context, collection, id string, payload json.RawMessage) (json.RawMessage, error) {
	doc, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}

	// The path id wins over whatever the body carries.
	doc["id"] = id
	stored, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE documents SET payload = ?, updated_at = ?
		WHERE collection = ? AND id = ?
	`, string(stored), now, collection, id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	if err := bumpRevision(ctx, tx, collection); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return stored, nil
}

// Delete removes the document with the given id.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, collection, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	if err := bumpRevision(ctx, tx, collection); err != nil {
		return err
	}
	return tx.Commit()
}

// Revision returns the collection's revision counter, zero for untouched
// collections.
func (s *SQLiteStore) Revision(ctx context.Context, collection string) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `
		SELECT revision FROM collection_revisions WHERE collection = ?
	`, collection).Scan(&rev)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return rev, err
}

// CollectionInfo summarizes one named collection.
type CollectionInfo struct {
	Name     string `json:"name"`
	Count    int64  `json:"count"`
	Revision int64  `json:"revision"`
}

// Collections enumerates every collection that holds documents or has been
// mutated, with document counts and revision counters.
func (s *SQLiteStore) Collections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.collection,
		       COALESCE(d.cnt, 0),
		       COALESCE(r.revision, 0)
		FROM (
			SELECT collection FROM documents
			UNION
			SELECT collection FROM collection_revisions
		) c
		LEFT JOIN (
			SELECT collection, COUNT(*) AS cnt FROM documents GROUP BY collection
		) d ON d.collection = c.collection
		LEFT JOIN collection_revisions r ON r.collection = c.collection
		ORDER BY c.collection
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Count, &info.Revision); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func bumpRevision(ctx context.Context, tx *sql.Tx, collection string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO collection_revisions (collection, revision)
		VALUES (?, 1)
		ON CONFLICT(collection) DO UPDATE SET revision = revision + 1
	`, collection)
	return err
}

func decodeObject(payload json.RawMessage) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if doc == nil {
		return nil, ErrInvalidPayload
	}
	return doc, nil
}
