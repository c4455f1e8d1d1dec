package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Store is the persistence interface behind the collection façade. Every
// entity is an opaque JSON document addressed by (collection, id); the
// store never interprets fields beyond the id.
type Store interface {
	// List returns every document in a collection in insertion order.
	List(ctx context.Context, collection string) ([]json.RawMessage, error)

	// Get returns one document, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)

	// Insert stores a new document, assigning its id, and returns the
	// document with the id injected.
	Insert(ctx context.Context, collection string, payload json.RawMessage) (json.RawMessage, error)

	// Replace overwrites the document with the given id, or ErrNotFound.
	Replace(ctx context.Context, collection, id string, payload json.RawMessage) (json.RawMessage, error)

	// Delete removes the document with the given id, or ErrNotFound.
	Delete(ctx context.Context, collection, id string) error

	// Revision returns the collection's monotonic revision counter,
	// bumped by every mutation. Diagnostic only.
	Revision(ctx context.Context, collection string) (int64, error)

	Close() error
}

var (
	ErrNotFound       = errors.New("document not found")
	ErrInvalidPayload = errors.New("payload is not a JSON object")
)
