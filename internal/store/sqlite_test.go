package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "manifold.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_InsertAssignsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Insert(ctx, "shipments", json.RawMessage(`{"branch":"b1","pieces":3}`))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(stored, &doc); err != nil {
		t.Fatalf("decode stored doc: %v", err)
	}
	id, _ := doc["id"].(string)
	if len(id) != 26 {
		t.Errorf("expected server-assigned ULID id, got %q", id)
	}
	if doc["branch"] != "b1" {
		t.Errorf("payload fields not preserved: %v", doc)
	}

	got, err := s.Get(ctx, "shipments", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(stored) {
		t.Errorf("get mismatch: %s vs %s", got, stored)
	}
}

func TestSQLiteStore_ListInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.Insert(ctx, "branches", json.RawMessage(`{"name":"`+name+`"}`)); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	docs, err := s.List(ctx, "branches")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 docs, got %d", len(docs))
	}
	for i, want := range []string{"a", "b", "c"} {
		var doc map[string]any
		json.Unmarshal(docs[i], &doc)
		if doc["name"] != want {
			t.Errorf("doc %d: expected name %q, got %v", i, want, doc["name"])
		}
	}

	// Collections are independent.
	other, err := s.List(ctx, "vehicles")
	if err != nil {
		t.Fatalf("list empty collection: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected empty collection, got %d docs", len(other))
	}
}

func TestSQLiteStore_ReplaceAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Insert(ctx, "shipments", json.RawMessage(`{"pieces":1}`))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	var doc map[string]any
	json.Unmarshal(stored, &doc)
	id := doc["id"].(string)

	replaced, err := s.Replace(ctx, "shipments", id, json.RawMessage(`{"pieces":9,"id":"spoofed"}`))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	json.Unmarshal(replaced, &doc)
	if doc["id"] != id {
		t.Errorf("path id must win over body id, got %v", doc["id"])
	}
	if doc["pieces"] != float64(9) {
		t.Errorf("replace did not apply: %v", doc)
	}

	if _, err := s.Replace(ctx, "shipments", "missing", json.RawMessage(`{}`)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.Delete(ctx, "shipments", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "shipments", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "shipments", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestSQLiteStore_InvalidPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, payload := range []string{`[]`, `"x"`, `not json`, `null`} {
		if _, err := s.Insert(ctx, "shipments", json.RawMessage(payload)); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("payload %s: expected ErrInvalidPayload, got %v", payload, err)
		}
	}
}

func TestSQLiteStore_Revision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rev, err := s.Revision(ctx, "shipments")
	if err != nil || rev != 0 {
		t.Fatalf("expected revision 0 for untouched collection, got %d (%v)", rev, err)
	}

	stored, _ := s.Insert(ctx, "shipments", json.RawMessage(`{"pieces":1}`))
	var doc map[string]any
	json.Unmarshal(stored, &doc)
	id := doc["id"].(string)

	s.Replace(ctx, "shipments", id, json.RawMessage(`{"pieces":2}`))
	s.Delete(ctx, "shipments", id)

	rev, err = s.Revision(ctx, "shipments")
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if rev != 3 {
		t.Errorf("expected revision 3 after 3 mutations, got %d", rev)
	}

	// Mutations on one collection do not touch another's counter.
	other, _ := s.Revision(ctx, "manifests")
	if other != 0 {
		t.Errorf("expected untouched collection at 0, got %d", other)
	}
}

func TestSQLiteStore_Collections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	infos, err := s.Collections(ctx)
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("fresh database lists %d collections, want 0", len(infos))
	}

	s.Insert(ctx, "shipments", json.RawMessage(`{"pieces":1}`))
	s.Insert(ctx, "shipments", json.RawMessage(`{"pieces":2}`))
	stored, _ := s.Insert(ctx, "branches", json.RawMessage(`{"name":"Kathmandu"}`))

	// A collection whose only document was deleted still appears, with
	// its revision counter intact.
	var doc map[string]any
	json.Unmarshal(stored, &doc)
	s.Delete(ctx, "branches", doc["id"].(string))

	infos, err = s.Collections(ctx)
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d collections, want 2: %+v", len(infos), infos)
	}

	// Sorted by name: branches, shipments.
	if infos[0].Name != "branches" || infos[0].Count != 0 || infos[0].Revision != 2 {
		t.Errorf("branches info = %+v", infos[0])
	}
	if infos[1].Name != "shipments" || infos[1].Count != 2 || infos[1].Revision != 2 {
		t.Errorf("shipments info = %+v", infos[1])
	}
}
