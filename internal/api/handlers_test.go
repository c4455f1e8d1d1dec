package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperengineering/manifold/internal/store"
)

const handlerAPIKey = "handler-test-key"

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "manifold.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := NewHandler(s, handlerAPIKey, "test")
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, s
}

func doRequest(t *testing.T, method, url string, body string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+handlerAPIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeDoc(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return doc
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q, want healthy", health.Status)
	}
	if health.Version != "test" {
		t.Errorf("version = %q, want test", health.Version)
	}
}

func TestCollectionCRUD(t *testing.T) {
	srv, _ := newTestServer(t)

	// Create
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/shipments",
		`{"branch":"KTM","destination":"PKR","pieces":4,"weight":120.5}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	created := decodeDoc(t, resp)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created document has no server-assigned id")
	}

	// List
	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/shipments", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	var docs []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if len(docs) != 1 || docs[0]["id"] != id {
		t.Fatalf("list = %v, want single document with id %s", docs, id)
	}

	// Update
	resp = doRequest(t, http.MethodPut, srv.URL+"/api/v1/shipments/"+id,
		`{"branch":"KTM","destination":"BRT","pieces":4,"weight":120.5}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}
	updated := decodeDoc(t, resp)
	if updated["destination"] != "BRT" {
		t.Errorf("destination = %v, want BRT", updated["destination"])
	}
	if updated["id"] != id {
		t.Errorf("id changed across update: %v", updated["id"])
	}

	// Delete
	resp = doRequest(t, http.MethodDelete, srv.URL+"/api/v1/shipments/"+id, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/shipments", "")
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		t.Fatalf("decode list after delete: %v", err)
	}
	resp.Body.Close()
	if len(docs) != 0 {
		t.Errorf("list after delete = %v, want empty", docs)
	}
}

func TestUpdateMissingDocument_404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPut, srv.URL+"/api/v1/shipments/no-such-id",
		`{"branch":"KTM"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
}

func TestCreateInvalidBody_400(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "{{{"},
		{"array not object", `[1,2,3]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/shipments", tc.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestInvalidResourceName_422(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/Ship%20Ments", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	var p ProblemWithErrors
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if len(p.Errors) != 1 || p.Errors[0].Field != "resource" {
		t.Errorf("errors = %v, want one error on field resource", p.Errors)
	}
}

func TestProtectedRoutes_RequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/shipments")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestDeleteManifest_TripGuard(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	manifest, err := s.Insert(ctx, "manifests", json.RawMessage(`{"sequence":1,"manifestType":"BRANCH"}`))
	if err != nil {
		t.Fatalf("seed manifest: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(manifest, &doc); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	manifestID := doc["id"].(string)

	tests := []struct {
		name string
		trip string
	}{
		{"bare id reference", fmt.Sprintf(`{"status":"RUNNING","manifest":%q}`, manifestID)},
		{"embedded object reference", fmt.Sprintf(`{"status":"RUNNING","manifest":{"id":%q}}`, manifestID)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trip, err := s.Insert(ctx, "trips", json.RawMessage(tt.trip))
			if err != nil {
				t.Fatalf("seed trip: %v", err)
			}
			var tripDoc map[string]any
			json.Unmarshal(trip, &tripDoc)

			resp := doRequest(t, http.MethodDelete, srv.URL+"/api/v1/manifests/"+manifestID, "")
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusConflict {
				t.Fatalf("status = %d, want 409", resp.StatusCode)
			}
			var p Problem
			if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
				t.Fatalf("decode problem: %v", err)
			}
			if p.Type != "https://manifold.dev/errors/conflict" {
				t.Errorf("type = %v, want conflict", p.Type)
			}

			// Manifest must still exist.
			if _, err := s.Get(ctx, "manifests", manifestID); err != nil {
				t.Errorf("manifest removed despite guard: %v", err)
			}

			if err := s.Delete(ctx, "trips", tripDoc["id"].(string)); err != nil {
				t.Fatalf("cleanup trip: %v", err)
			}
		})
	}

	// With no trips left the delete goes through.
	resp := doRequest(t, http.MethodDelete, srv.URL+"/api/v1/manifests/"+manifestID, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unreferenced delete status = %d, want 204", resp.StatusCode)
	}
}

func TestDeleteManifest_UnrelatedTripDoesNotBlock(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	manifest, err := s.Insert(ctx, "manifests", json.RawMessage(`{"sequence":9,"manifestType":"VENDOR"}`))
	if err != nil {
		t.Fatalf("seed manifest: %v", err)
	}
	var doc map[string]any
	json.Unmarshal(manifest, &doc)
	manifestID := doc["id"].(string)

	if _, err := s.Insert(ctx, "trips", json.RawMessage(`{"status":"RUNNING","manifest":"some-other-manifest"}`)); err != nil {
		t.Fatalf("seed trip: %v", err)
	}

	resp := doRequest(t, http.MethodDelete, srv.URL+"/api/v1/manifests/"+manifestID, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}
