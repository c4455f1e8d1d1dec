package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/manifold/internal/store"
	"github.com/hyperengineering/manifold/internal/validation"
)

// maxBodyBytes bounds request bodies; a manifest with a few hundred
// embedded shipments stays well under this.
const maxBodyBytes = 4 << 20

// Handler implements the collection façade: plain JSON CRUD per named
// resource, with one domain guard (manifests referenced by a trip are
// immutable).
type Handler struct {
	store   store.Store
	apiKey  string
	version string
}

// NewHandler creates a new Handler over the given store.
func NewHandler(s store.Store, apiKey, version string) *Handler {
	return &Handler{
		store:   s,
		apiKey:  apiKey,
		version: version,
	}
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health returns the health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: h.version,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListResource handles GET /api/v1/{resource}.
func (h *Handler) ListResource(w http.ResponseWriter, r *http.Request) {
	resource, ok := h.resourceName(w, r)
	if !ok {
		return
	}

	docs, err := h.store.List(r.Context(), resource)
	if err != nil {
		slog.Error("list failed", "resource", resource, "error", err)
		MapStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(docs)
}

// CreateResource handles POST /api/v1/{resource}. The server assigns the
// entity id.
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	resource, ok := h.resourceName(w, r)
	if !ok {
		return
	}

	payload, err := readBody(r)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
		return
	}

	stored, err := h.store.Insert(r.Context(), resource, payload)
	if err != nil {
		slog.Error("insert failed", "resource", resource, "error", err)
		MapStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(stored)
}

// UpdateResource handles PUT /api/v1/{resource}/{id}.
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	resource, ok := h.resourceName(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	payload, err := readBody(r)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
		return
	}

	stored, err := h.store.Replace(r.Context(), resource, id, payload)
	if err != nil {
		slog.Error("replace failed", "resource", resource, "id", id, "error", err)
		MapStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(stored)
}

// DeleteResource handles DELETE /api/v1/{resource}/{id}. Deleting a
// manifest that a trip references is refused with 409.
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	resource, ok := h.resourceName(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if resource == "manifests" {
		referenced, err := h.manifestHasTrip(r, id)
		if err != nil {
			slog.Error("trip guard check failed", "manifest", id, "error", err)
			MapStoreError(w, r, err)
			return
		}
		if referenced {
			WriteProblemConflict(w, r, "Manifest is referenced by a trip and cannot be deleted")
			return
		}
	}

	if err := h.store.Delete(r.Context(), resource, id); err != nil {
		MapStoreError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// manifestHasTrip scans the trips collection for a reference to the given
// manifest id. Trip documents carry the reference either as a bare id or
// as an embedded object.
func (h *Handler) manifestHasTrip(r *http.Request, manifestID string) (bool, error) {
	trips, err := h.store.List(r.Context(), "trips")
	if err != nil {
		return false, err
	}

	for _, raw := range trips {
		var trip struct {
			Manifest json.RawMessage `json:"manifest"`
		}
		if err := json.Unmarshal(raw, &trip); err != nil {
			continue
		}
		if refersTo(trip.Manifest, manifestID) {
			return true, nil
		}
	}
	return false, nil
}

// refersTo matches a raw reference value (bare string id, numeric id, or
// object with an id field) against an id.
func refersTo(raw json.RawMessage, id string) bool {
	if len(raw) == 0 {
		return false
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString == id
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String() == id
	}
	var asObject struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil && len(asObject.ID) > 0 {
		return refersTo(asObject.ID, id)
	}
	return false
}

func (h *Handler) resourceName(w http.ResponseWriter, r *http.Request) (string, bool) {
	resource := chi.URLParam(r, "resource")
	if verr := validation.ValidateResourceName("resource", resource); verr != nil {
		WriteProblemWithErrors(w, r, "Invalid resource name", []validation.ValidationError{*verr})
		return "", false
	}
	return resource, true
}

func readBody(r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("not valid JSON")
	}
	return json.RawMessage(data), nil
}
