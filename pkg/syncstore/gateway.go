package syncstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Entity is the minimal contract the sync engine needs from a record: a
// stable identifier, compared as a string. The engine never inspects any
// other field.
type Entity interface {
	EntityID() string
}

// Gateway is the per-resource transport used by a Collection. All four
// operations are mandatory; a missing operation is a compile error, not a
// silent no-op.
type Gateway[T Entity] interface {
	FetchAll(ctx context.Context) ([]T, error)
	Create(ctx context.Context, draft T) (T, error)
	Update(ctx context.Context, id string, patch T) (T, error)
	Delete(ctx context.Context, id string) error
}

// HTTPGateway speaks the collection façade's JSON CRUD protocol:
//
//	GET    {base}/api/v1/{resource}       -> [entity]
//	POST   {base}/api/v1/{resource}       -> entity (server assigns id)
//	PUT    {base}/api/v1/{resource}/{id}  -> entity
//	DELETE {base}/api/v1/{resource}/{id}
//
// Every failure is reported as a *TransportError.
type HTTPGateway[T Entity] struct {
	baseURL  string
	resource string
	apiKey   string
	client   *http.Client
}

// NewHTTPGateway creates a gateway for one named resource.
func NewHTTPGateway[T Entity](baseURL, resource, apiKey string) *HTTPGateway[T] {
	return &HTTPGateway[T]{
		baseURL:  baseURL,
		resource: resource,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchAll retrieves the full collection.
func (g *HTTPGateway[T]) FetchAll(ctx context.Context) ([]T, error) {
	var out []T
	if err := g.do(ctx, "fetch", http.MethodGet, g.collectionPath(), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Create persists a new entity; the server assigns its id.
func (g *HTTPGateway[T]) Create(ctx context.Context, draft T) (T, error) {
	var out T
	err := g.do(ctx, "create", http.MethodPost, g.collectionPath(), draft, &out)
	return out, err
}

// Update replaces the entity with the given id.
func (g *HTTPGateway[T]) Update(ctx context.Context, id string, patch T) (T, error) {
	var out T
	err := g.do(ctx, "update", http.MethodPut, g.entityPath(id), patch, &out)
	return out, err
}

// Delete removes the entity with the given id.
func (g *HTTPGateway[T]) Delete(ctx context.Context, id string) error {
	return g.do(ctx, "delete", http.MethodDelete, g.entityPath(id), nil, nil)
}

func (g *HTTPGateway[T]) collectionPath() string {
	return fmt.Sprintf("%s/api/v1/%s", g.baseURL, g.resource)
}

func (g *HTTPGateway[T]) entityPath(id string) string {
	return fmt.Sprintf("%s/api/v1/%s/%s", g.baseURL, g.resource, id)
}

func (g *HTTPGateway[T]) do(ctx context.Context, op, method, url string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Resource: g.resource, Err: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return &TransportError{Op: op, Resource: g.resource, Err: err}
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Resource: g.resource, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{
			Op:       op,
			Resource: g.resource,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%s", readProblemDetail(resp.Body, resp.StatusCode)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Resource: g.resource, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// readProblemDetail extracts the detail from an RFC 7807 problem body,
// falling back to the HTTP status text.
func readProblemDetail(body io.Reader, status int) string {
	var problem struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&problem); err == nil {
		if problem.Detail != "" {
			return problem.Detail
		}
		if problem.Title != "" {
			return problem.Title
		}
	}
	return http.StatusText(status)
}
