package e2e

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperengineering/manifold/internal/api"
	"github.com/hyperengineering/manifold/internal/model"
	"github.com/hyperengineering/manifold/internal/store"
	"github.com/hyperengineering/manifold/pkg/syncstore"
)

const apiKey = "e2e-test-key"

// testEnv is one in-process deployment: a SQLite-backed façade server and
// a sync client pointed at it.
type testEnv struct {
	srv    *httptest.Server
	db     *store.SQLiteStore
	client *syncstore.Store

	shipments *syncstore.Resource[model.Shipment]
	manifests *syncstore.Resource[model.Manifest]
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "manifold.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(db, apiKey, "e2e")))
	t.Cleanup(srv.Close)

	client := syncstore.New(syncstore.Config{
		FreshnessWindow: 5 * time.Second,
		GatewayTimeout:  5 * time.Second,
	})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{srv: srv, db: db, client: client}
	env.shipments = syncstore.NewResource(client, "shipments",
		syncstore.NewHTTPGateway[model.Shipment](srv.URL, "shipments", apiKey))
	env.manifests = syncstore.NewResource(client, "manifests",
		syncstore.NewHTTPGateway[model.Manifest](srv.URL, "manifests", apiKey))
	return env
}

// seed inserts a document directly into the server store, bypassing the
// client, and returns the server-assigned id.
func (env *testEnv) seed(t *testing.T, collection string, doc any) model.ID {
	t.Helper()

	payload, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal seed doc: %v", err)
	}
	stored, err := env.db.Insert(context.Background(), collection, payload)
	if err != nil {
		t.Fatalf("seed %s: %v", collection, err)
	}

	var decoded struct {
		ID model.ID `json:"id"`
	}
	if err := json.Unmarshal(stored, &decoded); err != nil {
		t.Fatalf("decode seeded doc: %v", err)
	}
	return decoded.ID
}

func (env *testEnv) seedShipment(t *testing.T, branch, destination string, pieces int) model.ID {
	t.Helper()
	return env.seed(t, "shipments", map[string]any{
		"branch":      branch,
		"destination": destination,
		"paymentMode": "PAID",
		"consignor":   "Acme Traders",
		"consignee":   "Valley Stores",
		"pieces":      pieces,
		"weight":      100.0 * float64(pieces),
		"totalAmount": 2500.0 * float64(pieces),
	})
}

// activate performs the initial load on both resources.
func (env *testEnv) activate(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := env.shipments.Activate(ctx); err != nil {
		t.Fatalf("activate shipments: %v", err)
	}
	if err := env.manifests.Activate(ctx); err != nil {
		t.Fatalf("activate manifests: %v", err)
	}
}

// reload force-refreshes both resources from the server.
func (env *testEnv) reload(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := env.shipments.Reload(ctx); err != nil {
		t.Fatalf("reload shipments: %v", err)
	}
	if err := env.manifests.Reload(ctx); err != nil {
		t.Fatalf("reload manifests: %v", err)
	}
}

func shipmentIDs(shipments []model.Shipment) []model.ID {
	ids := make([]model.ID, len(shipments))
	for i, s := range shipments {
		ids[i] = s.ID
	}
	return ids
}

func containsID(ids []model.ID, id model.ID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
