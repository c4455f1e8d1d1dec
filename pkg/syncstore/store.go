package syncstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultFreshnessWindow is how long a fetched snapshot is served
	// without a new gateway call.
	DefaultFreshnessWindow = 5 * time.Second

	// DefaultGatewayTimeout bounds every gateway call so a hung fetch
	// cannot hold the in-flight marker forever.
	DefaultGatewayTimeout = 30 * time.Second
)

// Config holds the sync engine configuration.
type Config struct {
	FreshnessWindow time.Duration // default: DefaultFreshnessWindow
	GatewayTimeout  time.Duration // default: DefaultGatewayTimeout
	Fallback        *Fallback     // optional durable last-known-good copy
	Metrics         *Metrics      // optional instrumentation
}

// Store is the shared sync engine for one application session. It owns the
// in-flight bookkeeping and the configuration every Collection uses.
// Construct one per session (or per test case) and pass it by reference;
// there is no hidden process-wide instance.
type Store struct {
	cfg    Config
	flight singleflight.Group
	now    func() time.Time

	mu     sync.Mutex
	closed bool
}

// New creates a Store with defaults applied.
func New(cfg Config) *Store {
	if cfg.FreshnessWindow == 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.GatewayTimeout == 0 {
		cfg.GatewayTimeout = DefaultGatewayTimeout
	}
	return &Store{
		cfg: cfg,
		now: time.Now,
	}
}

// Close marks the store closed and closes the fallback database if one was
// configured. In-flight fetches complete but their results are discarded
// by subsequent callers.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.cfg.Fallback != nil {
		return s.cfg.Fallback.Close()
	}
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Collection is the synchronized in-memory view of one named resource:
// freshness-bounded cached reads, single-flight fetch collapse, and
// write-through mutations applied optimistically to the snapshot.
//
// All bookkeeping is guarded by one mutex per collection; the only
// blocking work (gateway calls) happens outside it.
type Collection[T Entity] struct {
	store   *Store
	name    string
	gateway Gateway[T]

	mu         sync.Mutex
	snapshot   []T
	fetchedAt  time.Time
	hasFetched bool
	loadErr    error
}

// NewCollection binds a resource name and its gateway to a Store.
func NewCollection[T Entity](store *Store, name string, gateway Gateway[T]) *Collection[T] {
	return &Collection[T]{
		store:    store,
		name:     name,
		gateway:  gateway,
		snapshot: []T{},
	}
}

// Name returns the resource name this collection synchronizes.
func (c *Collection[T]) Name() string { return c.name }

// Load returns the collection snapshot, fetching through the gateway only
// when the cached copy is missing or stale. Concurrent callers share one
// fetch; callers arriving inside the freshness window are served from the
// cache with no network call.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	return c.load(ctx, false)
}

// ForceLoad fetches through the gateway regardless of cache freshness. If
// a fetch is already in flight the caller attaches to it rather than
// issuing a second one.
func (c *Collection[T]) ForceLoad(ctx context.Context) ([]T, error) {
	return c.load(ctx, true)
}

func (c *Collection[T]) load(ctx context.Context, force bool) ([]T, error) {
	if c.store.isClosed() {
		return nil, ErrClosed
	}

	if !force {
		c.mu.Lock()
		fresh := c.hasFetched && c.loadErr == nil &&
			c.store.now().Sub(c.fetchedAt) < c.store.cfg.FreshnessWindow
		if fresh {
			snap := slices.Clone(c.snapshot)
			c.mu.Unlock()
			c.store.cfg.Metrics.cacheHit(c.name)
			return snap, nil
		}
		c.mu.Unlock()
	}

	c.store.cfg.Metrics.cacheMiss(c.name)

	v, err, shared := c.store.flight.Do(c.name, func() (any, error) {
		// The fetch is shared state: a caller that stops waiting must
		// not cancel it for everyone else, so it runs detached from
		// the caller's context under the configured deadline.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.store.cfg.GatewayTimeout)
		defer cancel()

		items, err := c.gateway.FetchAll(fctx)
		if err != nil {
			c.store.cfg.Metrics.gatewayError(c.name, "fetch")
			c.mu.Lock()
			// Observed behavior preserved: a failed load discards the
			// previous snapshot rather than keeping last-known-good.
			c.snapshot = []T{}
			c.hasFetched = true
			c.loadErr = err
			c.mu.Unlock()
			return nil, err
		}

		c.commitFetch(items)
		return items, nil
	})
	if shared {
		c.store.cfg.Metrics.collapsedLoad(c.name)
	}
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]T)), nil
}

// commitFetch installs a fetched snapshot: snapshot, freshness timestamp,
// and durable fallback move together so no stale read can interleave.
func (c *Collection[T]) commitFetch(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = slices.Clone(items)
	c.fetchedAt = c.store.now()
	c.hasFetched = true
	c.loadErr = nil

	if c.store.cfg.Fallback != nil {
		_ = c.store.cfg.Fallback.Save(c.name, c.snapshot)
	}
}

// Create persists a draft through the gateway and, on success, appends the
// server-assigned entity to the snapshot.
func (c *Collection[T]) Create(ctx context.Context, draft T) (T, error) {
	var zero T
	if c.store.isClosed() {
		return zero, ErrClosed
	}

	cctx, cancel := c.callContext(ctx)
	defer cancel()

	created, err := c.gateway.Create(cctx, draft)
	if err != nil {
		c.store.cfg.Metrics.gatewayError(c.name, "create")
		return zero, err
	}

	c.commitMutation(func(snapshot []T) []T {
		return append(snapshot, created)
	})
	return created, nil
}

// Update persists a replacement through the gateway and, on success, swaps
// the matching entity in the snapshot.
func (c *Collection[T]) Update(ctx context.Context, id string, patch T) (T, error) {
	var zero T
	if c.store.isClosed() {
		return zero, ErrClosed
	}

	cctx, cancel := c.callContext(ctx)
	defer cancel()

	updated, err := c.gateway.Update(cctx, id, patch)
	if err != nil {
		c.store.cfg.Metrics.gatewayError(c.name, "update")
		return zero, err
	}

	c.commitMutation(func(snapshot []T) []T {
		for i := range snapshot {
			if snapshot[i].EntityID() == id {
				snapshot[i] = updated
				break
			}
		}
		return snapshot
	})
	return updated, nil
}

// Remove deletes through the gateway and, on success, filters the entity
// out of the snapshot.
func (c *Collection[T]) Remove(ctx context.Context, id string) error {
	if c.store.isClosed() {
		return ErrClosed
	}

	cctx, cancel := c.callContext(ctx)
	defer cancel()

	if err := c.gateway.Delete(cctx, id); err != nil {
		c.store.cfg.Metrics.gatewayError(c.name, "delete")
		return err
	}

	c.commitMutation(func(snapshot []T) []T {
		return slices.DeleteFunc(snapshot, func(e T) bool {
			return e.EntityID() == id
		})
	})
	return nil
}

// commitMutation applies an optimistic snapshot edit as one atomic commit:
// the snapshot changes, the freshness timestamp resets, and the durable
// fallback entry is invalidated together, so no window exists where a
// cached or fallback read could undo the mutation.
func (c *Collection[T]) commitMutation(apply func([]T) []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = apply(c.snapshot)
	c.fetchedAt = c.store.now()
	// A successful write proves the gateway is reachable again, so any
	// error left over from a failed load no longer describes the snapshot.
	c.loadErr = nil

	if c.store.cfg.Fallback != nil {
		_ = c.store.cfg.Fallback.Invalidate(c.name)
	}
}

// Snapshot returns a copy of the current in-memory snapshot without any
// network activity, along with the last load error if the most recent
// fetch failed.
func (c *Collection[T]) Snapshot() ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.snapshot), c.loadErr
}

func (c *Collection[T]) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.store.cfg.GatewayTimeout)
}
