package syncstore

import (
	"context"
	"sync"
)

// Resource binds one named collection to reactive consumer state: the
// current snapshot, a loading flag, the last error, the three mutations,
// and an explicit Reload escape hatch. It is the single surface a screen
// talks to.
//
// A Resource starts in the loading state with an empty snapshot and
// fetches exactly once on Activate; repeated Activate calls (a consumer
// re-rendering) do not re-fetch. Only Reload forces a fresh gateway call.
type Resource[T Entity] struct {
	coll *Collection[T]

	mu        sync.Mutex
	loading   bool
	activated bool
	watchers  map[int]func()
	nextWatch int
}

// NewResource creates a hook for one resource name on the given store.
func NewResource[T Entity](store *Store, name string, gateway Gateway[T]) *Resource[T] {
	return &Resource[T]{
		coll:     NewCollection[T](store, name, gateway),
		loading:  true,
		watchers: make(map[int]func()),
	}
}

// Activate performs the initial fetch. It is idempotent: once the first
// load has run, further calls return the cached outcome without touching
// the gateway.
func (r *Resource[T]) Activate(ctx context.Context) error {
	r.mu.Lock()
	if r.activated {
		r.mu.Unlock()
		_, err := r.coll.Snapshot()
		return err
	}
	r.activated = true
	r.loading = true
	r.mu.Unlock()

	_, err := r.coll.Load(ctx)
	r.finishLoad()
	return err
}

// Name returns the resource name this hook is bound to.
func (r *Resource[T]) Name() string {
	return r.coll.Name()
}

// Reload forces a gateway fetch regardless of cache freshness. Used after
// actions known to invalidate server state from another source.
func (r *Resource[T]) Reload(ctx context.Context) error {
	r.mu.Lock()
	r.activated = true
	r.loading = true
	r.mu.Unlock()

	_, err := r.coll.ForceLoad(ctx)
	r.finishLoad()
	return err
}

func (r *Resource[T]) finishLoad() {
	r.mu.Lock()
	r.loading = false
	r.mu.Unlock()
	r.notify()
}

// Snapshot returns a copy of the current in-memory snapshot.
func (r *Resource[T]) Snapshot() []T {
	snap, _ := r.coll.Snapshot()
	return snap
}

// Loading reports whether an Activate or Reload is in progress.
func (r *Resource[T]) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Err returns the error from the most recent failed load, or nil.
func (r *Resource[T]) Err() error {
	_, err := r.coll.Snapshot()
	return err
}

// Create persists a draft and applies it to the snapshot on success.
func (r *Resource[T]) Create(ctx context.Context, draft T) (T, error) {
	created, err := r.coll.Create(ctx, draft)
	if err == nil {
		r.notify()
	}
	return created, err
}

// Update persists a replacement and applies it to the snapshot on success.
func (r *Resource[T]) Update(ctx context.Context, id string, patch T) (T, error) {
	updated, err := r.coll.Update(ctx, id, patch)
	if err == nil {
		r.notify()
	}
	return updated, err
}

// Remove deletes an entity and filters it from the snapshot on success.
func (r *Resource[T]) Remove(ctx context.Context, id string) error {
	err := r.coll.Remove(ctx, id)
	if err == nil {
		r.notify()
	}
	return err
}

// Watch registers a callback invoked after every snapshot change. The
// returned function cancels the registration.
func (r *Resource[T]) Watch(fn func()) func() {
	r.mu.Lock()
	id := r.nextWatch
	r.nextWatch++
	r.watchers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
	}
}

// notify invokes watchers outside the lock; a watcher may call back into
// the resource.
func (r *Resource[T]) notify() {
	r.mu.Lock()
	fns := make([]func(), 0, len(r.watchers))
	for _, fn := range r.watchers {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
