package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRefresher struct {
	name    string
	err     error
	reloads atomic.Int64
}

func (f *fakeRefresher) Name() string { return f.name }

func (f *fakeRefresher) Reload(ctx context.Context) error {
	f.reloads.Add(1)
	return f.err
}

func TestRefreshCoordinator_RefreshesAllResources(t *testing.T) {
	shipments := &fakeRefresher{name: "shipments"}
	manifests := &fakeRefresher{name: "manifests"}

	c := NewRefreshCoordinator(10*time.Millisecond, shipments, manifests)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for shipments.reloads.Load() == 0 || manifests.reloads.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("resources were not refreshed within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	wg.Wait()
}

func TestRefreshCoordinator_ContinuesPastFailures(t *testing.T) {
	failing := &fakeRefresher{name: "branches", err: errors.New("gateway down")}
	healthy := &fakeRefresher{name: "vehicles"}

	c := NewRefreshCoordinator(10*time.Millisecond, failing, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for healthy.reloads.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("healthy resource was not refreshed despite earlier failure")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	wg.Wait()

	if failing.reloads.Load() == 0 {
		t.Error("failing resource was never attempted")
	}
}

func TestRefreshCoordinator_StopsOnContextCancel(t *testing.T) {
	res := &fakeRefresher{name: "drivers"}
	c := NewRefreshCoordinator(time.Hour, res)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop on context cancellation")
	}

	// With an hour-long interval nothing should have refreshed.
	if res.reloads.Load() != 0 {
		t.Errorf("reloads = %d, want 0 before first tick", res.reloads.Load())
	}
}
