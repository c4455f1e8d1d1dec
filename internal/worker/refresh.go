package worker

import (
	"context"
	"log/slog"
	"time"
)

// Refresher is one synced resource the coordinator keeps warm.
// Implemented by syncstore.Resource.
type Refresher interface {
	Name() string
	Reload(ctx context.Context) error
}

// RefreshCoordinator periodically re-fetches a set of synced resources so a
// long-running client serves recent snapshots even when no screen triggers
// a load. Individual failures are logged and skipped; the loop never stops
// on error.
type RefreshCoordinator struct {
	interval  time.Duration
	resources []Refresher
}

// NewRefreshCoordinator creates a refresh coordinator for the given resources.
func NewRefreshCoordinator(interval time.Duration, resources ...Refresher) *RefreshCoordinator {
	return &RefreshCoordinator{
		interval:  interval,
		resources: resources,
	}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled.
//
// The first refresh waits for a full ticker interval; callers activate
// resources themselves on startup, so an immediate pass would double-fetch.
func (c *RefreshCoordinator) Run(ctx context.Context) {
	slog.Info("refresh coordinator started",
		"component", "worker",
		"worker", "refresh-coordinator",
		"interval", c.interval.String(),
		"resources", len(c.resources),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh coordinator stopped",
				"component", "worker",
				"worker", "refresh-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.refreshAll(ctx)
		}
	}
}

// refreshAll reloads each resource, continuing on individual failures.
func (c *RefreshCoordinator) refreshAll(ctx context.Context) {
	start := time.Now()
	var succeeded, failed int

	for _, res := range c.resources {
		if ctx.Err() != nil {
			return // Graceful shutdown
		}

		if err := res.Reload(ctx); err != nil {
			failed++
			slog.Warn("resource refresh failed",
				"component", "worker",
				"worker", "refresh-coordinator",
				"resource", res.Name(),
				"error", err,
			)
			continue
		}
		succeeded++
	}

	slog.Info("refresh cycle completed",
		"component", "worker",
		"worker", "refresh-coordinator",
		"resources_succeeded", succeeded,
		"resources_failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
