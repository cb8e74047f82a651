package services

import (
	"context"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/platform/obs"
	"dispatch-route-service/internal/ports"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// OrderCache holds the bucketed orders of each technician for the session.
// A technician with no orders is cached as an explicit empty record, which
// is different from not fetched yet. Failed fetches are not cached.
type OrderCache struct {
	source  ports.OrderSource
	workers int

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]domain.Buckets
	gen     map[string]uint64 // bumped by Invalidate; stale fetches are not stored
}

func NewOrderCache(source ports.OrderSource, workers int) *OrderCache {
	if workers < 1 {
		workers = 1
	}
	return &OrderCache{
		source:  source,
		workers: workers,
		entries: map[string]domain.Buckets{},
		gen:     map[string]uint64{},
	}
}

// Get returns the cached record and whether the technician was fetched.
func (c *OrderCache) Get(name string) (domain.Buckets, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.entries[name]
	return b, ok
}

// Lookup returns the cached record, fetching it first when missing.
func (c *OrderCache) Lookup(ctx context.Context, name string) (domain.Buckets, error) {
	if b, ok := c.Get(name); ok {
		return b, nil
	}
	return c.fetch(ctx, name)
}

// Prefetch fetches every technician not yet cached, one request each, in
// parallel. Failures for individual technicians are joined into the
// returned error; the others are still cached.
func (c *OrderCache) Prefetch(ctx context.Context, names []string) (err error) {
	defer obs.Time(ctx, "orders.Prefetch")(&err)

	missing := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		if _, ok := c.Get(n); ok {
			continue
		}
		missing = append(missing, n)
	}

	if len(missing) == 0 {
		return nil
	}

	errs := make([]error, len(missing))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, name := range missing {
		i, name := i, name
		g.Go(func() error {
			_, errs[i] = c.fetch(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// fetch loads one technician. Concurrent fetches of the same name share a
// single backend request.
func (c *OrderCache) fetch(ctx context.Context, name string) (domain.Buckets, error) {
	v, err, _ := c.group.Do(name, func() (any, error) {
		c.mu.RLock()
		gen := c.gen[name]
		c.mu.RUnlock()

		b, err := c.source.TechnicianOrders(ctx, name)
		if err != nil {
			obs.OrderCacheFetches.WithLabelValues("error").Inc()
			return domain.Buckets{}, fmt.Errorf("fetch orders for %q: %w", name, err)
		}
		if b.Technician == "" {
			b.Technician = name
		}

		c.mu.Lock()
		if c.gen[name] == gen {
			c.entries[name] = b
		}
		c.mu.Unlock()

		outcome := "ok"
		if b.Total() == 0 {
			outcome = "empty"
		}
		obs.OrderCacheFetches.WithLabelValues(outcome).Inc()
		return b, nil
	})
	if err != nil {
		return domain.Buckets{}, err
	}
	return v.(domain.Buckets), nil
}

// Invalidate forgets the technician so the next Lookup or Prefetch refetches.
func (c *OrderCache) Invalidate(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range names {
		delete(c.entries, n)
		c.gen[n]++
		c.group.Forget(n)
	}
}

// Snapshot returns a copy of every cached record.
func (c *OrderCache) Snapshot() map[string]domain.Buckets {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]domain.Buckets, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// BoardColumn is one technician column of the dispatch board.
type BoardColumn struct {
	Technician string         `json:"technician"`
	Loaded     bool           `json:"loaded"`
	Buckets    domain.Buckets `json:"buckets"`
}

// Board builds the columns for the visible technicians from cached records.
// It is pure: callers decide when to recompute. A known-empty technician
// gets an explicit empty column; one not fetched yet has Loaded=false.
func Board(names []string, get func(name string) (domain.Buckets, bool)) []BoardColumn {
	cols := make([]BoardColumn, 0, len(names))
	for _, n := range names {
		b, ok := get(n)
		if !ok {
			cols = append(cols, BoardColumn{Technician: n, Buckets: domain.EmptyBuckets(n)})
			continue
		}
		cols = append(cols, BoardColumn{Technician: n, Loaded: true, Buckets: b})
	}
	return cols
}
