package services

import (
	"context"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/platform/obs"
	"fmt"
	"log"
	"time"
)

// Command is an optimistic route mutation. Apply publishes the draft so
// readers see the change at once; Commit performs the backend calls; the
// caller invokes Rollback when Commit fails.
type Command interface {
	Apply()
	Commit(ctx context.Context) error
	Rollback()
}

// step is one backend call of a commit journal. undo reverses it and may be
// nil when nothing needs reversing.
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// routeCommand replaces the confirmed entries of one route with draft once
// every step has succeeded.
type routeCommand struct {
	store *SequenceStore
	key   domain.RouteKey
	r     *route
	draft []domain.SequenceEntry
	steps []step
}

var _ Command = (*routeCommand)(nil)

func (c *routeCommand) Apply() {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.r.pending = cloneEntries(c.draft)
}

// Commit runs the journal in order. When a step fails, the steps already
// performed are undone in reverse order. If an undo fails the backend no
// longer matches local state and the route is marked stale.
func (c *routeCommand) Commit(ctx context.Context) error {
	for i, st := range c.steps {
		if err := st.do(ctx); err != nil {
			c.compensate(ctx, i)
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.r.entries = cloneEntries(c.draft)
	c.r.pending = nil
	return nil
}

func (c *routeCommand) compensate(ctx context.Context, failed int) {
	// compensation must run even when the caller has given up
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	for i := failed - 1; i >= 0; i-- {
		st := c.steps[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(ctx); err != nil {
			log.Printf("req_id=%s op=sequence.compensate route=%s step=%q err=%v", obs.RequestID(ctx), c.key, st.name, err)
			c.store.markStale(c.r)
			return
		}
	}
}

func (c *routeCommand) Rollback() {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.r.pending = nil
}

func cloneEntries(entries []domain.SequenceEntry) []domain.SequenceEntry {
	if entries == nil {
		return []domain.SequenceEntry{}
	}
	out := make([]domain.SequenceEntry, len(entries))
	copy(out, entries)
	return out
}
