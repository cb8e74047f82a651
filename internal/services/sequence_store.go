package services

import (
	"context"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/platform/obs"
	"dispatch-route-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SequenceStore is the authoritative ordered list of orders per technician
// and forecast date. Routes load lazily from the backend; every mutation
// reaches the backend before it becomes confirmed locally.
//
// Mutations on one route are serialized. Different routes proceed in
// parallel. After every operation a route is dense: sequences 1..N.
type SequenceStore struct {
	backend         ports.SequenceBackend
	bulkConcurrency int

	mu     sync.Mutex
	routes map[domain.RouteKey]*route
}

type route struct {
	sem chan struct{}

	// guarded by SequenceStore.mu
	loaded  bool
	stale   bool
	entries []domain.SequenceEntry // confirmed by the backend
	pending []domain.SequenceEntry // optimistic draft of the running command
}

// BulkResult reports a bulk save per order.
type BulkResult struct {
	Saved   []string         `json:"saved"`
	Failed  []string         `json:"failed"`
	Skipped []string         `json:"skipped"`
	Errors  map[string]error `json:"-"`
}

func NewSequenceStore(backend ports.SequenceBackend, bulkConcurrency int) *SequenceStore {
	if bulkConcurrency < 1 {
		bulkConcurrency = 1
	}
	return &SequenceStore{
		backend:         backend,
		bulkConcurrency: bulkConcurrency,
		routes:          map[domain.RouteKey]*route{},
	}
}

func (s *SequenceStore) route(key domain.RouteKey) *route {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[key]
	if !ok {
		r = &route{sem: make(chan struct{}, 1)}
		s.routes[key] = r
	}
	return r
}

// acquire waits for exclusive use of the route or for ctx to end.
func (s *SequenceStore) acquire(ctx context.Context, key domain.RouteKey) (*route, func(), error) {
	r := s.route(key)
	select {
	case r.sem <- struct{}{}:
		return r, func() { <-r.sem }, nil
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("route %s: wait for lock: %w", key, ctx.Err())
	}
}

func (s *SequenceStore) markStale(r *route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.stale = true
}

func (s *SequenceStore) confirmed(r *route) []domain.SequenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(r.entries)
}

// Load re-reads the route from the backend, replacing local state.
func (s *SequenceStore) Load(ctx context.Context, key domain.RouteKey) (_ []domain.SequenceEntry, err error) {
	defer obs.Time(ctx, "sequence.Load")(&err)

	if err := key.Validate(); err != nil {
		return nil, err
	}

	r, release, err := s.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.loadLocked(ctx, key, r); err != nil {
		return nil, err
	}
	return s.confirmed(r), nil
}

// loadLocked fetches the route and compacts it to 1..N. Entries whose
// sequence the backend holds differently are written back. The caller holds
// the route semaphore.
func (s *SequenceStore) loadLocked(ctx context.Context, key domain.RouteKey, r *route) error {
	fetched, err := s.backend.ListSequence(ctx, key)
	if err != nil {
		return fmt.Errorf("load route %s: %w", key, err)
	}

	entries := make([]domain.SequenceEntry, 0, len(fetched))
	seen := make(map[string]struct{}, len(fetched))
	for _, e := range fetched {
		if e.OrderID == "" {
			continue
		}
		if _, dup := seen[e.OrderID]; dup {
			continue
		}
		seen[e.OrderID] = struct{}{}
		e.TechnicianID, e.ForecastDate = key.TechnicianID, key.ForecastDate
		entries = append(entries, e)
	}
	domain.SortEntries(entries)

	backendSeq := make(map[string]int, len(entries))
	for _, e := range entries {
		backendSeq[e.OrderID] = e.Sequence
	}
	domain.Renumber(entries)

	repaired := 0
	for _, e := range entries {
		if backendSeq[e.OrderID] == e.Sequence {
			continue
		}
		if err := s.backend.UpdateSequence(ctx, e); err != nil {
			return fmt.Errorf("load route %s: compact order %s to %d: %w", key, e.OrderID, e.Sequence, err)
		}
		repaired++
	}
	if repaired > 0 {
		log.Printf("req_id=%s op=sequence.load route=%s compacted=%d", obs.RequestID(ctx), key, repaired)
	}

	if err := domain.CheckDense(entries); err != nil {
		return fmt.Errorf("load route %s: %w", key, err)
	}

	s.mu.Lock()
	r.entries = entries
	r.pending = nil
	r.loaded = true
	r.stale = false
	s.mu.Unlock()

	return nil
}

func (s *SequenceStore) ensureLoaded(ctx context.Context, key domain.RouteKey, r *route) error {
	s.mu.Lock()
	fresh := r.loaded && !r.stale
	s.mu.Unlock()

	if fresh {
		return nil
	}
	return s.loadLocked(ctx, key, r)
}

// Entries returns the confirmed route, loading it on first use.
func (s *SequenceStore) Entries(ctx context.Context, key domain.RouteKey) ([]domain.SequenceEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	r, release, err := s.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.ensureLoaded(ctx, key, r); err != nil {
		return nil, err
	}
	return s.confirmed(r), nil
}

// View returns what the UI should show right now: the draft of a running
// mutation when there is one, otherwise the confirmed route. It never
// touches the backend and returns nil for a route that was never loaded.
func (s *SequenceStore) View(key domain.RouteKey) []domain.SequenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[key]
	if !ok || !r.loaded {
		return nil
	}
	if r.pending != nil {
		return cloneEntries(r.pending)
	}
	return cloneEntries(r.entries)
}

// Contains reports whether orderID is confirmed in the loaded route.
func (s *SequenceStore) Contains(key domain.RouteKey, orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[key]
	if !ok || !r.loaded {
		return false
	}
	return domain.IndexOf(r.entries, orderID) >= 0
}

// Forget drops the local copy; the next use reloads from the backend.
func (s *SequenceStore) Forget(key domain.RouteKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.routes[key]; ok {
		r.loaded = false
		r.entries = nil
	}
}

// planFunc derives the draft and the backend journal from the confirmed
// route. No steps means nothing to do.
type planFunc func(current []domain.SequenceEntry) ([]domain.SequenceEntry, []step, error)

// run reports changed=false when the plan needed no backend call.
func (s *SequenceStore) run(ctx context.Context, op string, key domain.RouteKey, plan planFunc) (_ []domain.SequenceEntry, changed bool, err error) {
	defer obs.Time(ctx, "sequence."+op)(&err)
	defer func() { obs.SequenceMutations.WithLabelValues(op, obs.Outcome(err)).Inc() }()

	if err := key.Validate(); err != nil {
		return nil, false, err
	}

	r, release, err := s.acquire(ctx, key)
	if err != nil {
		return nil, false, err
	}
	defer release()

	if err := s.ensureLoaded(ctx, key, r); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	current := s.confirmed(r)
	draft, steps, err := plan(current)
	if err != nil {
		return nil, false, fmt.Errorf("%s %s: %w", op, key, err)
	}
	if len(steps) == 0 {
		return current, false, nil
	}
	if err := domain.CheckDense(draft); err != nil {
		return nil, false, fmt.Errorf("%s %s: draft: %w", op, key, err)
	}

	var cmd Command = &routeCommand{store: s, key: key, r: r, draft: draft, steps: steps}
	cmd.Apply()
	if err := cmd.Commit(ctx); err != nil {
		cmd.Rollback()
		if verr := s.verify(key, r); verr != nil {
			return nil, false, errors.Join(fmt.Errorf("%s %s: %w", op, key, err), verr)
		}
		return nil, false, fmt.Errorf("%s %s: %w", op, key, err)
	}

	if err := s.verify(key, r); err != nil {
		return nil, true, err
	}
	return s.confirmed(r), true, nil
}

// verify checks the dense postcondition and drops the route on violation.
func (s *SequenceStore) verify(key domain.RouteKey, r *route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := domain.CheckDense(r.entries); err != nil {
		r.loaded = false
		r.entries = nil
		return fmt.Errorf("route %s: %w", key, err)
	}
	return nil
}

func (s *SequenceStore) updateStep(e, prev domain.SequenceEntry) step {
	return step{
		name: fmt.Sprintf("update %s to %d", e.OrderID, e.Sequence),
		do:   func(ctx context.Context) error { return s.backend.UpdateSequence(ctx, e) },
		undo: func(ctx context.Context) error { return s.backend.UpdateSequence(ctx, prev) },
	}
}

// Add inserts the order at position (1..N+1); position 0 appends. The backend
// add runs first; entries at or after position shift by one and each
// shifted entry is persisted.
func (s *SequenceStore) Add(ctx context.Context, key domain.RouteKey, orderID string, position int) ([]domain.SequenceEntry, error) {
	entries, _, err := s.run(ctx, "add", key, func(current []domain.SequenceEntry) ([]domain.SequenceEntry, []step, error) {
		if orderID == "" {
			return nil, nil, fmt.Errorf("empty order id: %w", domain.ErrInvalidPosition)
		}
		if domain.IndexOf(current, orderID) >= 0 {
			return nil, nil, fmt.Errorf("order %s: %w", orderID, domain.ErrDuplicateOrder)
		}

		n := len(current)
		if position == 0 {
			position = n + 1
		}
		if position < 1 || position > n+1 {
			return nil, nil, fmt.Errorf("position %d outside 1..%d: %w", position, n+1, domain.ErrInvalidPosition)
		}

		added := domain.SequenceEntry{
			TechnicianID: key.TechnicianID,
			ForecastDate: key.ForecastDate,
			OrderID:      orderID,
			Sequence:     position,
		}
		draft := slices.Insert(cloneEntries(current), position-1, added)
		domain.Renumber(draft)

		steps := []step{{
			name: "add " + orderID,
			do:   func(ctx context.Context) error { return s.backend.AddOrder(ctx, added) },
			undo: func(ctx context.Context) error { return s.backend.RemoveOrder(ctx, added) },
		}}
		// shift from the tail so two orders never share a sequence longer than needed
		for i := len(draft) - 1; i >= position; i-- {
			steps = append(steps, s.updateStep(draft[i], current[i-1]))
		}

		return draft, steps, nil
	})
	return entries, err
}

// Remove deletes the order; later entries move up by one and each is
// persisted.
func (s *SequenceStore) Remove(ctx context.Context, key domain.RouteKey, orderID string) ([]domain.SequenceEntry, error) {
	entries, _, err := s.run(ctx, "remove", key, func(current []domain.SequenceEntry) ([]domain.SequenceEntry, []step, error) {
		idx := domain.IndexOf(current, orderID)
		if idx < 0 {
			return nil, nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}

		removed := current[idx]
		draft := slices.Delete(cloneEntries(current), idx, idx+1)
		domain.Renumber(draft)

		steps := []step{{
			name: "remove " + orderID,
			do:   func(ctx context.Context) error { return s.backend.RemoveOrder(ctx, removed) },
			undo: func(ctx context.Context) error { return s.backend.AddOrder(ctx, removed) },
		}}
		for i := idx; i < len(draft); i++ {
			steps = append(steps, s.updateStep(draft[i], current[i+1]))
		}

		return draft, steps, nil
	})
	return entries, err
}

// Move places the order at toPosition (1..N). Only entries whose sequence
// changes are persisted; moving to the current position does nothing and
// reports moved=false.
func (s *SequenceStore) Move(ctx context.Context, key domain.RouteKey, orderID string, toPosition int) (_ []domain.SequenceEntry, moved bool, err error) {
	return s.run(ctx, "move", key, func(current []domain.SequenceEntry) ([]domain.SequenceEntry, []step, error) {
		idx := domain.IndexOf(current, orderID)
		if idx < 0 {
			return nil, nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}
		if toPosition < 1 || toPosition > len(current) {
			return nil, nil, fmt.Errorf("position %d outside 1..%d: %w", toPosition, len(current), domain.ErrInvalidPosition)
		}

		to := toPosition - 1
		if to == idx {
			return current, nil, nil
		}

		entry := current[idx]
		draft := slices.Delete(cloneEntries(current), idx, idx+1)
		draft = slices.Insert(draft, to, entry)
		domain.Renumber(draft)

		prev := make(map[string]domain.SequenceEntry, len(current))
		for _, e := range current {
			prev[e.OrderID] = e
		}

		lo, hi := min(idx, to), max(idx, to)
		steps := make([]step, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			steps = append(steps, s.updateStep(draft[i], prev[draft[i].OrderID]))
		}

		return draft, steps, nil
	})
}

// BulkSave appends orders in the given order, persisting them in parallel
// with bounded concurrency. Orders already in the route, repeated or empty
// are skipped. Afterwards the route is re-read so local state holds only
// what the backend confirmed.
func (s *SequenceStore) BulkSave(ctx context.Context, key domain.RouteKey, orderIDs []string) (res BulkResult, err error) {
	defer obs.Time(ctx, "sequence.BulkSave")(&err)
	defer func() { obs.SequenceMutations.WithLabelValues("bulk_save", obs.Outcome(err)).Inc() }()

	res = BulkResult{Saved: []string{}, Failed: []string{}, Skipped: []string{}, Errors: map[string]error{}}

	if err := key.Validate(); err != nil {
		return res, err
	}

	r, release, err := s.acquire(ctx, key)
	if err != nil {
		return res, err
	}
	defer release()

	if err := s.ensureLoaded(ctx, key, r); err != nil {
		return res, fmt.Errorf("bulk save: %w", err)
	}

	current := s.confirmed(r)
	seen := make(map[string]struct{}, len(orderIDs))
	var toSave []domain.SequenceEntry
	for _, id := range orderIDs {
		_, dup := seen[id]
		if id == "" || dup || domain.IndexOf(current, id) >= 0 {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		seen[id] = struct{}{}
		toSave = append(toSave, domain.SequenceEntry{
			TechnicianID: key.TechnicianID,
			ForecastDate: key.ForecastDate,
			OrderID:      id,
			Sequence:     len(current) + len(toSave) + 1,
		})
	}

	if len(toSave) == 0 {
		return res, nil
	}

	s.mu.Lock()
	r.pending = append(cloneEntries(current), toSave...)
	s.mu.Unlock()

	errs := make([]error, len(toSave))
	var g errgroup.Group
	g.SetLimit(s.bulkConcurrency)
	for i, e := range toSave {
		i, e := i, e
		g.Go(func() error {
			errs[i] = s.backend.AddOrder(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	for i, e := range toSave {
		if errs[i] != nil {
			res.Failed = append(res.Failed, e.OrderID)
			res.Errors[e.OrderID] = errs[i]
			continue
		}
		res.Saved = append(res.Saved, e.OrderID)
	}

	if err := s.loadLocked(ctx, key, r); err != nil {
		s.mu.Lock()
		r.pending = nil
		r.loaded = false
		r.entries = nil
		s.mu.Unlock()
		return res, fmt.Errorf("bulk save: reload: %w", err)
	}

	log.Printf("req_id=%s op=sequence.bulk route=%s saved=%d failed=%d skipped=%d",
		obs.RequestID(ctx), key, len(res.Saved), len(res.Failed), len(res.Skipped))

	return res, nil
}
