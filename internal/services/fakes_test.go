package services

import (
	"context"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/ports"
	"errors"
	"fmt"
	"sync"
)

// fakeBackend is an in-memory SequenceBackend. fail, when set, is consulted
// before every write and may reject it.
type fakeBackend struct {
	mu     sync.Mutex
	routes map[domain.RouteKey]map[string]int
	calls  []string
	lists  int
	fail   func(op string, e domain.SequenceEntry) error
	block  chan struct{} // when set, AddOrder waits on it
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{routes: map[domain.RouteKey]map[string]int{}}
}

func (f *fakeBackend) seed(key domain.RouteKey, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := map[string]int{}
	for i, id := range ids {
		m[id] = i + 1
	}
	f.routes[key] = m
}

func (f *fakeBackend) state(key domain.RouteKey) map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for k, v := range f.routes[key] {
		out[k] = v
	}
	return out
}

func (f *fakeBackend) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.lists = 0
}

func (f *fakeBackend) ListSequence(_ context.Context, key domain.RouteKey) ([]domain.SequenceEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++

	out := []domain.SequenceEntry{}
	for id, seq := range f.routes[key] {
		out = append(out, domain.SequenceEntry{TechnicianID: key.TechnicianID, ForecastDate: key.ForecastDate, OrderID: id, Sequence: seq})
	}
	domain.SortEntries(out)
	return out, nil
}

func (f *fakeBackend) write(op string, e domain.SequenceEntry, apply func(m map[string]int) error) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()

	if fail != nil {
		if err := fail(op, e); err != nil {
			f.mu.Lock()
			f.calls = append(f.calls, fmt.Sprintf("%s %s=%d FAIL", op, e.OrderID, e.Sequence))
			f.mu.Unlock()
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s %s=%d", op, e.OrderID, e.Sequence))
	m := f.routes[e.Key()]
	if m == nil {
		m = map[string]int{}
		f.routes[e.Key()] = m
	}
	return apply(m)
}

func (f *fakeBackend) AddOrder(ctx context.Context, e domain.SequenceEntry) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.write("add", e, func(m map[string]int) error {
		if _, ok := m[e.OrderID]; ok {
			return &domain.BackendError{Op: "add", Status: 409, Message: "exists", Err: domain.ErrSequenceConflict}
		}
		m[e.OrderID] = e.Sequence
		return nil
	})
}

func (f *fakeBackend) RemoveOrder(_ context.Context, e domain.SequenceEntry) error {
	return f.write("remove", e, func(m map[string]int) error {
		if _, ok := m[e.OrderID]; !ok {
			return &domain.BackendError{Op: "remove", Status: 404, Message: "missing", Err: domain.ErrSequenceConflict}
		}
		delete(m, e.OrderID)
		return nil
	})
}

func (f *fakeBackend) UpdateSequence(_ context.Context, e domain.SequenceEntry) error {
	return f.write("update", e, func(m map[string]int) error {
		if _, ok := m[e.OrderID]; !ok {
			return &domain.BackendError{Op: "update", Status: 404, Message: "missing", Err: domain.ErrSequenceConflict}
		}
		m[e.OrderID] = e.Sequence
		return nil
	})
}

var errRejected = &domain.BackendError{Op: "test", Status: 409, Message: "rejected", Err: domain.ErrSequenceConflict}

// failWhen rejects the write matching op and orderID.
func failWhen(op, orderID string) func(string, domain.SequenceEntry) error {
	return func(o string, e domain.SequenceEntry) error {
		if o == op && e.OrderID == orderID {
			return errRejected
		}
		return nil
	}
}

// fakeGeocoder resolves addresses from a fixed table and counts calls.
type fakeGeocoder struct {
	mu     sync.Mutex
	coords map[string]domain.Coordinates
	calls  int
	items  int
	err    error         // when set, every item fails with it
	gate   chan struct{} // when set, ResolveBatch waits on it
	called chan struct{} // when set, signalled on entry
}

func (f *fakeGeocoder) ResolveBatch(_ context.Context, reqs []ports.AddressRequest) []ports.AddressResult {
	f.mu.Lock()
	f.calls++
	f.items += len(reqs)
	f.mu.Unlock()

	if f.called != nil {
		f.called <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}

	out := make([]ports.AddressResult, 0, len(reqs))
	for _, r := range reqs {
		if f.err != nil {
			out = append(out, ports.AddressResult{OrderID: r.OrderID, Err: f.err})
			continue
		}
		c, ok := f.coords[r.Address]
		if !ok {
			out = append(out, ports.AddressResult{OrderID: r.OrderID, Err: errors.New("not found")})
			continue
		}
		lat, lng := c.Lat, c.Lng
		out = append(out, ports.AddressResult{OrderID: r.OrderID, Lat: &lat, Lng: &lng, DisplayName: r.Address})
	}
	return out
}

func (f *fakeGeocoder) counts() (calls, items int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.items
}

// fakeOrderSource serves bucketed orders and counts requests per technician.
type fakeOrderSource struct {
	mu      sync.Mutex
	buckets map[string]domain.Buckets
	fail    map[string]error
	calls   map[string]int
	gate    chan struct{}
}

func newFakeOrderSource() *fakeOrderSource {
	return &fakeOrderSource{buckets: map[string]domain.Buckets{}, fail: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeOrderSource) ListAvailableTechnicians(context.Context) ([]domain.Technician, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Technician{}
	for name, b := range f.buckets {
		out = append(out, domain.Technician{ID: name, Name: name, OrderCount: b.Total()})
	}
	return out, nil
}

func (f *fakeOrderSource) TechnicianOrders(_ context.Context, technician string) (domain.Buckets, error) {
	f.mu.Lock()
	f.calls[technician]++
	gate := f.gate
	err := f.fail[technician]
	b, ok := f.buckets[technician]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.Buckets{}, err
	}
	if !ok {
		return domain.EmptyBuckets(technician), nil
	}
	return b, nil
}

func (f *fakeOrderSource) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RouteEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt domain.RouteEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) all() []domain.RouteEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.RouteEvent(nil), p.events...)
}

func ids(entries []domain.SequenceEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, fmt.Sprintf("%s=%d", e.OrderID, e.Sequence))
	}
	return out
}
