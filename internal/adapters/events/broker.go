package events

import (
	"context"
	"dispatch-route-service/internal/domain"
	"sync"
)

// AllTechnicians subscribes to events for every route.
const AllTechnicians = ""

// Broker fans route events out to subscribers keyed by technician.
type Broker interface {
	Subscribe(technician string) chan domain.RouteEvent
	Unsubscribe(technician string, ch chan domain.RouteEvent)
	Publish(ctx context.Context, evt domain.RouteEvent) error
	Close() error
}

// MemoryBroker delivers events within one process. Slow subscribers drop
// events rather than block publishers.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.RouteEvent]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[chan domain.RouteEvent]struct{}{}}
}

func (b *MemoryBroker) Subscribe(technician string) chan domain.RouteEvent {
	ch := make(chan domain.RouteEvent, 16)
	b.mu.Lock()
	if b.subs[technician] == nil {
		b.subs[technician] = map[chan domain.RouteEvent]struct{}{}
	}
	b.subs[technician][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *MemoryBroker) Unsubscribe(technician string, ch chan domain.RouteEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.subs[technician]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, technician)
	}
	close(ch)
}

func (b *MemoryBroker) Publish(_ context.Context, evt domain.RouteEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deliver(b.subs[evt.Key.TechnicianID], evt)
	if evt.Key.TechnicianID != AllTechnicians {
		b.deliver(b.subs[AllTechnicians], evt)
	}
	return nil
}

func (b *MemoryBroker) deliver(m map[chan domain.RouteEvent]struct{}, evt domain.RouteEvent) {
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close unsubscribes everyone.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for tech, m := range b.subs {
		for ch := range m {
			close(ch)
		}
		delete(b.subs, tech)
	}
	return nil
}
