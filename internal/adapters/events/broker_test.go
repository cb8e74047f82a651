package events

import (
	"context"
	"dispatch-route-service/internal/domain"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func testEvent(tech string) domain.RouteEvent {
	return domain.RouteEvent{
		ID:        "e1",
		Type:      domain.EventOrderAdded,
		SessionID: "s1",
		Key:       domain.RouteKey{TechnicianID: tech, ForecastDate: "2024-06-10"},
		OrderIDs:  []string{"O5"},
	}
}

func receive(t *testing.T, ch chan domain.RouteEvent) domain.RouteEvent {
	t.Helper()
	select {
	case got, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before event arrived")
		}
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return domain.RouteEvent{}
}

func TestMemoryBrokerPublishSubscribe(t *testing.T) {
	b := NewMemoryBroker()
	ana := b.Subscribe("Ana")
	all := b.Subscribe(AllTechnicians)
	bruno := b.Subscribe("Bruno")

	if err := b.Publish(context.Background(), testEvent("Ana")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got := receive(t, ana); got.Type != domain.EventOrderAdded || got.OrderIDs[0] != "O5" {
		t.Fatalf("ana got %+v", got)
	}
	if got := receive(t, all); got.Key.TechnicianID != "Ana" {
		t.Fatalf("all got %+v", got)
	}
	select {
	case got := <-bruno:
		t.Fatalf("bruno must not receive Ana's event, got %+v", got)
	default:
	}

	b.Unsubscribe("Ana", ana)
	if _, ok := <-ana; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// second unsubscribe is a no-op
	b.Unsubscribe("Ana", ana)

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-bruno; ok {
		t.Fatal("Close should close remaining subscriptions")
	}
}

func TestMemoryBrokerDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewMemoryBroker()
	ch := b.Subscribe("Ana")

	for i := 0; i < cap(ch)+5; i++ {
		if err := b.Publish(context.Background(), testEvent("Ana")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered %d events, want %d", len(ch), cap(ch))
	}
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	b := NewRedisBrokerFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = b.Close() })

	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	ana := b.Subscribe("Ana")
	all := b.Subscribe(AllTechnicians)

	if err := b.Publish(context.Background(), testEvent("Ana")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := receive(t, ana)
	if got.ID != "e1" || got.SessionID != "s1" || got.Key.ForecastDate != "2024-06-10" {
		t.Fatalf("ana got %+v", got)
	}
	if got := receive(t, all); got.Key.TechnicianID != "Ana" {
		t.Fatalf("pattern subscriber got %+v", got)
	}

	b.Unsubscribe("Ana", ana)
	select {
	case _, ok := <-ana:
		if ok {
			t.Fatal("unexpected event after unsubscribe")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
