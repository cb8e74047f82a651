package events

import (
	"context"
	"dispatch-route-service/internal/domain"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const channelPrefix = "route:"

// RedisBroker implements Broker over Redis Pub/Sub so several dashboard
// processes see each other's route changes.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan domain.RouteEvent]*redis.PubSub
}

func NewRedisBroker(redisURL string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis broker: parse url: %w", err)
	}
	return NewRedisBrokerFromClient(redis.NewClient(opt)), nil
}

func NewRedisBrokerFromClient(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb, subs: map[chan domain.RouteEvent]*redis.PubSub{}}
}

// Ping verifies the connection.
func (b *RedisBroker) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis broker: ping: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(technician string) chan domain.RouteEvent {
	ch := make(chan domain.RouteEvent, 16)
	ctx := context.Background()

	var ps *redis.PubSub
	if technician == AllTechnicians {
		ps = b.rdb.PSubscribe(ctx, channelPrefix+"*")
	} else {
		ps = b.rdb.Subscribe(ctx, chanName(technician))
	}
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		log.Printf("op=events.subscribe technician=%q err=%v", technician, err)
	}

	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt domain.RouteEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Printf("op=events.decode channel=%s err=%v", msg.Channel, err)
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the underlying subscription; ch is closed once its
// reader goroutine drains.
func (b *RedisBroker) Unsubscribe(_ string, ch chan domain.RouteEvent) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()

	if ok {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(ctx context.Context, evt domain.RouteEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis broker: marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, chanName(evt.Key.TechnicianID), data).Err(); err != nil {
		return fmt.Errorf("redis broker: publish %s: %w", evt.Type, err)
	}
	return nil
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	for ch, ps := range b.subs {
		_ = ps.Close()
		delete(b.subs, ch)
	}
	b.mu.Unlock()
	return b.rdb.Close()
}

func chanName(technician string) string { return channelPrefix + technician }
