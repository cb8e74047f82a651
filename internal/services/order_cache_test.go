package services

import (
	"context"
	"dispatch-route-service/internal/domain"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestOrderCacheKnownEmptyDiffersFromNotFetched(t *testing.T) {
	src := newFakeOrderSource()
	src.buckets["Ana"] = domain.Buckets{Technician: "Ana", Today: []domain.ServiceOrder{{ID: "O1"}}}
	cache := NewOrderCache(src, 4)

	if err := cache.Prefetch(context.Background(), []string{"Ana", "Bruno"}); err != nil {
		t.Fatalf("prefetch: %v", err)
	}

	b, ok := cache.Get("Bruno")
	if !ok || b.Total() != 0 || b.Today == nil {
		t.Fatalf("Bruno = %+v ok=%v, want cached empty record", b, ok)
	}
	if _, ok := cache.Get("Carla"); ok {
		t.Fatal("Carla was never fetched")
	}

	cols := Board([]string{"Ana", "Bruno", "Carla"}, cache.Get)
	if len(cols) != 3 {
		t.Fatalf("columns = %d, want 3", len(cols))
	}
	if !cols[0].Loaded || len(cols[0].Buckets.Today) != 1 {
		t.Fatalf("Ana column = %+v", cols[0])
	}
	if !cols[1].Loaded || cols[1].Buckets.Total() != 0 {
		t.Fatalf("Bruno column = %+v, want loaded empty", cols[1])
	}
	if cols[2].Loaded {
		t.Fatalf("Carla column = %+v, want not loaded", cols[2])
	}

	// known-empty is cached: no refetch
	if err := cache.Prefetch(context.Background(), []string{"Bruno"}); err != nil {
		t.Fatalf("prefetch: %v", err)
	}
	if n := src.count("Bruno"); n != 1 {
		t.Fatalf("Bruno fetched %d times, want 1", n)
	}
}

func TestOrderCachePrefetchFetchesOnlyMissingOnce(t *testing.T) {
	src := newFakeOrderSource()
	cache := NewOrderCache(src, 2)
	ctx := context.Background()

	if _, err := cache.Lookup(ctx, "Carla"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if err := cache.Prefetch(ctx, []string{"Ana", "Ana", " ", "Bruno", "Carla"}); err != nil {
		t.Fatalf("prefetch: %v", err)
	}

	for name, want := range map[string]int{"Ana": 1, "Bruno": 1, "Carla": 1} {
		if got := src.count(name); got != want {
			t.Fatalf("%s fetched %d times, want %d", name, got, want)
		}
	}
}

func TestOrderCacheFailuresAreJoinedAndNotCached(t *testing.T) {
	src := newFakeOrderSource()
	src.fail["Ana"] = domain.ErrNetwork
	cache := NewOrderCache(src, 4)

	err := cache.Prefetch(context.Background(), []string{"Ana", "Bruno"})
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if _, ok := cache.Get("Ana"); ok {
		t.Fatal("failed fetch must not be cached")
	}
	if _, ok := cache.Get("Bruno"); !ok {
		t.Fatal("successful fetch must be cached despite sibling failure")
	}

	delete(src.fail, "Ana")
	if err := cache.Prefetch(context.Background(), []string{"Ana", "Bruno"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if src.count("Ana") != 2 || src.count("Bruno") != 1 {
		t.Fatalf("counts Ana=%d Bruno=%d", src.count("Ana"), src.count("Bruno"))
	}
}

func TestOrderCacheInvalidateForcesRefetch(t *testing.T) {
	src := newFakeOrderSource()
	cache := NewOrderCache(src, 4)
	ctx := context.Background()

	if _, err := cache.Lookup(ctx, "Ana"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	src.mu.Lock()
	src.buckets["Ana"] = domain.Buckets{Technician: "Ana", Tomorrow: []domain.ServiceOrder{{ID: "O2"}}}
	src.mu.Unlock()

	b, _ := cache.Lookup(ctx, "Ana")
	if b.Total() != 0 {
		t.Fatal("lookup should serve the cached record")
	}

	cache.Invalidate("Ana")
	b, err := cache.Lookup(ctx, "Ana")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(b.Tomorrow) != 1 || src.count("Ana") != 2 {
		t.Fatalf("b = %+v, fetches = %d", b, src.count("Ana"))
	}
}

func TestOrderCacheSharesConcurrentFetches(t *testing.T) {
	src := newFakeOrderSource()
	src.gate = make(chan struct{})
	cache := NewOrderCache(src, 4)

	var ready, wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		ready.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ready.Done()
			if _, err := cache.Lookup(context.Background(), "Ana"); err != nil {
				t.Errorf("lookup: %v", err)
			}
		}()
	}
	ready.Wait()
	time.Sleep(50 * time.Millisecond)

	close(src.gate)
	wg.Wait()

	if n := src.count("Ana"); n != 1 {
		t.Fatalf("fetched %d times, concurrent lookups should share a request", n)
	}
}
