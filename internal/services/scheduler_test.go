package services

import (
	"context"
	"sync"
	"testing"
)

func TestLatestSchedulerKeepsOnlyLatestPendingCall(t *testing.T) {
	s := NewLatestScheduler(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	var ran []int

	s.Submit(func(context.Context) {
		close(started)
		<-release
		mu.Lock()
		ran = append(ran, 1)
		mu.Unlock()
	})
	<-started

	for i := 2; i <= 4; i++ {
		i := i
		s.Submit(func(context.Context) {
			mu.Lock()
			ran = append(ran, i)
			mu.Unlock()
		})
	}

	close(release)
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 4 {
		t.Fatalf("ran = %v, want [1 4]", ran)
	}
}

func TestLatestSchedulerStopsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewLatestScheduler(ctx)
	cancel()

	called := false
	s.Submit(func(context.Context) { called = true })
	s.Wait()

	if called {
		t.Fatal("scheduler ran a call after its context ended")
	}
}
