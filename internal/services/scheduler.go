package services

import (
	"context"
	"sync"
)

// LatestScheduler runs at most one call at a time and, while one is running,
// keeps only the most recently submitted call. Intermediate submissions are
// dropped.
type LatestScheduler struct {
	mu      sync.Mutex
	running bool
	next    func(context.Context)
	ctx     context.Context
	idle    chan struct{}
}

func NewLatestScheduler(ctx context.Context) *LatestScheduler {
	idle := make(chan struct{})
	close(idle)
	return &LatestScheduler{ctx: ctx, idle: idle}
}

// Submit schedules fn. If a call is running, fn replaces any call still
// waiting and runs once the current one returns.
func (s *LatestScheduler) Submit(fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if s.running {
		s.next = fn
		return
	}
	s.running = true
	s.idle = make(chan struct{})
	go s.loop(fn, s.idle)
}

func (s *LatestScheduler) loop(fn func(context.Context), idle chan struct{}) {
	for fn != nil {
		fn(s.ctx)

		s.mu.Lock()
		fn, s.next = s.next, nil
		if fn == nil || s.ctx.Err() != nil {
			fn = nil
			s.running = false
			close(idle)
		}
		s.mu.Unlock()
	}
}

// Wait blocks until no call is running or waiting.
func (s *LatestScheduler) Wait() {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	<-idle
}
