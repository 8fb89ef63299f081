package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// InMemory implements Limiter with in-process counters. Used by tests and by
// single-node development runs; production uses the Postgres-backed limiter.
type InMemory struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewInMemory creates a fresh limiter.
func NewInMemory() *InMemory {
	return &InMemory{windows: make(map[string]*window), now: time.Now}
}

// SetClock overrides the time source; test hook.
func (l *InMemory) SetClock(now func() time.Time) { l.now = now }

func (l *InMemory) Check(ctx context.Context, req Request) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	dur := time.Duration(req.WindowSeconds) * time.Second

	w, ok := l.windows[req.Key]
	if !ok || !now.Before(w.start.Add(dur)) {
		// Window elapsed: reset wholesale, not per-request.
		w = &window{start: now}
		l.windows[req.Key] = w
	}

	w.count++
	remaining := req.Limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	if w.count > req.Limit {
		return Result{
			Outcome:    OutcomeDenied,
			Limit:      req.Limit,
			Remaining:  0,
			RetryAfter: w.start.Add(dur).Sub(now),
		}, nil
	}
	return Result{Outcome: OutcomeAllowed, Limit: req.Limit, Remaining: remaining}, nil
}
