package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWindowBoundary(t *testing.T) {
	l := NewInMemory()
	base := time.Unix(1_700_000_000, 0)
	now := base
	l.SetClock(func() time.Time { return now })

	req := Request{Key: "ops:u1", Limit: 3, WindowSeconds: 60}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if res.Outcome != OutcomeAllowed {
			t.Fatalf("call %d unexpectedly denied", i+1)
		}
		if res.Remaining != 3-(i+1) {
			t.Fatalf("call %d: remaining=%d", i+1, res.Remaining)
		}
	}

	// The (limit+1)th call inside the window is denied with remaining 0.
	res, _ := l.Check(ctx, req)
	if res.Outcome != OutcomeDenied || res.Remaining != 0 {
		t.Fatalf("expected denial, got %+v", res)
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("retry-after out of range: %v", res.RetryAfter)
	}

	// Immediately after the window elapses the counter resets wholesale.
	now = base.Add(60 * time.Second)
	res, _ = l.Check(ctx, req)
	if res.Outcome != OutcomeAllowed || res.Remaining != 2 {
		t.Fatalf("expected fresh window, got %+v", res)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = l.Check(ctx, Request{Key: "checkout:a", Limit: 1, WindowSeconds: 60})
	}
	res, _ := l.Check(ctx, Request{Key: "checkout:b", Limit: 1, WindowSeconds: 60})
	if res.Outcome != OutcomeAllowed {
		t.Fatal("independent key should not share the counter")
	}
}

func TestConcurrentIncrementsNeverExceedLimit(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	req := Request{Key: "k", Limit: 25, WindowSeconds: 60}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(ctx, req)
			if err != nil {
				t.Error(err)
				return
			}
			if res.Allowed() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 25 {
		t.Fatalf("expected exactly 25 allowed, got %d", allowed)
	}
}

type failingLimiter struct{}

func (failingLimiter) Check(ctx context.Context, req Request) (Result, error) {
	return Result{}, errors.New("store unavailable")
}

func TestFailOpenIsObservable(t *testing.T) {
	res := Check(context.Background(), failingLimiter{}, Request{Key: "k", Limit: 10, WindowSeconds: 60})
	if !res.Allowed() {
		t.Fatal("limiter outage must fail open")
	}
	if res.Outcome != OutcomePolicyFailure {
		t.Fatalf("fail-open must be distinguishable, got %s", res.Outcome)
	}
}
