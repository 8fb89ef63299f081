package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fanstage/backoffice/internal/obs"
)

// Outcome distinguishes why a request was allowed. A limiter store outage
// fails open, but observably so: callers and metrics can tell a normal
// allowance from one granted because the counter was unreachable.
type Outcome string

const (
	OutcomeAllowed       Outcome = "allowed"
	OutcomeDenied        Outcome = "denied"
	OutcomePolicyFailure Outcome = "policy_failure"
)

// Request describes one fixed-window check. Keys carry their own namespace
// (e.g. "ops:<user>", "checkout:<user>"); the limiter knows nothing about
// domain semantics.
type Request struct {
	Key           string
	Limit         int
	WindowSeconds int
}

// Result of a check-and-increment.
type Result struct {
	Outcome    Outcome
	Limit      int
	Remaining  int
	RetryAfter time.Duration // only meaningful when denied
}

// Allowed reports whether the request may proceed (including fail-open).
func (r Result) Allowed() bool { return r.Outcome != OutcomeDenied }

// Limiter is a datastore-backed fixed-window counter. Check must be atomic
// with respect to concurrent callers sharing a key: a single round-trip that
// resets the window when elapsed, increments, and reports the new count.
type Limiter interface {
	Check(ctx context.Context, req Request) (Result, error)
}

// Check runs the limiter and applies the fail-open policy: a store error is
// logged and converted into OutcomePolicyFailure rather than a denial, so a
// limiter outage cannot turn into a denial of service.
func Check(ctx context.Context, l Limiter, req Request) Result {
	res, err := l.Check(ctx, req)
	if err != nil {
		obs.Event("warn", "ratelimit", "check_failed", map[string]any{
			"key":   req.Key,
			"error": err.Error(),
		})
		res = Result{Outcome: OutcomePolicyFailure, Limit: req.Limit, Remaining: req.Limit}
	}
	obs.RateLimitOutcomes.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

// SetHeaders writes the standard rate-limit response headers. Retry-After is
// present only on denial.
func SetHeaders(h http.Header, res Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if res.Outcome == OutcomeDenied {
		h.Set("Retry-After", strconv.Itoa(int(res.RetryAfter/time.Second)))
	}
}
