package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/fanstage/backoffice/internal/ratelimit"
)

var _ ratelimit.Limiter = (*RateLimitStore)(nil)

type RateLimitStore struct {
	db *sql.DB
}

// Check runs the fixed-window counter in a single round trip: the upsert
// resets the window when it has elapsed, increments otherwise, and returns
// the resulting count plus the window start.
func (s *RateLimitStore) Check(ctx context.Context, req ratelimit.Request) (ratelimit.Result, error) {
	var (
		count       int
		windowStart time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		insert into rate_limit_counters (key, window_start, count)
		values ($1, now(), 1)
		on conflict (key) do update set
			count = case
				when rate_limit_counters.window_start <= now() - make_interval(secs => $2)
				then 1
				else rate_limit_counters.count + 1
			end,
			window_start = case
				when rate_limit_counters.window_start <= now() - make_interval(secs => $2)
				then now()
				else rate_limit_counters.window_start
			end
		returning count, window_start
	`, req.Key, req.WindowSeconds).Scan(&count, &windowStart)
	if err != nil {
		return ratelimit.Result{}, err
	}

	window := time.Duration(req.WindowSeconds) * time.Second
	if count > req.Limit {
		retry := time.Until(windowStart.Add(window))
		if retry < time.Second {
			retry = time.Second
		}
		return ratelimit.Result{
			Outcome:    ratelimit.OutcomeDenied,
			Limit:      req.Limit,
			Remaining:  0,
			RetryAfter: retry,
		}, nil
	}
	return ratelimit.Result{
		Outcome:   ratelimit.OutcomeAllowed,
		Limit:     req.Limit,
		Remaining: req.Limit - count,
	}, nil
}
