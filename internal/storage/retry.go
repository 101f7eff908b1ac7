package storage

import (
	"context"
	"time"

	"subclean/internal/services"
)

// RetryPolicy bounds attempts and backoff for one transfer.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy is three attempts backing off from 500ms up to 8s.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Initial: 500 * time.Millisecond, Max: 8 * time.Second}

var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The returned int is the number of attempts made.
func (p RetryPolicy) do(ctx context.Context, op func(context.Context) error) (int, error) {
	attempts := max(p.Attempts, 1)
	delay := p.Initial
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || !services.IsRetryable(lastErr) || attempt == attempts {
			return attempt, lastErr
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, err
		}
		if next := delay * 2; p.Max <= 0 || next <= p.Max {
			delay = next
		} else {
			delay = p.Max
		}
	}
	return attempts, lastErr
}
