package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rpggio/geoquest/internal/metrics"
)

// RetryPolicy bounds how often Atomically re-runs a conflicting transaction.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy is used when a component is configured without one.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:  5,
	BaseBackoff: 5 * time.Millisecond,
	MaxBackoff:  100 * time.Millisecond,
}

// Atomically runs fn in a transaction and re-runs the whole closure from
// the start when it loses an optimistic concurrency race. Any other error
// aborts immediately. After MaxRetries conflicting retries it returns
// ErrRetryExhausted wrapping the last conflict.
func Atomically[T any](ctx context.Context, tr Transactor[T], policy RetryPolicy, fn func(ctx context.Context, tx T) error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, policy, attempt); err != nil {
				return err
			}
		}

		err := tr.InTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		metrics.TxConflicts.Inc()
		lastErr = err
	}

	metrics.TxRetryExhausted.Inc()
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, policy.MaxRetries+1, lastErr)
}

// sleepBackoff waits an exponentially growing, jittered delay in [d/2, d).
func sleepBackoff(ctx context.Context, policy RetryPolicy, attempt int) error {
	d := policy.BaseBackoff << (attempt - 1)
	if policy.MaxBackoff > 0 && (d > policy.MaxBackoff || d <= 0) {
		d = policy.MaxBackoff
	}
	if d <= 0 {
		return ctx.Err()
	}
	d = d/2 + rand.N(d/2+1)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
