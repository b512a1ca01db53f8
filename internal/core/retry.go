package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}

// RunWithRetry calls attempt until it succeeds, fails with something other than
// ErrConflict, or the policy is exhausted, in which case ErrContention is returned.
func RunWithRetry(ctx context.Context, p RetryPolicy, attempt func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	for n := 1; ; n++ {
		err := attempt()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if n >= p.MaxAttempts {
			return fmt.Errorf("%w: gave up after %d attempts: %v", ErrContention, n, err)
		}

		delay := p.BaseDelay * time.Duration(n)
		if delay > 0 {
			delay += time.Duration(rand.Int64N(int64(delay)))
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
