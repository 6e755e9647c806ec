package pkg

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultAttempts is how many times an operation is tried before giving up
const DefaultAttempts = 3

// DefaultRetryDelay is the fixed wait between two attempts
const DefaultRetryDelay = 2 * time.Second

// Retrier runs an operation up to Attempts times, waiting Delay between attempts.
// The delay does not grow.
type Retrier struct {
	Attempts int
	Delay    time.Duration
}

// NewRetrier creates a Retrier, falling back to the defaults for non-positive values
func NewRetrier(attempts int, delay time.Duration) Retrier {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if delay < 0 {
		delay = DefaultRetryDelay
	}
	return Retrier{Attempts: attempts, Delay: delay}
}

// WithRetry runs runner, and if it returns an error waits, then tries again.
// The error of the last attempt is returned once all attempts are used.
func (r Retrier) WithRetry(ctx context.Context, tag string, runner func(attempt int) error) error {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	attempt := 0
	operation := func() error {
		attempt++
		return runner(attempt)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.Delay), uint64(attempts-1)),
		ctx,
	)

	return backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		Log.WithField("attempt", attempt).WithError(err).Warnf("%s failed, retrying in %s", tag, wait)
	})
}
