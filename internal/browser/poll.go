// internal/browser/poll.go
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultPollInterval = 100 * time.Millisecond

var errPending = errors.New("condition not met yet")

// PollBackOff retries at a fixed interval until timeout has elapsed. A
// non-positive timeout allows exactly one attempt.
func PollBackOff(timeout, interval time.Duration) backoff.BackOff {
	if timeout <= 0 {
		return &backoff.StopBackOff{}
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = interval
	b.Multiplier = 1
	b.RandomizationFactor = 0
	b.MaxElapsedTime = timeout
	b.Reset()
	return b
}

// AttemptsBackOff allows attempts tries, interval apart.
func AttemptsBackOff(attempts int, interval time.Duration) backoff.BackOff {
	if attempts < 1 {
		attempts = 1
	}
	if interval < 0 {
		interval = 0
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1))
}

// Poll calls check every interval until it reports true or timeout elapses.
// It returns ctx.Err() when ctx ends first and ErrNotFound on timeout.
func Poll(ctx context.Context, timeout, interval time.Duration, check func() bool) error {
	return retryCheck(ctx, PollBackOff(timeout, interval), check)
}

// PollN calls check up to attempts times, interval apart.
func PollN(ctx context.Context, attempts int, interval time.Duration, check func() bool) error {
	return retryCheck(ctx, AttemptsBackOff(attempts, interval), check)
}

func retryCheck(ctx context.Context, b backoff.BackOff, check func() bool) error {
	op := func() error {
		if check() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return errPending
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrNotFound
	}
	return nil
}
