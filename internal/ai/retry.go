package ai

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// retry runs op with exponential backoff until it succeeds, returns an error
// that is not retryable, or maxRetries extra attempts are spent.
func retry(ctx context.Context, initial time.Duration, maxRetries int, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.MaxInterval = 5 * time.Second
	exp.MaxElapsedTime = 30 * time.Second

	var policy backoff.BackOff = exp
	if maxRetries >= 0 {
		policy = backoff.WithMaxRetries(policy, uint64(maxRetries))
	}
	policy = backoff.WithContext(policy, ctx)
	policy.Reset()

	for {
		err := op()
		if err == nil || !retryable(err) {
			return err
		}

		next := policy.NextBackOff()
		if next == backoff.Stop {
			return err
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
