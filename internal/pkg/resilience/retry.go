package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Retryable decides whether a failed attempt is tried again. Anything it
	// rejects is returned immediately.
	Retryable func(error) bool
	// OnRetry is called before each retry with the error that caused it.
	OnRetry func(err error, wait time.Duration)
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, the retry
// budget is spent or ctx is done. The last error is returned unchanged.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.MaxInterval = cfg.MaxDelay
	b.MaxElapsedTime = 0

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	op := func() error {
		err := fn()
		if err != nil && cfg.Retryable != nil && !cfg.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if cfg.OnRetry != nil {
		notify = cfg.OnRetry
	}
	return backoff.RetryNotify(op, policy, notify)
}
