package store

import (
	"context"
	"time"

	"examprep-service/internal/domain"
	"examprep-service/internal/logger"
	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a unit of work is re-run after a transient failure.
// Negative MaxRetries is treated as zero.
type RetryPolicy struct {
	MaxRetries int
	Interval   time.Duration
}

// WithRetry runs fn until it succeeds, returns a non-transient error, or the policy is
// exhausted, in which case the last transient error is returned.
func WithRetry(ctx context.Context, policy RetryPolicy, log *logger.Logger, op string, fn func() error) error {
	interval := policy.Interval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = interval
	exp.MaxInterval = 20 * interval
	exp.MaxElapsedTime = 0

	retries := policy.MaxRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithMaxRetries(exp, uint64(retries))

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) {
			return backoff.Permanent(err)
		}
		log.Warn("transient store error", "op", op, "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(b, ctx))
}
