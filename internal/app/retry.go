package app

import (
	"context"
	"errors"
	"time"

	"signsense-quiz-service/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy bounds every store call: each attempt runs under Timeout and
// transient failures are retried with exponential backoff up to Attempts total tries.
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Timeout         time.Duration
}

// DefaultRetryPolicy suits a remote store polled every one or two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:        4,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Timeout:         3 * time.Second,
	}
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// retryable reports whether err is one of the transient store conditions.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, domain.ErrConcurrentUpdate)
}

// withRetry runs fn under the policy. Non-transient errors stop immediately;
// exhaustion returns the last transient error.
func withRetry(ctx context.Context, p RetryPolicy, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		opCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			opCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		err := fn(opCtx)
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("room store retry",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(operation, p.backoff(ctx), notify)
}
