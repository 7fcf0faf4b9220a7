package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds every store call with a timeout and retries transient
// failures with exponential backoff. Operations passed to Do must be safe to
// repeat.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond, Timeout: 5 * time.Second}
}

func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff

	var err error
	for attempt := 1; ; attempt++ {
		err = p.once(ctx, fn)
		if err == nil || !errors.Is(err, ErrTransient) || attempt >= attempts {
			break
		}

		storeRetriesTotal.WithLabelValues(op).Inc()
		logrus.WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"backoff":   backoff,
		}).Warn("transient store error, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrTransient, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func (p RetryPolicy) once(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(ctx)
}
