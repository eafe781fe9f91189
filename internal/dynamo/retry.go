package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	retryInitialInterval = 100 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
	retryMaxTries        = 3
)

// WithRetry runs op with exponential backoff for transient store failures.
// Conditional-check and transaction rejections are surfaced immediately;
// they are correctness signals, not transient faults. An exhausted retry
// budget wraps the last error in ErrStoreUnavailable.
func WithRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.MaxInterval = retryMaxInterval

	result, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && isPermanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(retryMaxTries))
	if err != nil {
		if isPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return result, err
		}
		return result, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return result, nil
}
