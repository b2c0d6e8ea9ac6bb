package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
)

// WithTimeout runs fn with a derived context that is cancelled after timeout
// and waits for fn to return. An error returned after the deadline passed is
// wrapped with apperrors.ErrTimeout; a nil return stays nil even when fn
// overran, since the work did complete.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(timeoutCtx)
	if err == nil || timeoutCtx.Err() == nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: parent context cancelled: %w", name, err)
	}
	return fmt.Errorf("%s: %w (limit: %v): %v", name, apperrors.ErrTimeout, timeout, err)
}
