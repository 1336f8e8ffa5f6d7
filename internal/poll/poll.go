// Package poll runs a check at a fixed interval with a hard attempt ceiling.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

var ErrAttemptsExhausted = errors.New("poll: attempts exhausted")

var errNotReady = errors.New("not ready")

type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// Check returns done=true to stop polling. A non-nil error aborts polling
// immediately; it is not retried.
type Check func(ctx context.Context, attempt int) (done bool, err error)

func Poll(ctx context.Context, cfg Config, check Check) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	backoff := retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), retry.NewConstant(cfg.Interval))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		done, err := check(ctx, attempt)
		if err != nil {
			return err
		}
		if !done {
			return retry.RetryableError(errNotReady)
		}
		return nil
	})
	if errors.Is(err, errNotReady) {
		return fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, attempt)
	}
	return err
}
