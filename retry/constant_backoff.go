// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/neurosense/biostream/internal/log"
	"github.com/neurosense/biostream/internal/wallclock"
)

// ConstantBackoff implements a retry policy with a fixed delay between
// attempts and a bounded attempt count. This is the reconnect policy for the
// streaming client: the acquisition backend is either there or it is not, so
// an exponential ramp only delays recovery.
type ConstantBackoff struct {
	// MaxAttempts sets the maximum number of attempts. The default value of
	// 0 indicates unlimited attempts; setting this to 1 will disable
	// retries.
	MaxAttempts uint64

	// Interval is the fixed delay between attempts. Will be set to a
	// default of 3s if unspecified.
	Interval time.Duration

	// Logger provides a logger which will be used to log retry attempts and
	// results.
	Logger *slog.Logger
}

// Start initiates the retry executions.
func (c *ConstantBackoff) Start(
	ctx context.Context,
	name string,
	task Task,
) error {
	l := logger{log.Wrap(c.Logger)}

	for attempt := uint64(1); ; attempt++ {
		l.attempt(ctx, name, attempt)
		retry, err := task(ctx)
		if err == nil {
			l.complete(ctx, name, attempt, nil)
			return nil
		}

		if !c.shouldRetry(ctx, attempt, retry) {
			l.complete(ctx, name, attempt, err)
			return err
		}

		interval := c.Interval
		if interval == 0 {
			interval = 3 * time.Second
		}

		select {
		case <-wallclock.Instance.After(interval):
		case <-ctx.Done():
			l.complete(ctx, name, attempt, ctx.Err())
			return ctx.Err()
		}
	}
}

func (c *ConstantBackoff) shouldRetry(
	ctx context.Context,
	attempt uint64,
	retry bool,
) bool {
	switch {
	case !retry,
		attempt == c.MaxAttempts,
		ctx.Err() != nil:
		return false
	}
	return true
}
