// Package bootstrap constructs the daemon's long-lived managers with a
// bounded retry budget.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nudge/internal/logging"
)

// DefaultAttempts applies when a Policy leaves Attempts unset.
const DefaultAttempts = 3

// ErrExhausted marks a construction that failed on every attempt.
var ErrExhausted = errors.New("construction attempts exhausted")

// Policy bounds construction retries.
type Policy struct {
	Attempts int
	Backoff  time.Duration
	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Build calls construct until it succeeds or the policy's attempts run out.
// Every failed attempt is logged; the final error wraps ErrExhausted and the
// last construction error.
func Build[T any](ctx context.Context, logger *slog.Logger, name string, policy Policy, construct func(context.Context) (T, error)) (T, error) {
	var zero T
	policy = policy.normalized()
	logger = logging.NewComponentLogger(logger, "bootstrap")

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		value, err := construct(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("manager constructed after retry",
					logging.String("manager", name),
					logging.Int("attempt", attempt),
					logging.String(logging.FieldEventType, "manager_constructed"),
				)
			}
			return value, nil
		}
		lastErr = err
		logging.WarnWithContext(logger, "manager construction failed", "manager_construct_failed",
			logging.String("manager", name),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", policy.Attempts),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and dependent services"),
			logging.String(logging.FieldImpact, "daemon cannot start until the manager is available"),
		)
		if attempt == policy.Attempts {
			break
		}
		if err := policy.Sleep(ctx, policy.Backoff); err != nil {
			return zero, fmt.Errorf("%s: %w", name, err)
		}
	}
	return zero, fmt.Errorf("%w: %s after %d attempts: %w", ErrExhausted, name, policy.Attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
