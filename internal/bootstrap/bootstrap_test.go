package bootstrap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"nudge/internal/bootstrap"
	"nudge/internal/logging"
)

type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestBuildSucceedsAfterTransientFailures(t *testing.T) {
	sleeper := &recordingSleep{}
	attempts := 0
	value, err := bootstrap.Build(context.Background(), logging.NewNop(), "comm", bootstrap.Policy{
		Attempts: 3,
		Backoff:  time.Second,
		Sleep:    sleeper.sleep,
	}, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("not yet")
		}
		return "ready", nil
	})
	if err != nil || value != "ready" {
		t.Fatalf("Build = %q, %v", value, err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(sleeper.waits) != 2 || sleeper.waits[0] != time.Second {
		t.Fatalf("expected two one-second waits, got %v", sleeper.waits)
	}
}

func TestBuildExhaustsAttempts(t *testing.T) {
	sleeper := &recordingSleep{}
	cause := errors.New("broken")
	attempts := 0
	_, err := bootstrap.Build(context.Background(), nil, "scheduler", bootstrap.Policy{Sleep: sleeper.sleep}, func(context.Context) (int, error) {
		attempts++
		return 0, cause
	})
	if !errors.Is(err, bootstrap.ErrExhausted) || !errors.Is(err, cause) {
		t.Fatalf("expected exhausted error wrapping cause, got %v", err)
	}
	if attempts != bootstrap.DefaultAttempts {
		t.Fatalf("expected %d attempts, got %d", bootstrap.DefaultAttempts, attempts)
	}
	if len(sleeper.waits) != bootstrap.DefaultAttempts-1 {
		t.Fatalf("expected no wait after the final attempt, got %v", sleeper.waits)
	}
}

func TestBuildStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	_, err := bootstrap.Build(ctx, nil, "comm", bootstrap.Policy{Attempts: 3, Backoff: time.Hour}, func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", attempts)
	}
}
