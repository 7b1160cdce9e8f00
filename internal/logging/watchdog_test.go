package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nudge/internal/logging"
)

func newTestHost(t *testing.T) *logging.Host {
	t.Helper()
	host, err := logging.NewHost(logging.HostOptions{
		Path:   filepath.Join(t.TempDir(), "logs", "nudge.log"),
		Format: "console",
		Level:  "info",
	})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	t.Cleanup(func() { _ = host.Close() })
	return host
}

func TestWatchdogHealthyWhenNonceReachesDisk(t *testing.T) {
	host := newTestHost(t)
	watchdog := logging.NewWatchdog(host, logging.WatchdogOptions{Wait: time.Millisecond})

	result := watchdog.Check()
	if !result.Healthy || !result.NonceFound {
		t.Fatalf("expected healthy check with nonce, got %+v", result)
	}
	if result.RestartAttempted {
		t.Fatal("healthy check must not restart logging")
	}
	if host.Restarts() != 0 {
		t.Fatalf("expected no restarts, got %d", host.Restarts())
	}
}

func TestWatchdogRecreatesDeletedLogAndRestartsOnce(t *testing.T) {
	host := newTestHost(t)
	if err := os.Remove(host.Path()); err != nil {
		t.Fatalf("remove log: %v", err)
	}
	watchdog := logging.NewWatchdog(host, logging.WatchdogOptions{Wait: time.Millisecond})

	result := watchdog.Check()
	if result.Healthy {
		t.Fatalf("expected failed check, got %+v", result)
	}
	if !result.FileRecreated {
		t.Fatal("expected log file to be recreated")
	}
	if !result.RestartAttempted || result.RestartErr != nil {
		t.Fatalf("expected one successful restart attempt, got %+v", result)
	}
	if host.Restarts() != 1 {
		t.Fatalf("expected exactly one restart, got %d", host.Restarts())
	}
	if _, err := os.Stat(host.Path()); err != nil {
		t.Fatalf("expected log file to exist after check: %v", err)
	}

	host.Logger().Info("after restart")
	data, err := os.ReadFile(host.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "after restart") {
		t.Fatalf("expected restarted logger to write to the recreated file, got %q", data)
	}
}

func TestHostCloseIsIdempotent(t *testing.T) {
	host := newTestHost(t)
	if err := host.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := host.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	host.Logger().Info("after close is dropped")
}
