package main

import (
	"strings"
	"testing"
	"time"

	"nudge/internal/flagfile"
)

func TestStopWhenDaemonNotRunning(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"stop"}, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
	if _, ok, _ := flagfile.ReadShutdown(env.cfg.Paths.BaseDir); ok {
		t.Fatal("expected no shutdown sentinel")
	}
}

func TestStopWritesHeadlessSentinel(t *testing.T) {
	env := setupCLITestEnv(t)
	holdInstanceLock(t, env.cfg)

	out, _, err := runCLI(t, []string{"stop", "--headless"}, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Shutdown requested")

	sentinel, ok, err := flagfile.ReadShutdown(env.cfg.Paths.BaseDir)
	if err != nil || !ok {
		t.Fatalf("read sentinel: ok=%v err=%v", ok, err)
	}
	if !strings.HasPrefix(sentinel.Content, flagfile.ShutdownByHeadless) {
		t.Fatalf("unexpected sentinel content %q", sentinel.Content)
	}
}

func TestStopWaitsForLockRelease(t *testing.T) {
	env := setupCLITestEnv(t)
	release := holdInstanceLock(t, env.cfg)
	time.AfterFunc(100*time.Millisecond, release)

	out, _, err := runCLI(t, []string{"stop", "--wait", "5s"}, env.configPath)
	if err != nil {
		t.Fatalf("stop --wait: %v", err)
	}
	requireContains(t, out, "Daemon stopped")
}

func TestStopWaitTimesOut(t *testing.T) {
	env := setupCLITestEnv(t)
	holdInstanceLock(t, env.cfg)

	_, _, err := runCLI(t, []string{"stop", "--wait", "150ms"}, env.configPath)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	requireContains(t, err.Error(), "still running")
}
