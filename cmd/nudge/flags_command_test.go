package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nudge/internal/flagfile"
	"nudge/internal/testsupport"
)

func TestFlagsEmptyDirectory(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"flags"}, env.configPath)
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	requireContains(t, out, "No flag files in "+env.cfg.Paths.BaseDir)
}

func TestFlagsListsClassifiedEntries(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := env.cfg.Paths.BaseDir

	testsupport.WriteFlag(t, dir, flagfile.KindCheckinPrompt, "morning", map[string]any{"user_id": "alice"})
	if _, err := flagfile.WriteShutdown(dir, flagfile.ShutdownByUI, time.Now()); err != nil {
		t.Fatalf("write shutdown: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(dir, "mystery.flag"), 3)

	out, _, err := runCLI(t, []string{"flags"}, env.configPath)
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	for _, want := range []string{"checkin_prompt", "morning", "shutdown", "mystery.flag", "unknown"} {
		requireContains(t, out, want)
	}
}

func TestRenderFlagTableOrdersByAge(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	entries := []flagfile.Entry{
		{Name: "test_message_request_new.flag", Role: flagfile.RoleRequest, Kind: flagfile.KindTestMessage, Key: "new", ModTime: now.Add(-time.Second), Size: 10},
		{Name: "test_message_request_old.flag", Role: flagfile.RoleRequest, Kind: flagfile.KindTestMessage, Key: "old", ModTime: now.Add(-90 * time.Second), Size: 2048},
	}
	out := renderFlagTable(entries, now)
	oldIdx, newIdx := strings.Index(out, "old"), strings.Index(out, "new")
	if oldIdx < 0 || newIdx < 0 || oldIdx > newIdx {
		t.Fatalf("expected oldest flag first:\n%s", out)
	}
	requireContains(t, out, "1m30s")
	requireContains(t, out, "2.0 KiB")
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1536:            "1.5 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"ID", "Name"}, [][]string{{"alice"}}, nil)
	requireContains(t, out, "ID")
	requireContains(t, out, "alice")
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}
