package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"nudge/internal/cache"
	"nudge/internal/logging"
	"nudge/internal/testsupport"
)

func TestCleanupRemovesAbandonedTempFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stale := filepath.Join(cfg.Paths.BaseDir, ".test_message_request_a.flag.123.tmp")
	fresh := filepath.Join(cfg.Paths.BaseDir, ".test_message_request_b.flag.456.tmp")
	request := filepath.Join(cfg.Paths.BaseDir, "test_message_request_c.flag")
	for _, path := range []string{stale, fresh, request} {
		testsupport.WriteFile(t, path, 8)
	}
	testsupport.Backdate(t, stale, time.Hour)
	testsupport.Backdate(t, request, time.Hour)

	report, err := cache.NewManager(cfg, logging.NewNop()).Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if report.TempFiles != 1 {
		t.Fatalf("expected 1 temp file removed, got %+v", report)
	}
	if testsupport.Exists(t, stale) {
		t.Fatal("expected abandoned temp file removed")
	}
	if !testsupport.Exists(t, fresh) {
		t.Fatal("expected in-flight temp file kept")
	}
	if !testsupport.Exists(t, request) {
		t.Fatal("cleanup must never touch request flags")
	}
}

func TestCleanupPrunesExpiredCacheEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Service.CacheMaxAgeDays = 2
	old := filepath.Join(cfg.Paths.CacheDir, "ada", "old.json")
	recent := filepath.Join(cfg.Paths.CacheDir, "recent.json")
	testsupport.WriteFile(t, old, 16)
	testsupport.WriteFile(t, recent, 16)
	testsupport.Backdate(t, old, 72*time.Hour)

	manager := cache.NewManager(cfg, nil)
	report, err := manager.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if report.CacheEntries != 1 {
		t.Fatalf("expected 1 cache entry removed, got %+v", report)
	}
	if _, err := os.Stat(filepath.Dir(old)); !os.IsNotExist(err) {
		t.Fatalf("expected emptied subdirectory removed, got %v", err)
	}

	stats, err := manager.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 1 || stats.TotalBytes != 16 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	again, err := manager.Cleanup()
	if err != nil || again.CacheEntries != 0 || again.TempFiles != 0 {
		t.Fatalf("expected idempotent second pass, got %+v err=%v", again, err)
	}
}

func TestCleanupToleratesMissingDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.RemoveAll(cfg.Paths.CacheDir); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(cfg.Paths.BaseDir); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.NewManager(cfg, nil).Cleanup(); err != nil {
		t.Fatalf("expected missing directories ignored, got %v", err)
	}
}

func TestCleanupKeepsCacheWhenMaxAgeDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Service.CacheMaxAgeDays = 0
	old := filepath.Join(cfg.Paths.CacheDir, "old.json")
	testsupport.WriteFile(t, old, 1)
	testsupport.Backdate(t, old, 365*24*time.Hour)

	if _, err := cache.NewManager(cfg, nil).Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !testsupport.Exists(t, old) {
		t.Fatal("expected cache entry kept when max age is disabled")
	}
}
