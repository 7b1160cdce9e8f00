package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nudge/internal/config"
	"nudge/internal/userdata"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

type stubUsers struct {
	root  string
	users []userdata.User
}

func (s stubUsers) List(context.Context) ([]userdata.User, error) { return s.users, nil }

func (s stubUsers) DataDir(id string) string { return filepath.Join(s.root, "users", id) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.BaseDir = filepath.Join(root, "base")
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.CacheDir = filepath.Join(root, "cache")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	return &cfg
}

func TestRequiredPathsIncludesUserDirs(t *testing.T) {
	cfg := testConfig(t)
	users := stubUsers{root: cfg.Paths.DataDir, users: []userdata.User{{ID: "ada"}, {ID: "bob"}}}

	paths, err := RequiredPaths(context.Background(), cfg, users)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 6 {
		t.Fatalf("expected 4 config dirs plus 2 user dirs, got %v", paths)
	}

	err = VerifyAccess(paths)
	if err == nil || !strings.Contains(err.Error(), "User ada") || !strings.Contains(err.Error(), "User bob") {
		t.Fatalf("expected missing user dirs reported, got %v", err)
	}
	for _, id := range []string{"ada", "bob"} {
		if err := os.MkdirAll(users.DataDir(id), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := VerifyAccess(paths); err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
}

func TestCheckNtfy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if res := CheckNtfy(context.Background(), srv.URL+"/"); !res.Passed {
		t.Fatalf("expected pass, got %s", res.Detail)
	}
	if res := CheckNtfy(context.Background(), ""); res.Passed {
		t.Fatal("expected failure for missing server")
	}
}

func TestCheckURLConfigured(t *testing.T) {
	if res := CheckURLConfigured("Webhook", "https://example.com/hook"); !res.Passed {
		t.Fatalf("expected pass, got %s", res.Detail)
	}
	for _, bad := range []string{"", "ftp://x", "not a url"} {
		if res := CheckURLConfigured("Webhook", bad); res.Passed {
			t.Fatalf("expected failure for %q", bad)
		}
	}
}

func TestRunAllSkipsDisabledChannels(t *testing.T) {
	cfg := testConfig(t)
	results := RunAll(context.Background(), cfg, nil)
	if len(results) != 4 {
		t.Fatalf("expected only directory checks, got %+v", results)
	}
	for _, res := range results {
		if !res.Passed {
			t.Fatalf("unexpected failure %+v", res)
		}
	}
}
