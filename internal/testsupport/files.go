package testsupport

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nudge/internal/flagfile"
)

// WriteFile creates path, and its parent directories, holding size bytes of
// filler. size <= 0 writes one byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := bytes.Repeat([]byte{'x'}, int(max(size, 1)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteFlag writes a request flag for kind/key into dir. payload is encoded
// as JSON unless it is a string, which is written verbatim so tests can
// produce malformed bodies.
func WriteFlag(t testing.TB, dir string, kind flagfile.Kind, key string, payload any) string {
	t.Helper()

	var data []byte
	switch v := payload.(type) {
	case string:
		data = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		data = encoded
	}
	path := filepath.Join(dir, flagfile.RequestName(kind, key))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write flag %s: %v", path, err)
	}
	return path
}

// Backdate sets path's modification time to age before now.
func Backdate(t testing.TB, path string, age time.Duration) {
	t.Helper()

	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

// Exists reports whether path exists.
func Exists(t testing.TB, path string) bool {
	t.Helper()

	switch _, err := os.Stat(path); {
	case err == nil:
		return true
	case errors.Is(err, fs.ErrNotExist):
		return false
	default:
		t.Fatalf("stat %s: %v", path, err)
		return false
	}
}
