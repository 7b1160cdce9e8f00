package flagfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const probeBatch = 64

// Probe reports whether dir holds at least one *.flag file. It stops reading
// the directory at the first match so an idle poll stays cheap.
func Probe(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	for {
		entries, err := f.ReadDir(probeBatch)
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), Extension) {
				return true, nil
			}
		}
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
}

// List returns the request files of kind currently in dir, sorted by name.
// Only file names are matched against RequestPattern, so dir may contain
// glob metacharacters.
func List(dir string, kind Kind) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s requests: %w", kind, err)
	}
	pattern := RequestPattern(kind)
	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, entry.Name()); ok {
			matches = append(matches, filepath.Join(dir, entry.Name()))
		}
	}
	return sortedPaths(matches), nil
}

// Entry describes one protocol file for status displays.
type Entry struct {
	Name    string
	Path    string
	Role    Role
	Kind    Kind
	Key     string
	Size    int64
	ModTime time.Time
}

// ListAll returns every *.flag file in dir, classified. Files that vanish
// while being inspected are skipped.
func ListAll(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, Extension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		role, kind, key := Classify(name)
		out = append(out, Entry{
			Name:    name,
			Path:    filepath.Join(dir, name),
			Role:    role,
			Kind:    kind,
			Key:     key,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

// Remove deletes path. A file that is already gone is reported as not
// removed without an error.
func Remove(path string) (bool, error) {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NewKey returns a fresh request key.
func NewKey() string {
	return uuid.NewString()
}

// WriteRequest atomically drops a request file for kind into dir. An empty
// key is replaced with a generated one. It returns the final path and key.
func WriteRequest(dir string, kind Kind, key string, payload Payload) (string, string, error) {
	if strings.TrimSpace(key) == "" {
		key = NewKey()
	}
	key = SanitizeKey(key)
	data, err := payload.Marshal()
	if err != nil {
		return "", "", fmt.Errorf("encode %s request: %w", kind, err)
	}
	path := filepath.Join(dir, RequestName(kind, key))
	if err := writeAtomic(path, data); err != nil {
		return "", "", err
	}
	return path, key, nil
}

// TempSuffix marks in-progress producer writes. Leftovers come from
// interrupted writers and are safe to delete.
const TempSuffix = ".tmp"

// writeAtomic writes data beside path and renames it into place so a consumer
// never observes a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure flag directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*"+TempSuffix)
	if err != nil {
		return fmt.Errorf("create temp flag: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp flag: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp flag: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp flag: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish flag: %w", err)
	}
	return nil
}
