package flagfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sentinel content prefixes. The text is advisory and only logged.
const (
	ShutdownByUI       = "SHUTDOWN_REQUESTED_BY_UI_"
	ShutdownByHeadless = "HEADLESS_SHUTDOWN_REQUESTED_"
)

// Sentinel is an observed shutdown request.
type Sentinel struct {
	Path    string
	Content string
	ModTime time.Time
}

// ShutdownPath returns the sentinel location inside dir.
func ShutdownPath(dir string) string {
	return filepath.Join(dir, ShutdownName)
}

// ReadShutdown reports the sentinel in dir, if any. A sentinel that vanishes
// between stat and read is reported as absent.
func ReadShutdown(dir string) (Sentinel, bool, error) {
	path := ShutdownPath(dir)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Sentinel{}, false, nil
		}
		return Sentinel{}, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Sentinel{}, false, nil
		}
		return Sentinel{}, false, err
	}
	return Sentinel{
		Path:    path,
		Content: strings.TrimSpace(string(data)),
		ModTime: info.ModTime(),
	}, true, nil
}

// WriteShutdown drops the sentinel into dir with prefix followed by the Unix
// time of at.
func WriteShutdown(dir, prefix string, at time.Time) (string, error) {
	if prefix == "" {
		prefix = ShutdownByUI
	}
	path := ShutdownPath(dir)
	content := fmt.Sprintf("%s%d", prefix, at.Unix())
	if err := writeAtomic(path, []byte(content)); err != nil {
		return "", err
	}
	return path, nil
}
