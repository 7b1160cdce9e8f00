package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// HostOptions configures the daemon's main log sink.
type HostOptions struct {
	// Path is the main log file. Required.
	Path string
	// Console receives a copy of every line; nil disables console output.
	Console io.Writer
	Level   string
	Format  string
	// Development forces source locations on every line.
	Development bool
}

// Host owns the daemon's main log file. Loggers built by a Host write through
// it, so the file can be flushed, reopened after out-of-band deletion, and
// closed on shutdown without invalidating logger handles held elsewhere.
type Host struct {
	mu       sync.Mutex
	opts     HostOptions
	file     *os.File
	logger   *slog.Logger
	restarts int
}

// NewHost opens the log file and builds the initial logger.
func NewHost(opts HostOptions) (*Host, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("log host requires a file path")
	}
	file, err := openLogFile(opts.Path)
	if err != nil {
		return nil, err
	}
	h := &Host{opts: opts, file: file}
	logger, err := h.build()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	h.logger = logger
	return h, nil
}

func (h *Host) build() (*slog.Logger, error) {
	return NewWithWriter(h, Options{
		Level:       h.opts.Level,
		Format:      h.opts.Format,
		Development: h.opts.Development,
	})
}

// Write fans p out to the console and the log file. File errors are reported;
// console errors are ignored.
func (h *Host) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opts.Console != nil {
		_, _ = h.opts.Console.Write(p)
	}
	if h.file == nil {
		return len(p), nil
	}
	return h.file.Write(p)
}

// Logger returns the current logger handle.
func (h *Host) Logger() *slog.Logger {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logger
}

// Path returns the main log file path.
func (h *Host) Path() string {
	return h.opts.Path
}

// Flush forces buffered file contents to stable storage.
func (h *Host) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	return h.file.Sync()
}

// Restart closes and reopens the log file and returns a fresh logger handle.
func (h *Host) Restart() (*slog.Logger, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restarts++
	if h.file != nil {
		_ = h.file.Close()
		h.file = nil
	}
	file, err := openLogFile(h.opts.Path)
	if err != nil {
		return h.logger, fmt.Errorf("reopen log file: %w", err)
	}
	h.file = file
	logger, err := h.build()
	if err != nil {
		return h.logger, err
	}
	h.logger = logger
	return logger, nil
}

// Restarts reports how many times Restart has been called.
func (h *Host) Restarts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restarts
}

// Close flushes and releases the log file. Later writes reach the console only.
// Close is safe to call more than once.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	syncErr := h.file.Sync()
	closeErr := h.file.Close()
	h.file = nil
	return errors.Join(syncErr, closeErr)
}
