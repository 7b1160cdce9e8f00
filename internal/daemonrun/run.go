// Package daemonrun wires the nudge daemon process: log host, user store,
// content library and the service controller.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"nudge/internal/config"
	"nudge/internal/content"
	"nudge/internal/logging"
	"nudge/internal/service"
	"nudge/internal/userdata"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Stdout receives console log lines and console channel output.
	// Defaults to os.Stdout.
	Stdout io.Writer
}

// Run boots the controller and blocks until it stops. The returned error is
// the controller's fatal boot error, if any.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("nudge-%s.log", runID))
	host, err := logging.NewHost(logging.HostOptions{
		Path:        logPath,
		Console:     stdout,
		Level:       level,
		Format:      cfg.Logging.Format,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer host.Close()
	logger := host.Logger()

	if err := ensureCurrentLogPointer(cfg.LogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update nudge.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "nudge-*.log", Exclude: []string{logPath}},
	)

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	library := loadLibrary(logger, cfg.Paths.ContentFile)

	store, err := userdata.Open(cfg)
	if err != nil {
		logger.Error("open user store", logging.Error(err))
		return err
	}
	defer store.Close()

	ctrl, err := service.New(service.Options{
		Config:  cfg,
		Users:   store,
		Host:    host,
		Library: library,
		Console: stdout,
	})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	defer ctrl.EmergencyShutdown()
	release := ctrl.HandleSignals(cmdCtx)
	defer release()

	logger.Info("nudge daemon starting",
		logging.String(logging.FieldEventType, "daemon_starting"),
		logging.String("session_id", uuid.NewString()),
		logging.String("log_path", logPath),
		logging.Int("pid", os.Getpid()),
	)
	return ctrl.Start(cmdCtx)
}

// PIDPath returns where the running daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "nudge.pid")
}

// ReadPID returns the pid recorded by a running daemon.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

func loadLibrary(logger *slog.Logger, path string) *content.Library {
	library, err := content.Load(path)
	if err != nil {
		logging.WarnWithContext(logger, "content library unavailable, using built-in messages", "content_load_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the YAML in paths.content_file"),
			logging.String(logging.FieldImpact, "custom categories and questions are not used"),
		)
		return content.Default()
	}
	return library
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
