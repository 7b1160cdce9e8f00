package logging_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nudge/internal/logging"
)

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "debug",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersSubject(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewWithWriter(&buf, logging.Options{Format: "console"})
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}

	ctx := logging.WithRequest(logging.WithUserID(context.Background(), "user1"), "test_message", "abc")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "router")).Info("request dispatched", logging.String("category", "motivational"))

	line := buf.String()
	for _, want := range []string{"INFO", "router · user user1 · test_message: request dispatched", "category=motivational", "request_key=abc"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestJSONLoggerUsesRFC3339Timestamps(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewWithWriter(&buf, logging.Options{Format: "json", Level: "debug"})
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	line := buf.String()
	if !strings.Contains(line, `"ts":"`) || !strings.Contains(line, `"k":"v"`) {
		t.Fatalf("unexpected json line %q", line)
	}
	if !strings.Contains(line, time.Now().UTC().Format("2006-01-02")) {
		t.Fatalf("expected UTC date in %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewWithWriter(&buf, logging.Options{Format: "json"})
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	logging.WarnWithContext(logger, "something odd", "odd_event")

	line := buf.String()
	for _, want := range []string{`"event_type":"odd_event"`, `"error_hint"`, `"impact"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %q", want, line)
		}
	}
}
