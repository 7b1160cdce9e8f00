package comm_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nudge/internal/comm"
	"nudge/internal/config"
	"nudge/internal/logging"
)

func TestNtfyChannelSendsHeaders(t *testing.T) {
	var gotPath, gotTitle, gotTags, gotPriority, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := comm.NewNtfyChannel(config.Ntfy{Server: server.URL + "/", TopicPrefix: "nudge"})
	if err := ch.Send(context.Background(), "ada", comm.Message{Body: "x"}); !errors.Is(err, comm.ErrChannelUnavailable) {
		t.Fatalf("expected unavailable before start, got %v", err)
	}
	if err := ch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := ch.Send(context.Background(), "ada", comm.Message{
		Title:    "Nudge · Health",
		Body:     "Drink water",
		Tags:     []string{"nudge", "health"},
		Priority: "high",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/nudge-ada" || gotTitle != "Nudge · Health" || gotTags != "nudge,health" || gotPriority != "high" || gotBody != "Drink water" {
		t.Fatalf("unexpected request path=%q title=%q tags=%q priority=%q body=%q", gotPath, gotTitle, gotTags, gotPriority, gotBody)
	}
	if ch.Status() != comm.StatusConnected {
		t.Fatalf("expected connected, got %s", ch.Status())
	}
	_ = ch.Stop()
	if ch.Status() != comm.StatusStopped {
		t.Fatalf("expected stopped, got %s", ch.Status())
	}
}

func TestNtfyChannelReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	ch := comm.NewNtfyChannel(config.Ntfy{Server: server.URL, TopicPrefix: "nudge"})
	_ = ch.Start(context.Background())
	err := ch.Send(context.Background(), "ada", comm.Message{Body: "hello"})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
	if ch.Status() != comm.StatusError {
		t.Fatalf("expected error status, got %s", ch.Status())
	}
}

func TestNtfyChannelRequiresTopicPrefix(t *testing.T) {
	ch := comm.NewNtfyChannel(config.Ntfy{Server: "https://ntfy.sh"})
	if err := ch.Start(context.Background()); err == nil {
		t.Fatal("expected start error without topic prefix")
	}
}

func TestWebhookChannelPostsJSON(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ch := comm.NewWebhookChannel(config.Webhook{URL: server.URL})
	if err := ch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := ch.Send(context.Background(), "room-1", comm.Message{UserID: "u1", Kind: "checkin_prompt", Body: "How are you?"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if payload["recipient"] != "room-1" || payload["user_id"] != "u1" || payload["body"] != "How are you?" || payload["kind"] != "checkin_prompt" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestConsoleChannelWritesLine(t *testing.T) {
	var buf bytes.Buffer
	ch := comm.NewConsoleChannel(&buf, logging.NewNop())
	_ = ch.Start(context.Background())
	if err := ch.Send(context.Background(), "u1", comm.Message{Title: "T", Body: "B"}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "→ u1 [T]: B\n" {
		t.Fatalf("unexpected console output %q", got)
	}
}
