package comm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nudge/internal/config"
)

// WebhookChannel POSTs each message as JSON to a fixed URL.
type WebhookChannel struct {
	state  channelState
	url    string
	client *http.Client
}

type webhookPayload struct {
	Recipient string    `json:"recipient"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind,omitempty"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// NewWebhookChannel builds a webhook channel from configuration.
func NewWebhookChannel(cfg config.Webhook) *WebhookChannel {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		url:    strings.TrimSpace(cfg.URL),
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookChannel) Name() string { return config.ChannelWebhook }

func (w *WebhookChannel) Start(context.Context) error {
	if w.url == "" {
		return fmt.Errorf("webhook channel requires a url")
	}
	w.state.start()
	return nil
}

func (w *WebhookChannel) Stop() error {
	w.state.stop()
	return nil
}

func (w *WebhookChannel) Status() Status { return w.state.status() }

func (w *WebhookChannel) Send(ctx context.Context, recipient string, msg Message) error {
	if !w.state.running() {
		return fmt.Errorf("%w: webhook channel not started", ErrChannelUnavailable)
	}
	err := w.post(ctx, recipient, msg)
	w.state.record(err)
	return err
}

func (w *WebhookChannel) post(ctx context.Context, recipient string, msg Message) error {
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	body, err := json.Marshal(webhookPayload{
		Recipient: recipient,
		UserID:    msg.UserID,
		Kind:      msg.Kind,
		Title:     msg.Title,
		Body:      msg.Body,
		Tags:      msg.Tags,
		Priority:  msg.Priority,
		SentAt:    sentAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
