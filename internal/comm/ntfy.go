package comm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nudge/internal/config"
)

const userAgent = "Nudge-Go/0.1.0"

// NtfyChannel publishes messages to an ntfy server. Each recipient maps to
// the topic "<topic_prefix>-<recipient>".
type NtfyChannel struct {
	state  channelState
	server string
	prefix string
	client *http.Client
}

// NewNtfyChannel builds an ntfy channel from configuration.
func NewNtfyChannel(cfg config.Ntfy) *NtfyChannel {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NtfyChannel{
		server: strings.TrimRight(strings.TrimSpace(cfg.Server), "/"),
		prefix: strings.TrimSpace(cfg.TopicPrefix),
		client: &http.Client{Timeout: timeout},
	}
}

func (n *NtfyChannel) Name() string { return config.ChannelNtfy }

func (n *NtfyChannel) Start(context.Context) error {
	if n.server == "" || n.prefix == "" {
		return fmt.Errorf("ntfy channel requires server and topic_prefix")
	}
	n.state.start()
	return nil
}

func (n *NtfyChannel) Stop() error {
	n.state.stop()
	return nil
}

func (n *NtfyChannel) Status() Status { return n.state.status() }

// Topic returns the ntfy topic URL for recipient.
func (n *NtfyChannel) Topic(recipient string) string {
	return n.server + "/" + n.prefix + "-" + strings.TrimSpace(recipient)
}

func (n *NtfyChannel) Send(ctx context.Context, recipient string, msg Message) error {
	if !n.state.running() {
		return fmt.Errorf("%w: ntfy channel not started", ErrChannelUnavailable)
	}
	err := n.send(ctx, n.Topic(recipient), msg)
	n.state.record(err)
	return err
}

func (n *NtfyChannel) send(ctx context.Context, endpoint string, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Priority != "" && msg.Priority != "default" {
		req.Header.Set("Priority", msg.Priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
