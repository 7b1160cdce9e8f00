package comm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"nudge/internal/config"
	"nudge/internal/logging"
)

// ConsoleChannel prints messages to a writer and the log. It needs no
// external service, which makes it the default for headless and test runs.
type ConsoleChannel struct {
	state  channelState
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
}

// NewConsoleChannel writes to out when non-nil and always logs each send.
func NewConsoleChannel(out io.Writer, logger *slog.Logger) *ConsoleChannel {
	return &ConsoleChannel{
		out:    out,
		logger: logging.NewComponentLogger(logger, "console-channel"),
	}
}

func (c *ConsoleChannel) Name() string { return config.ChannelConsole }

func (c *ConsoleChannel) Start(context.Context) error {
	c.state.start()
	return nil
}

func (c *ConsoleChannel) Stop() error {
	c.state.stop()
	return nil
}

func (c *ConsoleChannel) Status() Status { return c.state.status() }

func (c *ConsoleChannel) Send(ctx context.Context, recipient string, msg Message) error {
	if !c.state.running() {
		return fmt.Errorf("%w: console channel not started", ErrChannelUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.Info("message delivered",
		logging.String(logging.FieldEventType, "message_delivered"),
		logging.UserID(msg.UserID),
		logging.String("recipient", recipient),
		logging.String("title", msg.Title),
	)
	if c.out == nil {
		return nil
	}
	var b strings.Builder
	b.WriteString("→ ")
	b.WriteString(recipient)
	if msg.Title != "" {
		b.WriteString(" [")
		b.WriteString(msg.Title)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(msg.Body)
	b.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, b.String())
	c.state.record(err)
	return err
}
