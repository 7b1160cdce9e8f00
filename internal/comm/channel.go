package comm

import (
	"context"
	"errors"
	"time"
)

// Status is a channel's connectivity state.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
	StatusStopped      Status = "stopped"
)

// Connected reports whether the status counts as healthy.
func (s Status) Connected() bool { return s == StatusConnected }

var (
	// ErrUnknownChannel is returned for channel names with no implementation.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrChannelUnavailable is returned when a user's channel is not enabled
	// or not running.
	ErrChannelUnavailable = errors.New("channel unavailable")
)

// Message is one outbound message.
type Message struct {
	UserID   string
	Kind     string
	Title    string
	Body     string
	Tags     []string
	Priority string
	SentAt   time.Time
}

// Channel is a delivery transport.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, recipient string, msg Message) error
	Status() Status
}
