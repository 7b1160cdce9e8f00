package comm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"nudge/internal/config"
	"nudge/internal/content"
	"nudge/internal/logging"
	"nudge/internal/userdata"
)

// Users is the slice of the user store the manager reads.
type Users interface {
	Get(ctx context.Context, id string) (*userdata.User, error)
	Task(ctx context.Context, userID, taskID string) (userdata.Task, error)
	Tasks(ctx context.Context, userID string, includeDone bool) ([]userdata.Task, error)
}

// Scheduler is the view of the scheduler manager the communication manager
// keeps after boot wiring.
type Scheduler interface {
	ActiveJobs() int
}

// Options configures a Manager.
type Options struct {
	Config  *config.Config
	Users   Users
	Library *content.Library
	Logger  *slog.Logger
	// Console receives console channel output; nil keeps it log-only.
	Console io.Writer
	Now     func() time.Time
}

// Manager owns the enabled channels and implements message operations.
type Manager struct {
	cfg       *config.Config
	users     Users
	library   *content.Library
	logger    *slog.Logger
	console   io.Writer
	now       func() time.Time
	location  *time.Location
	mu        sync.RWMutex
	channels  map[string]Channel
	order     []string
	scheduler Scheduler
}

// NewManager validates opts and builds a manager with no channels.
func NewManager(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, errors.New("communication manager requires configuration")
	}
	if opts.Users == nil {
		return nil, errors.New("communication manager requires a user store")
	}
	library := opts.Library
	if library == nil {
		library = content.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		cfg:      opts.Config,
		users:    opts.Users,
		library:  library,
		logger:   logging.NewComponentLogger(opts.Logger, "comm"),
		console:  opts.Console,
		now:      now,
		location: opts.Config.Location(),
		channels: make(map[string]Channel),
	}, nil
}

// InitializeChannels builds a channel for every enabled name. Names already
// registered are kept as they are.
func (m *Manager) InitializeChannels(enabled []string) error {
	if len(enabled) == 0 {
		return errors.New("no channels enabled")
	}
	for _, name := range enabled {
		name = strings.ToLower(strings.TrimSpace(name))
		m.mu.RLock()
		_, exists := m.channels[name]
		m.mu.RUnlock()
		if exists {
			continue
		}
		ch, err := m.buildChannel(name)
		if err != nil {
			return err
		}
		m.RegisterChannel(ch)
	}
	m.logger.Info("channels initialized",
		logging.String(logging.FieldEventType, "channels_initialized"),
		logging.String("channels", strings.Join(m.AvailableChannels(), ",")),
	)
	return nil
}

func (m *Manager) buildChannel(name string) (Channel, error) {
	switch name {
	case config.ChannelConsole:
		return NewConsoleChannel(m.console, m.logger), nil
	case config.ChannelNtfy:
		return NewNtfyChannel(m.cfg.Channels.Ntfy), nil
	case config.ChannelWebhook:
		return NewWebhookChannel(m.cfg.Channels.Webhook), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
}

// RegisterChannel adds or replaces a channel by name.
func (m *Manager) RegisterChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := ch.Name()
	if _, exists := m.channels[name]; !exists {
		m.order = append(m.order, name)
	}
	m.channels[name] = ch
}

// StartAll starts every channel. A channel that fails to start is logged and
// reported; the others still start.
func (m *Manager) StartAll(ctx context.Context) error {
	var errs []error
	for _, ch := range m.snapshot() {
		if err := ch.Start(ctx); err != nil {
			logging.WarnWithContext(m.logger, "channel start failed", "channel_start_failed",
				logging.Channel(ch.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the channel settings in config.toml"),
				logging.String(logging.FieldImpact, "users on this channel receive nothing"),
			)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every channel. Safe to call repeatedly.
func (m *Manager) StopAll() error {
	var errs []error
	for _, ch := range m.snapshot() {
		if err := ch.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	m.logger.Info("channels stopped", logging.String(logging.FieldEventType, "channels_stopped"))
	return errors.Join(errs...)
}

// SetSchedulerManager links the scheduler manager for status reporting.
func (m *Manager) SetSchedulerManager(s Scheduler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduler = s
}

// ActiveJobs reports the linked scheduler's job count, or zero.
func (m *Manager) ActiveJobs() int {
	m.mu.RLock()
	s := m.scheduler
	m.mu.RUnlock()
	if s == nil {
		return 0
	}
	return s.ActiveJobs()
}

// AvailableChannels lists the registered channel names in registration order.
func (m *Manager) AvailableChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// ChannelStatuses reports each channel's connectivity.
func (m *Manager) ChannelStatuses() map[string]Status {
	statuses := make(map[string]Status)
	for _, ch := range m.snapshot() {
		statuses[ch.Name()] = ch.Status()
	}
	return statuses
}

func (m *Manager) snapshot() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Channel, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.channels[name])
	}
	return out
}

func (m *Manager) channel(name string) (Channel, error) {
	m.mu.RLock()
	ch, ok := m.channels[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not enabled", ErrChannelUnavailable, name)
	}
	return ch, nil
}

// RecipientForService resolves the channel and recipient for userID. The
// recipient defaults to the user id when none is stored.
func (m *Manager) RecipientForService(ctx context.Context, userID string) (string, string, error) {
	user, err := m.users.Get(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if _, err := m.channel(user.Channel); err != nil {
		return "", "", err
	}
	recipient := strings.TrimSpace(user.Recipient)
	if recipient == "" {
		recipient = user.ID
	}
	return user.Channel, recipient, nil
}

// HandleMessageSending sends today's message for category to userID and
// returns the text that was sent.
func (m *Manager) HandleMessageSending(ctx context.Context, userID, category string) (string, error) {
	channel, recipient, err := m.RecipientForService(ctx, userID)
	if err != nil {
		return "", err
	}
	now := m.now()
	text, err := m.library.Message(category, now.In(m.location))
	if err != nil {
		return "", err
	}
	msg := Message{
		UserID: userID,
		Kind:   "category_message",
		Title:  "Nudge · " + content.CategoryTitle(category),
		Body:   text,
		Tags:   []string{"nudge", content.NormalizeCategory(category)},
		SentAt: now,
	}
	if err := m.deliver(ctx, channel, recipient, msg); err != nil {
		return "", err
	}
	return text, nil
}

// SendCheckinPrompt sends the check-in prompt over channel to recipient and
// returns the first question.
func (m *Manager) SendCheckinPrompt(ctx context.Context, userID, channel, recipient string) (string, error) {
	questions := m.library.CheckinQuestions()
	if len(questions) == 0 {
		return "", errors.New("no check-in questions configured")
	}
	msg := Message{
		UserID: userID,
		Kind:   "checkin_prompt",
		Title:  "Nudge · Check-in",
		Body:   questions[0],
		Tags:   []string{"nudge", "checkin"},
		SentAt: m.now(),
	}
	if err := m.deliver(ctx, channel, recipient, msg); err != nil {
		return "", err
	}
	return questions[0], nil
}

// HandleTaskReminder sends a reminder for one task. Completed tasks are
// skipped without error.
func (m *Manager) HandleTaskReminder(ctx context.Context, userID, taskID string) error {
	task, err := m.users.Task(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if task.Done() {
		m.logger.Info("task already completed; reminder skipped",
			logging.UserID(userID),
			logging.String("task_id", taskID),
			logging.String(logging.FieldEventType, "task_reminder_skipped"),
		)
		return nil
	}
	return m.remind(ctx, userID, task)
}

// SendTaskReminders reminds userID of every open task and returns how many
// reminders were sent.
func (m *Manager) SendTaskReminders(ctx context.Context, userID string) (int, error) {
	tasks, err := m.users.Tasks(ctx, userID, false)
	if err != nil {
		return 0, err
	}
	sent := 0
	var errs []error
	for _, task := range tasks {
		if err := m.remind(ctx, userID, task); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (m *Manager) remind(ctx context.Context, userID string, task userdata.Task) error {
	channel, recipient, err := m.RecipientForService(ctx, userID)
	if err != nil {
		return err
	}
	due := task.DueAt
	if !due.IsZero() {
		due = due.In(m.location)
	}
	priority := ""
	if task.Overdue(m.now()) {
		priority = "high"
	}
	return m.deliver(ctx, channel, recipient, Message{
		UserID:   userID,
		Kind:     "task_reminder",
		Title:    "Nudge · Task",
		Body:     m.library.FormatTaskReminder(task.Title, due),
		Tags:     []string{"nudge", "task"},
		Priority: priority,
		SentAt:   m.now(),
	})
}

func (m *Manager) deliver(ctx context.Context, channelName, recipient string, msg Message) error {
	ch, err := m.channel(channelName)
	if err != nil {
		return err
	}
	if err := ch.Send(ctx, recipient, msg); err != nil {
		return fmt.Errorf("send via %s: %w", channelName, err)
	}
	m.logger.Debug("message sent",
		logging.UserID(msg.UserID),
		logging.Channel(channelName),
		logging.String("kind", msg.Kind),
	)
	return nil
}
