// Package scheduler runs the daily jobs that send category messages,
// check-in prompts, and task reminders.
//
// Jobs are cron entries keyed by (kind, user, category). The send time for a
// category comes from the user's own subscription when set, otherwise from
// the [schedule] section of the configuration.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"nudge/internal/config"
	"nudge/internal/logging"
	"nudge/internal/userdata"
)

const (
	defaultJobTimeout  = 5 * time.Minute
	defaultStopTimeout = 10 * time.Second
)

// ErrNotSubscribed is returned when rescheduling a category the user does
// not receive.
var ErrNotSubscribed = errors.New("user is not subscribed to category")

// Sender is the slice of the communication manager jobs call.
type Sender interface {
	HandleMessageSending(ctx context.Context, userID, category string) (string, error)
	RecipientForService(ctx context.Context, userID string) (channel, recipient string, err error)
	SendCheckinPrompt(ctx context.Context, userID, channel, recipient string) (string, error)
	SendTaskReminders(ctx context.Context, userID string) (int, error)
}

// Users is the slice of the user store the scheduler enumerates.
type Users interface {
	List(ctx context.Context) ([]userdata.User, error)
	Get(ctx context.Context, id string) (*userdata.User, error)
	Categories(ctx context.Context, userID string) ([]userdata.Category, error)
	UsersWithOpenTasks(ctx context.Context) ([]string, error)
}

// JobKind identifies what a scheduled job sends.
type JobKind string

const (
	JobDailyMessage JobKind = "daily_message"
	JobCheckin      JobKind = "checkin"
	JobTaskReminder JobKind = "task_reminder"
)

type jobKey struct {
	kind     JobKind
	userID   string
	category string
}

type jobEntry struct {
	id   cron.EntryID
	spec string
	at   string
}

// JobInfo describes one scheduled job.
type JobInfo struct {
	Kind     JobKind
	UserID   string
	Category string
	At       string
	Spec     string
	Next     time.Time
}

// Options configures a Manager.
type Options struct {
	Config *config.Config
	Users  Users
	Sender Sender
	Logger *slog.Logger
	// JobTimeout bounds one job run.
	JobTimeout time.Duration
}

// Manager owns the cron runner and the job table.
type Manager struct {
	cfg        *config.Config
	users      Users
	sender     Sender
	logger     *slog.Logger
	jobTimeout time.Duration
	location   *time.Location

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[jobKey]jobEntry
	ctx     context.Context
	running bool
	stopped bool
}

// NewManager validates opts and builds an idle scheduler.
func NewManager(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, errors.New("scheduler requires configuration")
	}
	if opts.Users == nil {
		return nil, errors.New("scheduler requires a user store")
	}
	if opts.Sender == nil {
		return nil, errors.New("scheduler requires a sender")
	}
	timeout := opts.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	loc := opts.Config.Location()
	logger := logging.NewComponentLogger(opts.Logger, "scheduler")
	return &Manager{
		cfg:        opts.Config,
		users:      opts.Users,
		sender:     opts.Sender,
		logger:     logger,
		jobTimeout: timeout,
		location:   loc,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger{logger: logger})),
		),
		entries: make(map[jobKey]jobEntry),
		ctx:     context.Background(),
	}, nil
}

// RunDailyScheduler registers every job from the user store and starts the
// cron runner. Calling it again rebuilds the job table.
func (m *Manager) RunDailyScheduler(ctx context.Context) error {
	users, err := m.users.List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	withTasks, err := m.users.UsersWithOpenTasks(ctx)
	if err != nil {
		return fmt.Errorf("list task owners: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return errors.New("scheduler already stopped")
	}
	m.ctx = context.WithoutCancel(ctx)
	for key, entry := range m.entries {
		m.cron.Remove(entry.id)
		delete(m.entries, key)
	}

	var errs []error
	for _, user := range users {
		categories, err := m.users.Categories(ctx, user.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("categories for %s: %w", user.ID, err))
			continue
		}
		for _, category := range categories {
			if err := m.addLocked(jobKey{JobDailyMessage, user.ID, category.Name}, m.sendTime(category)); err != nil {
				errs = append(errs, err)
			}
		}
		if user.CheckinsEnabled {
			if err := m.addLocked(jobKey{JobCheckin, user.ID, ""}, m.cfg.Schedule.CheckinTime); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, userID := range withTasks {
		if err := m.addLocked(jobKey{JobTaskReminder, userID, ""}, m.cfg.Schedule.TaskReminderTime); err != nil {
			errs = append(errs, err)
		}
	}

	if !m.running {
		m.cron.Start()
		m.running = true
	}
	m.logger.Info("daily scheduler running",
		logging.String(logging.FieldEventType, "scheduler_started"),
		logging.Int("jobs", len(m.entries)),
		logging.Int("users", len(users)),
	)
	return errors.Join(errs...)
}

// ResetAndRescheduleDailyMessages replaces the daily message job for one
// user and category using the current subscription and configuration.
func (m *Manager) ResetAndRescheduleDailyMessages(ctx context.Context, category, userID string) error {
	category = userdata.NormalizeCategory(category)
	if _, err := m.users.Get(ctx, userID); err != nil {
		return err
	}
	categories, err := m.users.Categories(ctx, userID)
	if err != nil {
		return fmt.Errorf("categories for %s: %w", userID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return errors.New("scheduler already stopped")
	}
	key := jobKey{JobDailyMessage, userID, category}
	if entry, ok := m.entries[key]; ok {
		m.cron.Remove(entry.id)
		delete(m.entries, key)
	}
	for _, c := range categories {
		if c.Name != category {
			continue
		}
		if err := m.addLocked(key, m.sendTime(c)); err != nil {
			return err
		}
		m.logger.Info("daily messages rescheduled",
			logging.String(logging.FieldEventType, "messages_rescheduled"),
			logging.UserID(userID),
			logging.String("category", category),
			logging.String("at", m.entries[key].at),
		)
		return nil
	}
	return fmt.Errorf("%w: %s/%s", ErrNotSubscribed, userID, category)
}

// StopScheduler stops the cron runner and waits briefly for running jobs.
// Safe to call more than once.
func (m *Manager) StopScheduler() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	wasRunning := m.running
	m.running = false
	m.mu.Unlock()

	if !wasRunning {
		return
	}
	done := m.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(defaultStopTimeout):
		logging.WarnWithContext(m.logger, "scheduler stop timed out waiting for jobs", "scheduler_stop_timeout",
			logging.String(logging.FieldErrorHint, "a channel send may be hanging"),
			logging.String(logging.FieldImpact, "in-flight job abandoned at shutdown"),
		)
	}
	m.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stopped"))
}

// ActiveJobs returns the number of registered jobs.
func (m *Manager) ActiveJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// NextRun returns the next daily message time for a user and category.
func (m *Manager) NextRun(userID, category string) (time.Time, bool) {
	m.mu.Lock()
	entry, ok := m.entries[jobKey{JobDailyMessage, userID, userdata.NormalizeCategory(category)}]
	m.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return m.cron.Entry(entry.id).Next, true
}

// Jobs lists every registered job ordered by user, kind, and category.
func (m *Manager) Jobs() []JobInfo {
	m.mu.Lock()
	jobs := make([]JobInfo, 0, len(m.entries))
	for key, entry := range m.entries {
		jobs = append(jobs, JobInfo{
			Kind:     key.kind,
			UserID:   key.userID,
			Category: key.category,
			At:       entry.at,
			Spec:     entry.spec,
			Next:     m.cron.Entry(entry.id).Next,
		})
	}
	m.mu.Unlock()
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].UserID != jobs[j].UserID {
			return jobs[i].UserID < jobs[j].UserID
		}
		if jobs[i].Kind != jobs[j].Kind {
			return jobs[i].Kind < jobs[j].Kind
		}
		return jobs[i].Category < jobs[j].Category
	})
	return jobs
}

func (m *Manager) sendTime(category userdata.Category) string {
	if category.SendTime != "" {
		return category.SendTime
	}
	return m.cfg.CategoryTime(category.Name)
}

func (m *Manager) addLocked(key jobKey, at string) error {
	spec, err := dailySpec(at)
	if err != nil {
		return fmt.Errorf("%s job for %s: %w", key.kind, key.userID, err)
	}
	id, err := m.cron.AddFunc(spec, func() { m.run(key) })
	if err != nil {
		return fmt.Errorf("schedule %s job for %s: %w", key.kind, key.userID, err)
	}
	m.entries[key] = jobEntry{id: id, spec: spec, at: at}
	return nil
}

// dailySpec converts "HH:MM" into a five-field cron spec.
func dailySpec(at string) (string, error) {
	hour, minute, err := config.ParseClock(at)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

func (m *Manager) run(key jobKey) {
	m.mu.Lock()
	base := m.ctx
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(logging.WithUserID(base, key.userID), m.jobTimeout)
	defer cancel()

	err := m.execute(ctx, key)
	logger := logging.WithContext(ctx, m.logger)
	if err != nil {
		logging.ErrorWithContext(logger, "scheduled job failed", "job_failed",
			logging.String("job", string(key.kind)),
			logging.String("category", key.category),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the user's channel and content library"),
		)
		return
	}
	logger.Info("scheduled job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.String("job", string(key.kind)),
		logging.String("category", key.category),
	)
}

func (m *Manager) execute(ctx context.Context, key jobKey) error {
	switch key.kind {
	case JobDailyMessage:
		_, err := m.sender.HandleMessageSending(ctx, key.userID, key.category)
		return err
	case JobCheckin:
		channel, recipient, err := m.sender.RecipientForService(ctx, key.userID)
		if err != nil {
			return err
		}
		_, err = m.sender.SendCheckinPrompt(ctx, key.userID, channel, recipient)
		return err
	case JobTaskReminder:
		_, err := m.sender.SendTaskReminders(ctx, key.userID)
		return err
	default:
		return fmt.Errorf("unknown job kind %q", key.kind)
	}
}

// cronLogger adapts slog to cron's logger interface for panic recovery.
type cronLogger struct {
	logger *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger.Error(msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
