package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"nudge/internal/bootstrap"
	"nudge/internal/cache"
	"nudge/internal/comm"
	"nudge/internal/config"
	"nudge/internal/content"
	"nudge/internal/flagfile"
	"nudge/internal/logging"
	"nudge/internal/preflight"
	"nudge/internal/router"
	"nudge/internal/scheduler"
)

// CommManager is the communication manager surface the controller owns.
type CommManager interface {
	router.Messenger
	scheduler.Sender
	InitializeChannels(enabled []string) error
	StartAll(ctx context.Context) error
	StopAll() error
	SetSchedulerManager(s comm.Scheduler)
	AvailableChannels() []string
	ChannelStatuses() map[string]comm.Status
}

// SchedulerManager is the scheduler surface the controller owns.
type SchedulerManager interface {
	router.Rescheduler
	RunDailyScheduler(ctx context.Context) error
	StopScheduler()
	ActiveJobs() int
}

// UserStore is the user data the controller and its managers read.
type UserStore interface {
	preflight.Users
	comm.Users
	scheduler.Users
	Count(ctx context.Context) (int, error)
}

// Cleaner prunes scratch files at boot.
type Cleaner interface {
	Cleanup() (cache.Report, error)
}

// Options configures a Controller. Config and Users are required.
type Options struct {
	Config *config.Config
	Users  UserStore
	// Host owns the main log file. When nil the watchdog self-check is
	// skipped and Logger is used as is.
	Host    *logging.Host
	Logger  *slog.Logger
	Library *content.Library
	// Console receives console channel output.
	Console io.Writer
	Cache   Cleaner

	// NewComm and NewScheduler replace the default manager constructors.
	NewComm      func(ctx context.Context) (CommManager, error)
	NewScheduler func(ctx context.Context, sender scheduler.Sender) (SchedulerManager, error)
	// Policy replaces the retry policy derived from configuration.
	Policy *bootstrap.Policy

	// PollInterval and WatchdogWait override the configured cadence.
	PollInterval time.Duration
	WatchdogWait time.Duration
	Now          func() time.Time
}

// Controller runs the daemon lifecycle: boot, poll loop, shutdown.
type Controller struct {
	cfg       *config.Config
	opts      Options
	users     UserStore
	host      *logging.Host
	watchdog  *logging.Watchdog
	cleaner   Cleaner
	policy    bootstrap.Policy
	poll      time.Duration
	inner     int
	heartbeat int
	now       func() time.Time
	logger    atomic.Pointer[slog.Logger]

	started atomic.Bool
	running atomic.Bool
	phase   atomic.Int32
	startup atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once

	stats loopStats

	// mu guards the manager handles and their stopped markers.
	mu           sync.Mutex
	comm         CommManager
	sched        SchedulerManager
	router       *router.Router
	watcher      *flagfile.Watcher
	lock         *flock.Flock
	commStopped  bool
	schedStopped bool
}

// New validates opts and builds an idle controller.
func New(opts Options) (*Controller, error) {
	if opts.Config == nil {
		return nil, errors.New("service requires configuration")
	}
	if opts.Users == nil {
		return nil, errors.New("service requires a user store")
	}
	cfg := opts.Config

	c := &Controller{
		cfg:       cfg,
		opts:      opts,
		users:     opts.Users,
		host:      opts.Host,
		cleaner:   opts.Cache,
		poll:      opts.PollInterval,
		inner:     cfg.Service.InnerIterations,
		heartbeat: cfg.Service.HeartbeatEvery,
		now:       opts.Now,
		stop:      make(chan struct{}),
		lock:      flock.New(cfg.LockPath()),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.poll <= 0 {
		c.poll = cfg.PollInterval()
	}
	if c.poll <= 0 {
		c.poll = 2 * time.Second
	}
	if c.inner <= 0 {
		c.inner = 30
	}
	if c.heartbeat <= 0 {
		c.heartbeat = 60
	}
	if opts.Policy != nil {
		c.policy = *opts.Policy
	} else {
		c.policy = bootstrap.Policy{Attempts: cfg.Service.ManagerRetries, Backoff: cfg.RetryBackoff()}
	}

	logger := opts.Logger
	if c.host != nil {
		logger = c.host.Logger()
		c.watchdog = logging.NewWatchdog(c.host, logging.WatchdogOptions{Wait: opts.WatchdogWait})
	}
	c.setLogger(logger)

	if c.cleaner == nil {
		c.cleaner = cache.NewManager(cfg, logger)
	}
	return c, nil
}

func (c *Controller) setLogger(logger *slog.Logger) {
	c.logger.Store(logging.NewComponentLogger(logger, "service"))
}

func (c *Controller) log() *slog.Logger {
	return c.logger.Load()
}

// State reports the current lifecycle phase.
func (c *Controller) State() State {
	return State(c.phase.Load())
}

// Running reports whether the poll loop should keep going.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// StartupTime returns when the poll loop was entered, or the zero time when
// the controller is not running.
func (c *Controller) StartupTime() time.Time {
	ns := c.startup.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Start runs the full lifecycle and returns once the controller has shut
// down. The returned error is nil on a graceful stop and otherwise wraps one
// of the package sentinel errors.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return wrap(ErrAlreadyRunning, "start", "controller already started", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.running.Store(true)
	c.phase.Store(int32(StateInitializing))
	defer c.shutdownWithFallback()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := c.boot(ctx); err != nil {
		if !c.running.Load() {
			c.log().Info("stop requested during boot",
				logging.String(logging.FieldEventType, "service_boot_aborted"),
				logging.Error(err),
			)
			return nil
		}
		logging.ErrorWithContext(c.log(), "service boot failed", "service_boot_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, bootHint(err)),
			logging.String(logging.FieldImpact, "daemon is not running"),
		)
		return err
	}
	if !c.running.Load() {
		c.log().Info("stop requested during boot", logging.String(logging.FieldEventType, "service_boot_aborted"))
		return nil
	}
	c.loop(ctx)
	return nil
}

// errBootAborted ends boot early once a stop has been requested.
var errBootAborted = errors.New("stop requested during boot")

func (c *Controller) stopRequested() error {
	if c.running.Load() {
		return nil
	}
	return errBootAborted
}

// boot runs every startup step before the poll loop. Managers constructed
// here are torn down by Shutdown even when a later step fails.
func (c *Controller) boot(ctx context.Context) error {
	logger := c.log()

	if err := c.cfg.Validate(); err != nil {
		return wrap(ErrConfiguration, "validate", "invalid configuration", err)
	}
	enabled, err := c.cfg.EnabledChannels()
	if err != nil {
		return wrap(ErrConfiguration, "channels", "no usable channels", err)
	}

	if c.watchdog != nil {
		result := c.watchdog.Check()
		c.setLogger(c.watchdog.Logger())
		logger = c.log()
		logger.Debug("logging self-check finished",
			logging.Bool("healthy", result.Healthy),
			logging.Bool("restart_attempted", result.RestartAttempted),
		)
	}

	if report, err := c.cleaner.Cleanup(); err != nil {
		logging.WarnWithContext(logger, "cache cleanup failed", "cache_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check cache_dir permissions"),
			logging.String(logging.FieldImpact, "stale cache files remain on disk"),
		)
	} else {
		logger.Debug("cache cleanup finished",
			logging.Int("temp_files", report.TempFiles),
			logging.Int("cache_entries", report.CacheEntries),
		)
	}

	paths, err := preflight.RequiredPaths(ctx, c.cfg, c.users)
	if err != nil {
		return wrap(ErrPathAccess, "preflight", "build required path list", err)
	}
	if err := preflight.VerifyAccess(paths); err != nil {
		return wrap(ErrPathAccess, "preflight", "verify access", err)
	}

	locked, err := c.lock.TryLock()
	if err != nil {
		return wrap(ErrInitialization, "lock", "acquire "+c.cfg.LockPath(), err)
	}
	if !locked {
		return wrap(ErrAlreadyRunning, "lock", "another nudge daemon holds "+c.cfg.LockPath(), nil)
	}

	commManager, err := bootstrap.Build(ctx, logger, "communication manager", c.policy, c.newComm)
	if err != nil {
		return wrap(ErrInitialization, "bootstrap", "communication manager", err)
	}
	c.mu.Lock()
	c.comm = commManager
	c.mu.Unlock()
	if err := c.stopRequested(); err != nil {
		return err
	}

	if err := commManager.InitializeChannels(enabled); err != nil {
		return wrap(ErrInitialization, "channels", "initialize "+strings.Join(enabled, ","), err)
	}

	sched, err := bootstrap.Build(ctx, logger, "scheduler manager", c.policy, func(ctx context.Context) (SchedulerManager, error) {
		return c.newScheduler(ctx, commManager)
	})
	if err != nil {
		return wrap(ErrInitialization, "bootstrap", "scheduler manager", err)
	}
	c.mu.Lock()
	c.sched = sched
	c.mu.Unlock()
	if err := c.stopRequested(); err != nil {
		return err
	}

	commManager.SetSchedulerManager(sched)
	if err := commManager.StartAll(ctx); err != nil {
		logging.WarnWithContext(logger, "some channels failed to start", "channels_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check channel configuration and connectivity"),
			logging.String(logging.FieldImpact, "messages routed to failed channels will not be delivered"),
		)
	}
	if err := sched.RunDailyScheduler(ctx); err != nil {
		logging.WarnWithContext(logger, "daily scheduler failed to start", "scheduler_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the user database"),
			logging.String(logging.FieldImpact, "scheduled messages will not be sent until restart"),
		)
	}

	rt := router.New(c.cfg.Paths.BaseDir, commManager, sched, logger,
		router.WithDispatchTimeout(c.cfg.DispatchTimeout()))
	var watcher *flagfile.Watcher
	if c.cfg.Service.WatchFlags {
		watcher, err = flagfile.NewWatcher(c.cfg.Paths.BaseDir, logger)
		if err != nil {
			logging.WarnWithContext(logger, "flag directory watch unavailable", "flag_watch_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check inotify limits"),
				logging.String(logging.FieldImpact, "requests are picked up on the poll interval only"),
			)
			watcher = nil
		}
	}
	c.mu.Lock()
	c.router = rt
	c.watcher = watcher
	c.mu.Unlock()

	logger.Info("service booted",
		logging.String(logging.FieldEventType, "service_booted"),
		logging.String("channels", strings.Join(commManager.AvailableChannels(), ",")),
		logging.Int("active_jobs", sched.ActiveJobs()),
		logging.String("base_dir", c.cfg.Paths.BaseDir),
	)
	return nil
}

func (c *Controller) newComm(ctx context.Context) (CommManager, error) {
	if c.opts.NewComm != nil {
		return c.opts.NewComm(ctx)
	}
	manager, err := comm.NewManager(comm.Options{
		Config:  c.cfg,
		Users:   c.users,
		Library: c.opts.Library,
		Logger:  c.log(),
		Console: c.opts.Console,
	})
	if err != nil {
		return nil, err
	}
	return manager, nil
}

func (c *Controller) newScheduler(ctx context.Context, sender scheduler.Sender) (SchedulerManager, error) {
	if c.opts.NewScheduler != nil {
		return c.opts.NewScheduler(ctx, sender)
	}
	manager, err := scheduler.NewManager(scheduler.Options{
		Config: c.cfg,
		Users:  c.users,
		Sender: sender,
		Logger: c.log(),
	})
	if err != nil {
		return nil, err
	}
	return manager, nil
}

func bootHint(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "run `nudge config validate` and fix the reported field"
	case errors.Is(err, ErrPathAccess):
		return "create the listed directories or fix their permissions"
	case errors.Is(err, ErrAlreadyRunning):
		return "stop the other daemon with `nudge stop` first"
	default:
		return "check channel settings and the user database"
	}
}
