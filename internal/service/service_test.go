package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"nudge/internal/bootstrap"
	"nudge/internal/comm"
	"nudge/internal/config"
	"nudge/internal/flagfile"
	"nudge/internal/logging"
	"nudge/internal/scheduler"
	"nudge/internal/service"
	"nudge/internal/testsupport"
	"nudge/internal/userdata"
)

type harness struct {
	cfg   *config.Config
	store *userdata.Store
	opts  service.Options
	logs  *syncBuffer
}

func newHarness(t *testing.T, cfgOpts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, cfgOpts...)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewUser(t, store, "user1", "motivational")

	logs := &syncBuffer{}
	logger, err := logging.NewWithWriter(logs, logging.Options{Format: "console", Level: "debug"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	noSleep := bootstrap.Policy{Attempts: 3, Sleep: func(context.Context, time.Duration) error { return nil }}
	return &harness{
		cfg:   cfg,
		store: store,
		logs:  logs,
		opts: service.Options{
			Config:       cfg,
			Users:        store,
			Logger:       logger,
			Console:      &syncBuffer{},
			Policy:       &noSleep,
			PollInterval: 5 * time.Millisecond,
			WatchdogWait: time.Millisecond,
		},
	}
}

func (h *harness) controller(t *testing.T) *service.Controller {
	t.Helper()
	c, err := service.New(h.opts)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	return c
}

// start runs c in the background and returns a channel carrying Start's result.
func start(t *testing.T, ctx context.Context, c *service.Controller) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	t.Cleanup(func() {
		c.Shutdown()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
	return done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop")
		return nil
	}
}

func writeFreshSentinel(t *testing.T, dir string) string {
	t.Helper()
	path, err := flagfile.WriteShutdown(dir, flagfile.ShutdownByHeadless, time.Now())
	if err != nil {
		t.Fatalf("WriteShutdown: %v", err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBootWithTwoChannelsEntersLoopWithoutScanning(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHarness(t,
		testsupport.WithChannels(config.ChannelConsole, config.ChannelWebhook),
		testsupport.WithWebhookURL(srv.URL),
	)
	h.cfg.Service.InnerIterations = 1000
	c := h.controller(t)
	if c.State() != service.StateStopped {
		t.Fatalf("expected stopped before start, got %s", c.State())
	}

	done := start(t, context.Background(), c)
	waitFor(t, "first iteration", func() bool { return c.Stats().Iterations >= 1 })

	if c.State() != service.StateRunning {
		t.Fatalf("expected running, got %s", c.State())
	}
	if c.StartupTime().IsZero() {
		t.Fatal("expected startup time recorded")
	}
	stats := c.Stats()
	if stats.Scans != 0 || stats.Processed != 0 {
		t.Fatalf("expected probe to short-circuit the scan, got %+v", stats)
	}
	if stats.Heartbeats != 0 {
		t.Fatalf("expected heartbeat counter to begin at 0, got %d", stats.Heartbeats)
	}
	status := c.Status(context.Background())
	if status.Channels != 2 || status.Users != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if unhealthy := c.CheckChannelHealth(); len(unhealthy) != 0 {
		t.Fatalf("expected both channels connected, got %v", unhealthy)
	}

	sentinel := writeFreshSentinel(t, h.cfg.Paths.BaseDir)
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Start returned %v", err)
	}
	if c.State() != service.StateStopped || !c.StartupTime().IsZero() {
		t.Fatalf("expected stopped with cleared startup time, got %s %v", c.State(), c.StartupTime())
	}
	if testsupport.Exists(t, sentinel) {
		t.Fatal("expected shutdown sentinel removed")
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no webhook deliveries, got %d", hits.Load())
	}
}

func TestStaleShutdownSentinelIsDeletedAndIgnored(t *testing.T) {
	h := newHarness(t)
	withFakes(&h.opts)
	path, err := flagfile.WriteShutdown(h.cfg.Paths.BaseDir, flagfile.ShutdownByUI, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	testsupport.Backdate(t, path, time.Hour)

	c := h.controller(t)
	done := start(t, context.Background(), c)
	waitFor(t, "stale sentinel removal", func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	})
	waitFor(t, "more iterations", func() bool { return c.Stats().Iterations >= 3 })
	if !c.Running() {
		t.Fatal("stale sentinel must not stop the controller")
	}

	c.SignalHandler(syscall.SIGTERM)
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Start returned %v", err)
	}
	if c.Running() {
		t.Fatal("expected running=false after signal")
	}
}

func TestFreshSentinelStopsBeforeDispatchAndSweepsLeftovers(t *testing.T) {
	h := newHarness(t)
	fc, fs := withFakes(&h.opts)
	dir := h.cfg.Paths.BaseDir

	testMsg := testsupport.WriteFlag(t, dir, flagfile.KindTestMessage, "user1_motivational",
		map[string]any{"user_id": "user1", "category": "motivational"})
	resched := testsupport.WriteFlag(t, dir, flagfile.KindReschedule, "user1",
		map[string]any{"user_id": "user1", "category": "motivational", "timestamp": time.Now().Add(time.Hour).Unix()})
	reminder := testsupport.WriteFlag(t, dir, flagfile.KindTaskReminder, "user1",
		map[string]any{"user_id": "user1", "task_id": "1"})
	writeFreshSentinel(t, dir)

	c := h.controller(t)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if sent := fc.sentMessages(); len(sent) != 0 {
		t.Fatalf("expected no dispatch after shutdown request, got %v", sent)
	}
	if got := fs.reschedules(); len(got) != 0 {
		t.Fatalf("expected no reschedule, got %v", got)
	}
	for _, path := range []string{testMsg, resched} {
		if testsupport.Exists(t, path) {
			t.Fatalf("expected %s swept at loop exit", filepath.Base(path))
		}
	}
	if !testsupport.Exists(t, reminder) {
		t.Fatal("task reminders are not part of the exit sweep")
	}
}

func TestLoopDispatchesRequestsOnce(t *testing.T) {
	h := newHarness(t, testsupport.WithWatchFlags(true))
	fc, fs := withFakes(&h.opts)
	dir := h.cfg.Paths.BaseDir

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := h.controller(t)
	done := start(t, ctx, c)
	waitFor(t, "loop start", func() bool { return c.State() == service.StateRunning })

	// Producers write atomically while the loop is live.
	request, _, err := flagfile.WriteRequest(dir, flagfile.KindTestMessage, "user1_motivational",
		flagfile.Payload{"user_id": "user1", "category": "motivational"})
	if err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	stale, _, err := flagfile.WriteRequest(dir, flagfile.KindReschedule, "user1",
		flagfile.Payload{"user_id": "user1", "category": "motivational", "timestamp": 1})
	if err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	waitFor(t, "request consumed", func() bool {
		return !testsupport.Exists(t, request) && !testsupport.Exists(t, stale)
	})
	if sent := fc.sentMessages(); len(sent) != 1 || sent[0] != "user1/motivational" {
		t.Fatalf("expected exactly one dispatch, got %v", sent)
	}
	if got := fs.reschedules(); len(got) != 0 {
		t.Fatalf("stale reschedule must not dispatch, got %v", got)
	}
	resp, err := flagfile.ReadResponse(filepath.Join(dir, flagfile.ResponseName(flagfile.KindTestMessage, "user1_motivational")))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Response != "hello user1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if c.Stats().Scans == 0 {
		t.Fatal("expected at least one scan")
	}

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Start returned %v", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	h := newHarness(t)
	fc, fs := withFakes(&h.opts)
	fc.stopErr = errBoom

	c := h.controller(t)
	done := start(t, context.Background(), c)
	waitFor(t, "loop start", func() bool { return c.State() == service.StateRunning })

	c.Shutdown()
	c.Shutdown()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Start returned %v", err)
	}
	c.Shutdown()
	c.EmergencyShutdown()

	if fc.stops() != 1 || fs.stops() != 1 {
		t.Fatalf("expected each manager stopped once, got comm=%d scheduler=%d", fc.stops(), fs.stops())
	}
	if c.State() != service.StateStopped {
		t.Fatalf("expected stopped, got %s", c.State())
	}
	if !strings.Contains(h.logs.String(), "communication manager stop failed") {
		t.Fatal("expected stop failure to be logged")
	}

	lock := flock.New(h.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("expected instance lock released, locked=%v err=%v", locked, err)
	}
	_ = lock.Unlock()
}

func TestEmergencyShutdownFallsBackWhenShutdownPanics(t *testing.T) {
	h := newHarness(t)
	fc, fs := withFakes(&h.opts)
	fc.stopPanic = true

	c := h.controller(t)
	done := start(t, context.Background(), c)
	waitFor(t, "loop start", func() bool { return c.State() == service.StateRunning })

	c.EmergencyShutdown()

	if fc.stops() != 2 {
		t.Fatalf("expected shutdown plus direct stop attempts on comm, got %d", fc.stops())
	}
	if fs.stops() != 1 {
		t.Fatalf("expected scheduler stopped directly once, got %d", fs.stops())
	}
	if c.Running() {
		t.Fatal("expected running=false")
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Start returned %v", err)
	}
	if !strings.Contains(h.logs.String(), "shutdown panicked") {
		t.Fatal("expected the panic to be logged")
	}
}

func TestEmergencyShutdownNoopWhenNotRunning(t *testing.T) {
	h := newHarness(t)
	fc, fs := withFakes(&h.opts)
	c := h.controller(t)

	c.EmergencyShutdown()
	if c.State() != service.StateStopped || fc.stops() != 0 || fs.stops() != 0 {
		t.Fatalf("expected no-op, got state=%s comm=%d sched=%d", c.State(), fc.stops(), fs.stops())
	}
}

func TestStartRejectsInvalidConfiguration(t *testing.T) {
	h := newHarness(t)
	h.cfg.Channels.Enabled = []string{"carrier_pigeon"}
	var built atomic.Bool
	h.opts.NewComm = func(context.Context) (service.CommManager, error) {
		built.Store(true)
		return newFakeComm(), nil
	}

	err := h.controller(t).Start(context.Background())
	if !errors.Is(err, service.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if built.Load() {
		t.Fatal("managers must not be built with invalid configuration")
	}
}

func TestStartRejectsInaccessibleUserDirectory(t *testing.T) {
	h := newHarness(t)
	withFakes(&h.opts)
	if err := os.RemoveAll(h.store.DataDir("user1")); err != nil {
		t.Fatal(err)
	}

	c := h.controller(t)
	err := c.Start(context.Background())
	if !errors.Is(err, service.ErrPathAccess) {
		t.Fatalf("expected ErrPathAccess, got %v", err)
	}
	if !strings.Contains(err.Error(), "User user1") {
		t.Fatalf("expected user directory named in %v", err)
	}
	if c.State() != service.StateStopped {
		t.Fatalf("expected stopped after fatal boot error, got %s", c.State())
	}
}

func TestStartRetriesManagerConstruction(t *testing.T) {
	h := newHarness(t)
	fc, _ := withFakes(&h.opts)
	var attempts atomic.Int64
	h.opts.NewComm = func(context.Context) (service.CommManager, error) {
		if attempts.Add(1) < 3 {
			return nil, errBoom
		}
		return fc, nil
	}
	writeFreshSentinel(t, h.cfg.Paths.BaseDir)

	if err := h.controller(t).Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
	if fc.stops() != 1 {
		t.Fatalf("expected comm manager stopped at shutdown, got %d", fc.stops())
	}
}

func TestSignalDuringManagerRetryAbortsBoot(t *testing.T) {
	h := newHarness(t)
	fc, fs := withFakes(&h.opts)
	var attempts atomic.Int64
	h.opts.NewComm = func(context.Context) (service.CommManager, error) {
		attempts.Add(1)
		return nil, errBoom
	}
	var schedulerBuilt atomic.Bool
	h.opts.NewScheduler = func(context.Context, scheduler.Sender) (service.SchedulerManager, error) {
		schedulerBuilt.Store(true)
		return fs, nil
	}
	backingOff := make(chan struct{})
	var entered atomic.Bool
	h.opts.Policy = &bootstrap.Policy{Attempts: 3, Backoff: time.Hour, Sleep: func(ctx context.Context, _ time.Duration) error {
		if entered.CompareAndSwap(false, true) {
			close(backingOff)
		}
		<-ctx.Done()
		return ctx.Err()
	}}
	c := h.controller(t)
	done := start(t, context.Background(), c)

	select {
	case <-backingOff:
	case <-time.After(5 * time.Second):
		t.Fatal("boot never reached the retry backoff")
	}
	c.SignalHandler(syscall.SIGTERM)

	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Fatalf("expected boot to stop after the first attempt, got %d", attempts.Load())
	}
	if schedulerBuilt.Load() || len(fc.AvailableChannels()) != 0 {
		t.Fatal("boot continued past the interrupted retry")
	}
	if c.State() != service.StateStopped {
		t.Fatalf("expected stopped, got %s", c.State())
	}
}

func TestStartFailsWhenSchedulerCannotBeBuilt(t *testing.T) {
	h := newHarness(t)
	fc, _ := withFakes(&h.opts)
	h.opts.NewScheduler = func(context.Context, scheduler.Sender) (service.SchedulerManager, error) {
		return nil, errBoom
	}

	err := h.controller(t).Start(context.Background())
	if !errors.Is(err, service.ErrInitialization) || !errors.Is(err, bootstrap.ErrExhausted) || !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped initialization error, got %v", err)
	}
	if fc.stops() != 1 {
		t.Fatalf("expected already-built comm manager stopped, got %d", fc.stops())
	}
}

func TestStartRefusesSecondInstance(t *testing.T) {
	h := newHarness(t)
	fc, _ := withFakes(&h.opts)

	other := flock.New(h.cfg.LockPath())
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: locked=%v err=%v", locked, err)
	}
	defer other.Unlock()

	err = h.controller(t).Start(context.Background())
	if !errors.Is(err, service.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if fc.stops() != 0 {
		t.Fatal("managers must not be built without the lock")
	}
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(t)
	withFakes(&h.opts)
	writeFreshSentinel(t, h.cfg.Paths.BaseDir)

	c := h.controller(t)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, service.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestHeartbeatWarnsForDisconnectedChannels(t *testing.T) {
	h := newHarness(t)
	fc, _ := withFakes(&h.opts)
	fc.statuses["ntfy"] = comm.StatusError

	c := h.controller(t)
	done := start(t, context.Background(), c)
	waitFor(t, "heartbeat", func() bool { return c.Stats().Heartbeats >= 1 })

	if got := c.CheckChannelHealth(); len(got) != 1 || got[0] != "ntfy" {
		t.Fatalf("expected ntfy unhealthy, got %v", got)
	}
	status := c.Status(context.Background())
	if status.ActiveJobs != 3 || status.Users != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	c.SignalHandler(syscall.SIGINT)
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Start returned %v", err)
	}
	logs := h.logs.String()
	for _, want := range []string{"heartbeat", "channel not connected", "channel=ntfy"} {
		if !strings.Contains(logs, want) {
			t.Fatalf("expected %q in logs", want)
		}
	}
}

func TestBootRestartsLoggingWhenLogFileVanished(t *testing.T) {
	h := newHarness(t)
	withFakes(&h.opts)
	host, err := logging.NewHost(logging.HostOptions{Path: h.cfg.LogPath(), Format: "console", Level: "info"})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	h.opts.Host = host
	if err := os.Remove(host.Path()); err != nil {
		t.Fatal(err)
	}
	writeFreshSentinel(t, h.cfg.Paths.BaseDir)

	if err := h.controller(t).Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if host.Restarts() != 1 {
		t.Fatalf("expected exactly one logging restart, got %d", host.Restarts())
	}
	data, err := os.ReadFile(host.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "service stopped") {
		t.Fatalf("expected shutdown logged to recreated file, got %q", data)
	}
}
