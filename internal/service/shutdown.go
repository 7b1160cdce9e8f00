package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"nudge/internal/flagfile"
	"nudge/internal/logging"
)

// requestStop flips the running flag and wakes the poll loop.
func (c *Controller) requestStop() {
	c.running.Store(false)
	c.stopOnce.Do(func() { close(c.stop) })
}

// SignalHandler stops the poll loop and shuts down. It is safe to call from
// the signal goroutine while the loop is still running.
func (c *Controller) SignalHandler(sig os.Signal) {
	name := "unknown"
	if sig != nil {
		name = sig.String()
	}
	c.log().Info("signal received, shutting down",
		logging.String(logging.FieldEventType, "signal_received"),
		logging.String("signal", name),
	)
	c.requestStop()
	c.Shutdown()
}

var (
	restoreDefaultSignals = func() { signal.Reset(syscall.SIGINT, syscall.SIGTERM) }
	forceExit             = func() { os.Exit(1) }
)

// HandleSignals routes SIGINT and SIGTERM to SignalHandler until ctx ends or
// the returned release function is called.
func (c *Controller) HandleSignals(ctx context.Context) (release func()) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	var once sync.Once
	release = func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
		})
	}
	go c.watchSignals(ctx, sigs, done)
	return release
}

// watchSignals starts shutdown on the first signal and restores default
// handling, so a further signal terminates the process even if shutdown
// hangs. A second signal already queued on sigs exits directly.
func (c *Controller) watchSignals(ctx context.Context, sigs <-chan os.Signal, done <-chan struct{}) {
	handled := false
	for {
		select {
		case sig := <-sigs:
			if handled {
				c.log().Warn("second signal received, exiting without waiting for shutdown",
					logging.String(logging.FieldEventType, "signal_forced_exit"),
					logging.String("signal", sig.String()),
				)
				forceExit()
				return
			}
			handled = true
			restoreDefaultSignals()
			go c.SignalHandler(sig)
		case <-ctx.Done():
			return
		case <-done:
			return
		}
	}
}

// EmergencyShutdown is deferred by main as the last line of defense. It does
// nothing when the controller is not running and never panics.
func (c *Controller) EmergencyShutdown() {
	if c == nil || !c.running.Load() {
		return
	}
	c.shutdownWithFallback()
}

func (c *Controller) shutdownWithFallback() {
	defer func() {
		if r := recover(); r != nil {
			c.logPanic("shutdown panicked, stopping managers directly", r)
			c.stopManagersDirectly()
		}
	}()
	c.Shutdown()
}

// stopManagersDirectly calls each stop method in isolation, ignoring markers.
func (c *Controller) stopManagersDirectly() {
	c.mu.Lock()
	commManager, sched, watcher := c.comm, c.sched, c.watcher
	c.commStopped, c.schedStopped = true, true
	c.mu.Unlock()

	if commManager != nil {
		c.guard("communication manager stop", func() { _ = commManager.StopAll() })
	}
	if sched != nil {
		c.guard("scheduler stop", sched.StopScheduler)
	}
	c.guard("flag watcher close", func() { _ = watcher.Close() })
	c.guard("lock release", func() { _ = c.lock.Unlock() })
	c.running.Store(false)
	c.startup.Store(0)
	c.phase.Store(int32(StateStopped))
}

func (c *Controller) guard(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logPanic(step+" panicked", r)
		}
	}()
	fn()
}

func (c *Controller) logPanic(msg string, r any) {
	defer func() { _ = recover() }()
	logging.ErrorWithContext(c.log(), msg, "shutdown_panic",
		logging.String("panic", fmt.Sprint(r)),
		logging.String(logging.FieldErrorHint, "inspect the stack of the failing manager"),
	)
}

// Shutdown stops the managers, removes the shutdown sentinel, releases the
// instance lock and closes the log file. Each manager is stopped at most
// once; calling Shutdown again is harmless.
func (c *Controller) Shutdown() {
	c.requestStop()

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := State(c.phase.Swap(int32(StateShuttingDown)))
	logger := c.log()
	if prev != StateStopped {
		logger.Info("service shutting down", logging.String(logging.FieldEventType, "service_shutdown_started"))
	}

	if c.comm != nil && !c.commStopped {
		c.commStopped = true
		if err := c.comm.StopAll(); err != nil {
			logging.WarnWithContext(logger, "communication manager stop failed", "comm_stop_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "a channel did not close cleanly"),
				logging.String(logging.FieldImpact, "none; process is exiting"),
			)
		}
	}
	if c.sched != nil && !c.schedStopped {
		c.schedStopped = true
		c.sched.StopScheduler()
	}

	if _, err := flagfile.Remove(flagfile.ShutdownPath(c.cfg.Paths.BaseDir)); err != nil {
		logging.WarnWithContext(logger, "failed to remove shutdown sentinel", "shutdown_sentinel_remove_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete shutdown_request.flag manually"),
			logging.String(logging.FieldImpact, "the next start ignores it as stale"),
		)
	}

	if err := c.watcher.Close(); err != nil {
		logger.Debug("flag watcher close failed", logging.Error(err))
	}
	if err := c.lock.Unlock(); err != nil {
		logging.WarnWithContext(logger, "failed to release instance lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+c.cfg.LockPath()+" if no daemon is running"),
		)
	}

	c.startup.Store(0)
	if prev != StateStopped {
		logger.Info("service stopped", logging.String(logging.FieldEventType, "service_stopped"))
	}
	if c.host != nil {
		if err := c.host.Flush(); err != nil {
			logger.Debug("log flush failed", logging.Error(err))
		}
		_ = c.host.Close()
	}
	c.phase.Store(int32(StateStopped))
}
