package service

import (
	"context"
	"sync/atomic"
	"time"

	"nudge/internal/flagfile"
	"nudge/internal/logging"
	"nudge/internal/router"
)

type loopStats struct {
	iterations atomic.Int64
	scans      atomic.Int64
	processed  atomic.Int64
	heartbeats atomic.Int64
}

// LoopStats is a snapshot of poll loop counters.
type LoopStats struct {
	Iterations int64
	Scans      int64
	Processed  int64
	Heartbeats int64
}

// Stats returns the poll loop counters. Scans counts iterations whose probe
// found at least one flag file.
func (c *Controller) Stats() LoopStats {
	return LoopStats{
		Iterations: c.stats.iterations.Load(),
		Scans:      c.stats.scans.Load(),
		Processed:  c.stats.processed.Load(),
		Heartbeats: c.stats.heartbeats.Load(),
	}
}

// loop runs inner passes of sentinel check, probe, route and sleep until the
// running flag drops. Every heartbeatEvery passes it logs status.
func (c *Controller) loop(ctx context.Context) {
	c.startup.Store(c.now().UnixNano())
	c.phase.CompareAndSwap(int32(StateInitializing), int32(StateRunning))
	c.stats.heartbeats.Store(0)
	c.log().Info("poll loop started",
		logging.String(logging.FieldEventType, "poll_loop_started"),
		logging.Duration("poll_interval", c.poll),
		logging.Int("inner_iterations", c.inner),
	)
	defer c.sweep()

	for c.active(ctx) {
		for i := 0; i < c.inner && c.active(ctx); i++ {
			if c.checkShutdownSentinel() {
				break
			}
			c.iterate(ctx)
			c.sleep(ctx)
		}
		if !c.active(ctx) {
			break
		}
		if n := c.stats.heartbeats.Add(1); n%int64(c.heartbeat) == 0 {
			c.emitHeartbeat(ctx)
		}
	}
}

func (c *Controller) active(ctx context.Context) bool {
	if ctx.Err() != nil {
		c.requestStop()
		return false
	}
	return c.running.Load()
}

// iterate probes the base directory and routes every request kind only when
// a flag file is present.
func (c *Controller) iterate(ctx context.Context) {
	c.stats.iterations.Add(1)
	found, err := flagfile.Probe(c.cfg.Paths.BaseDir)
	if err != nil {
		c.log().Debug("flag probe failed", logging.Error(err))
		return
	}
	if !found {
		return
	}
	c.stats.scans.Add(1)
	startup := c.StartupTime()
	results := c.router.ProcessAll(ctx, startup)
	c.stats.processed.Add(int64(len(results)))
	if len(results) > 0 {
		summary := router.Summarize(results)
		c.log().Debug("flag requests processed",
			logging.Int("requests", len(results)),
			logging.Int("dispatched", summary[router.OutcomeDispatched]),
		)
	}
}

func (c *Controller) sleep(ctx context.Context) {
	timer := time.NewTimer(c.poll)
	defer timer.Stop()

	c.mu.Lock()
	watcher := c.watcher
	c.mu.Unlock()

	select {
	case <-timer.C:
	case <-c.stop:
	case <-ctx.Done():
	case <-watcher.Wake():
	}
}

// checkShutdownSentinel reports whether a fresh shutdown request was found.
// A sentinel older than StartupTime is a leftover and is deleted.
func (c *Controller) checkShutdownSentinel() bool {
	logger := c.log()
	sentinel, ok, err := flagfile.ReadShutdown(c.cfg.Paths.BaseDir)
	if err != nil {
		logger.Debug("shutdown sentinel read failed", logging.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if sentinel.ModTime.Before(c.StartupTime()) {
		if _, err := flagfile.Remove(sentinel.Path); err != nil {
			logging.WarnWithContext(logger, "failed to remove stale shutdown sentinel", "shutdown_sentinel_remove_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "another process may have removed it"),
			)
		}
		logger.Info("stale shutdown sentinel ignored",
			logging.String(logging.FieldEventType, "shutdown_sentinel_stale"),
			logging.Time("modified", sentinel.ModTime),
			logging.String("content", sentinel.Content),
		)
		return false
	}
	logger.Info("shutdown requested via sentinel",
		logging.String(logging.FieldEventType, "shutdown_sentinel"),
		logging.String("content", sentinel.Content),
	)
	c.requestStop()
	return true
}

// sweep removes leftover requests that must not outlive this run.
func (c *Controller) sweep() {
	if c.router == nil {
		return
	}
	for _, kind := range []flagfile.Kind{flagfile.KindTestMessage, flagfile.KindReschedule} {
		removed, err := c.router.Cleanup(kind)
		if err != nil {
			logging.WarnWithContext(c.log(), "request cleanup failed", "request_cleanup_failed",
				logging.String(logging.FieldRequestKind, kind.String()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check base_dir permissions"),
			)
			continue
		}
		if removed > 0 {
			c.log().Info("leftover requests removed",
				logging.String(logging.FieldEventType, "request_cleanup"),
				logging.String(logging.FieldRequestKind, kind.String()),
				logging.Int("removed", removed),
			)
		}
	}
}
