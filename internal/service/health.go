package service

import (
	"context"
	"sort"

	"golang.org/x/sys/unix"

	"nudge/internal/logging"
)

// Status is the aggregate heartbeat snapshot.
type Status struct {
	State      State
	Uptime     int64 // seconds
	ActiveJobs int
	Users      int
	Channels   int
	// MaxRSSKB is the peak resident set size; -1 when unavailable.
	MaxRSSKB int64
}

// Status collects the heartbeat snapshot. Metric failures leave the
// corresponding field at its zero or -1 value.
func (c *Controller) Status(ctx context.Context) Status {
	status := Status{State: c.State(), MaxRSSKB: -1}
	if started := c.StartupTime(); !started.IsZero() {
		status.Uptime = int64(c.now().Sub(started).Seconds())
	}

	c.mu.Lock()
	commManager, sched := c.comm, c.sched
	c.mu.Unlock()

	if sched != nil {
		status.ActiveJobs = sched.ActiveJobs()
	}
	if commManager != nil {
		status.Channels = len(commManager.AvailableChannels())
	}
	if count, err := c.users.Count(ctx); err == nil {
		status.Users = count
	} else {
		c.log().Debug("user count unavailable", logging.Error(err))
	}
	if rss, err := maxRSS(); err == nil {
		status.MaxRSSKB = rss
	} else {
		c.log().Debug("memory metric unavailable", logging.Error(err))
	}
	return status
}

func (c *Controller) emitHeartbeat(ctx context.Context) {
	status := c.Status(ctx)
	c.log().Info("heartbeat",
		logging.String(logging.FieldEventType, "heartbeat"),
		logging.Int64("heartbeat", c.stats.heartbeats.Load()),
		logging.Int64("uptime_seconds", status.Uptime),
		logging.Int("active_jobs", status.ActiveJobs),
		logging.Int("users", status.Users),
		logging.Int("channels", status.Channels),
		logging.Int64("max_rss_kb", status.MaxRSSKB),
	)
	c.CheckChannelHealth()
}

// CheckChannelHealth logs a warning for every channel that is not connected
// and returns their names in sorted order.
func (c *Controller) CheckChannelHealth() []string {
	c.mu.Lock()
	commManager := c.comm
	c.mu.Unlock()
	if commManager == nil {
		return nil
	}

	statuses := commManager.ChannelStatuses()
	var unhealthy []string
	for name, status := range statuses {
		if status.Connected() {
			continue
		}
		unhealthy = append(unhealthy, name)
	}
	sort.Strings(unhealthy)
	for _, name := range unhealthy {
		logging.WarnWithContext(c.log(), "channel not connected", "channel_unhealthy",
			logging.Channel(name),
			logging.String("status", string(statuses[name])),
			logging.String(logging.FieldErrorHint, "check the channel endpoint and credentials"),
			logging.String(logging.FieldImpact, "messages for this channel are not delivered"),
		)
	}
	return unhealthy
}

// maxRSS returns the process's peak resident set size in kilobytes.
func maxRSS() (int64, error) {
	var usage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &usage); err != nil {
		return 0, err
	}
	return usage.Maxrss, nil
}
