package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"nudge/internal/config"
	"nudge/internal/daemonrun"
	"nudge/internal/userdata"
)

// commandContext loads configuration at most once per invocation and hands
// it to subcommands.
type commandContext struct {
	configFlag *string

	once   sync.Once
	config *config.Config
	err    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		if err != nil {
			c.err = err
			return
		}
		c.config = cfg
	})
	return c.config, c.err
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// withStore opens the user store for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *userdata.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := userdata.Open(cfg)
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// daemonState reports whether a daemon holds the instance lock and, if so,
// the pid it recorded. A pid of 0 means the pid file was unreadable.
func daemonState(cfg *config.Config) (bool, int, error) {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return false, 0, fmt.Errorf("probe instance lock: %w", err)
	}
	if locked {
		_ = lock.Unlock()
		return false, 0, nil
	}
	pid, err := daemonrun.ReadPID(cfg)
	if err != nil {
		return true, 0, nil
	}
	return true, pid, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
