package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nudge/internal/config"
	"nudge/internal/userdata"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Path is a directory that must exist and be read/write accessible.
type Path struct {
	Name string
	Path string
}

// Users is the slice of the user store needed to enumerate user directories.
type Users interface {
	List(ctx context.Context) ([]userdata.User, error)
	DataDir(userID string) string
}

// RequiredPaths lists the configured directories plus each user's data
// directory. users may be nil.
func RequiredPaths(ctx context.Context, cfg *config.Config, users Users) ([]Path, error) {
	if cfg == nil {
		return nil, errors.New("preflight requires configuration")
	}
	paths := []Path{
		{Name: "Base directory", Path: cfg.Paths.BaseDir},
		{Name: "Data directory", Path: cfg.Paths.DataDir},
		{Name: "Log directory", Path: cfg.Paths.LogDir},
		{Name: "Cache directory", Path: cfg.Paths.CacheDir},
	}
	if users == nil {
		return paths, nil
	}
	list, err := users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, user := range list {
		paths = append(paths, Path{Name: "User " + user.ID, Path: users.DataDir(user.ID)})
	}
	return paths, nil
}

// VerifyAccess checks every path and returns an error naming each failure.
func VerifyAccess(paths []Path) error {
	var failures []string
	for _, p := range paths {
		if res := CheckDirectoryAccess(p.Name, p.Path); !res.Passed {
			failures = append(failures, p.Name+": "+res.Detail)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("inaccessible paths: %s", strings.Join(failures, "; "))
	}
	return nil
}

// RunAll executes every applicable check for the given config. Channel
// checks only run for enabled channels.
func RunAll(ctx context.Context, cfg *config.Config, users Users) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result
	paths, err := RequiredPaths(ctx, cfg, users)
	if err != nil {
		results = append(results, Result{Name: "User store", Detail: err.Error()})
		paths, _ = RequiredPaths(ctx, cfg, nil)
	}
	for _, p := range paths {
		results = append(results, CheckDirectoryAccess(p.Name, p.Path))
	}

	enabled, _ := cfg.EnabledChannels()
	for _, name := range enabled {
		switch name {
		case config.ChannelNtfy:
			results = append(results, CheckNtfy(ctx, cfg.Channels.Ntfy.Server))
		case config.ChannelWebhook:
			results = append(results, CheckURLConfigured("Webhook", cfg.Channels.Webhook.URL))
		}
	}
	return results
}
