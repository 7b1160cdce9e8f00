package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nudge/internal/cache"
	"nudge/internal/config"
	"nudge/internal/flagfile"
	"nudge/internal/logging"
	"nudge/internal/preflight"
	"nudge/internal/userdata"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, flag directory, and configuration health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *userdata.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				var lines []string

				lines = append(lines, renderSectionHeader("Daemon", colorize)...)
				lines = append(lines, daemonLines(cfg, colorize)...)

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Checks", colorize)...)
				lines = append(lines, checkLines(preflight.RunAll(cmd.Context(), cfg, store), colorize)...)

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Flags", colorize)...)
				flagLines, err := pendingFlagLines(cfg.Paths.BaseDir, time.Now(), colorize)
				if err != nil {
					return err
				}
				lines = append(lines, flagLines...)

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Data", colorize)...)
				if count, err := store.Count(cmd.Context()); err != nil {
					lines = append(lines, renderStatusLine("Users", statusError, err.Error(), colorize))
				} else {
					lines = append(lines, renderStatusLine("Users", statusInfo, fmt.Sprintf("%d registered", count), colorize))
				}
				lines = append(lines, cacheLine(cfg, colorize))

				return writeLines(out, lines)
			})
		},
	}
}

func daemonLines(cfg *config.Config, colorize bool) []string {
	running, pid, err := daemonState(cfg)
	switch {
	case err != nil:
		return []string{renderStatusLine("Daemon", statusError, err.Error(), colorize)}
	case !running:
		return []string{renderStatusLine("Daemon", statusWarn, "Not running", colorize)}
	case pid > 0:
		return []string{renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", pid), colorize)}
	default:
		return []string{renderStatusLine("Daemon", statusOK, "Running", colorize)}
	}
}

func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, result := range results {
		lines = append(lines, renderStatusLine(result.Name, passFail(result.Passed), result.Detail, colorize))
	}
	return lines
}

// pendingFlagLines summarizes waiting requests per kind plus the shutdown
// sentinel and any responses nobody collected.
func pendingFlagLines(dir string, now time.Time, colorize bool) ([]string, error) {
	entries, err := flagfile.ListAll(dir)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	requests := make(map[flagfile.Kind]int)
	responses, unknown := 0, 0
	var shutdown *flagfile.Entry
	for i, entry := range entries {
		switch entry.Role {
		case flagfile.RoleRequest:
			requests[entry.Kind]++
		case flagfile.RoleResponse:
			responses++
		case flagfile.RoleShutdown:
			shutdown = &entries[i]
		default:
			unknown++
		}
	}

	var lines []string
	for _, kind := range flagfile.Kinds() {
		count := requests[kind]
		kindStatus := statusOK
		msg := "none pending"
		if count > 0 {
			kindStatus = statusInfo
			msg = fmt.Sprintf("%d pending", count)
		}
		lines = append(lines, renderStatusLine(string(kind), kindStatus, msg, colorize))
	}
	if responses > 0 {
		lines = append(lines, renderStatusLine("Responses", statusInfo, fmt.Sprintf("%d uncollected", responses), colorize))
	}
	if unknown > 0 {
		lines = append(lines, renderStatusLine("Unrecognized", statusWarn, fmt.Sprintf("%d files (see `nudge flags`)", unknown), colorize))
	}
	if shutdown != nil {
		lines = append(lines, renderStatusLine("Shutdown", statusWarn, "requested "+formatAge(now, shutdown.ModTime)+" ago", colorize))
	}
	return lines, nil
}

func cacheLine(cfg *config.Config, colorize bool) string {
	stats, err := cache.NewManager(cfg, logging.NewNop()).Stats()
	if err != nil {
		return renderStatusLine("Cache", statusError, err.Error(), colorize)
	}
	msg := fmt.Sprintf("%d entries, %s", stats.Entries, formatBytes(stats.TotalBytes))
	return renderStatusLine("Cache", statusInfo, msg, colorize)
}

func writeLines(out io.Writer, lines []string) error {
	_, err := fmt.Fprintln(out, strings.Join(lines, "\n"))
	return err
}
