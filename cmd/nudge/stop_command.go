package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nudge/internal/flagfile"
)

const stopPollInterval = 100 * time.Millisecond

func newStopCommand(ctx *commandContext) *cobra.Command {
	var headless bool
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the running daemon to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			running, _, err := daemonState(cfg)
			if err != nil {
				return err
			}
			if !running {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}

			prefix := flagfile.ShutdownByUI
			if headless {
				prefix = flagfile.ShutdownByHeadless
			}
			path, err := flagfile.WriteShutdown(cfg.Paths.BaseDir, prefix, time.Now())
			if err != nil {
				return fmt.Errorf("write shutdown flag: %w", err)
			}
			fmt.Fprintf(out, "Shutdown requested (%s)\n", path)

			if wait <= 0 {
				return nil
			}
			deadline := time.Now().Add(wait)
			for time.Now().Before(deadline) {
				running, _, err := daemonState(cfg)
				if err != nil {
					return err
				}
				if !running {
					fmt.Fprintln(out, "Daemon stopped")
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(stopPollInterval):
				}
			}
			return fmt.Errorf("daemon still running after %s", wait)
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "Mark the request as coming from a headless harness")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the daemon to exit")
	return cmd
}
