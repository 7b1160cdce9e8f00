package main

import (
	"github.com/spf13/cobra"
)

// skipConfigLoad marks commands that load (or write) configuration
// themselves.
const skipConfigLoad = "skipConfigLoad"

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	root := &cobra.Command{
		Use:   "nudge",
		Short: "Drive the nudge check-in daemon through its flag directory",
		Long: "nudge runs the check-in and reminder daemon and talks to a running one by\n" +
			"dropping request flag files into the configured base directory.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configSkipped(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config.toml")

	root.AddCommand(
		newRunCommand(ctx),
		newSendCommand(ctx),
		newStopCommand(ctx),
		newFlagsCommand(ctx),
		newStatusCommand(ctx),
		newUsersCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}

// configSkipped reports whether cmd or any ancestor carries skipConfigLoad.
func configSkipped(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[skipConfigLoad] == "true" {
			return true
		}
	}
	return false
}
