package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nudge/internal/config"
	"nudge/internal/flagfile"
	"nudge/internal/userdata"
)

const responsePollInterval = 100 * time.Millisecond

// sendSpec describes one "nudge send" subcommand.
type sendSpec struct {
	use     string
	short   string
	kind    flagfile.Kind
	args    int
	payload func(args []string, now time.Time) flagfile.Payload
}

func sendSpecs() []sendSpec {
	return []sendSpec{
		{
			use:   "test-message USER CATEGORY",
			short: "Ask the daemon to send a category message now",
			kind:  flagfile.KindTestMessage,
			args:  2,
			payload: func(args []string, _ time.Time) flagfile.Payload {
				return flagfile.Payload{"user_id": args[0], "category": userdata.NormalizeCategory(args[1])}
			},
		},
		{
			use:   "checkin USER",
			short: "Ask the daemon to send a check-in prompt",
			kind:  flagfile.KindCheckinPrompt,
			args:  1,
			payload: func(args []string, _ time.Time) flagfile.Payload {
				return flagfile.Payload{"user_id": args[0]}
			},
		},
		{
			use:   "task-reminder USER TASK_ID",
			short: "Ask the daemon to send a task reminder",
			kind:  flagfile.KindTaskReminder,
			args:  2,
			payload: func(args []string, _ time.Time) flagfile.Payload {
				return flagfile.Payload{"user_id": args[0], "task_id": args[1]}
			},
		},
		{
			use:   "reschedule USER CATEGORY",
			short: "Ask the daemon to rebuild a user's daily job for a category",
			kind:  flagfile.KindReschedule,
			args:  2,
			payload: func(args []string, now time.Time) flagfile.Payload {
				return reschedulePayload(args[0], args[1], now)
			},
		},
	}
}

func reschedulePayload(userID, category string, now time.Time) flagfile.Payload {
	return flagfile.Payload{
		"user_id":   userID,
		"category":  userdata.NormalizeCategory(category),
		"timestamp": float64(now.UnixMilli()) / 1000,
	}
}

func newSendCommand(ctx *commandContext) *cobra.Command {
	var key string
	var wait time.Duration

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Drop request flags for the daemon",
	}
	sendCmd.PersistentFlags().StringVar(&key, "key", "", "Request key (generated when empty)")
	sendCmd.PersistentFlags().DurationVar(&wait, "wait", 0, "Wait up to this long for the daemon's response")

	for _, spec := range sendSpecs() {
		sendCmd.AddCommand(newSendSubcommand(ctx, spec, &key, &wait))
	}
	return sendCmd
}

func newSendSubcommand(ctx *commandContext, spec sendSpec, key *string, wait *time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   spec.use,
		Short: spec.short,
		Args:  cobra.ExactArgs(spec.args),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := userdata.ValidateID(args[0]); err != nil {
				return err
			}
			return submitRequest(cmd, cfg, spec.kind, *key, spec.payload(args, time.Now()), *wait)
		},
	}
}

// submitRequest writes the request flag and, when wait is positive and the
// kind produces one, blocks for the response.
func submitRequest(cmd *cobra.Command, cfg *config.Config, kind flagfile.Kind, key string, payload flagfile.Payload, wait time.Duration) error {
	dir := cfg.Paths.BaseDir
	path, key, err := flagfile.WriteRequest(dir, kind, key, payload)
	if err != nil {
		return fmt.Errorf("write %s request: %w", kind, err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Queued %s request %s\n", kind, path)

	if wait <= 0 {
		return nil
	}
	if !kind.HasResponse() {
		fmt.Fprintf(out, "%s requests produce no response; not waiting\n", kind)
		return nil
	}

	waitCtx, cancel := context.WithTimeout(cmd.Context(), wait)
	defer cancel()
	resp, err := flagfile.WaitResponse(waitCtx, dir, kind, key, responsePollInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no response within %s; is the daemon running? (see `nudge status`)", wait)
		}
		return fmt.Errorf("wait for response: %w", err)
	}
	fmt.Fprintf(out, "Response for %s: %s\n", resp.UserID, resp.Response)
	return nil
}
