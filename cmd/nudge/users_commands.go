package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nudge/internal/config"
	"nudge/internal/flagfile"
	"nudge/internal/userdata"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users, their categories and tasks",
	}
	usersCmd.AddCommand(newUsersAddCommand(ctx))
	usersCmd.AddCommand(newUsersListCommand(ctx))
	usersCmd.AddCommand(newUsersAddCategoryCommand(ctx))
	usersCmd.AddCommand(newUsersAddTaskCommand(ctx))
	return usersCmd
}

func newUsersAddCommand(ctx *commandContext) *cobra.Command {
	var name, channel, recipient string
	var noCheckins bool

	cmd := &cobra.Command{
		Use:   "add USER",
		Short: "Create or update a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *userdata.Store) error {
				selected := strings.ToLower(strings.TrimSpace(channel))
				if selected == "" {
					enabled, err := cfg.EnabledChannels()
					if err != nil {
						return err
					}
					selected = enabled[0]
				}
				user := userdata.User{
					ID:              args[0],
					Name:            name,
					Channel:         selected,
					Recipient:       recipient,
					CheckinsEnabled: !noCheckins,
				}
				if err := store.UpsertUser(cmd.Context(), user); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved user %s (channel %s)\n", user.ID, selected)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&channel, "channel", "", "Delivery channel (defaults to the first enabled channel)")
	cmd.Flags().StringVar(&recipient, "recipient", "", "Channel-specific recipient, such as an ntfy topic")
	cmd.Flags().BoolVar(&noCheckins, "no-checkins", false, "Do not send daily check-in prompts")
	return cmd
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *userdata.Store) error {
				users, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(users) == 0 {
					fmt.Fprintln(out, "No users registered")
					return nil
				}
				rows := make([][]string, 0, len(users))
				for _, user := range users {
					categories, err := store.Categories(cmd.Context(), user.ID)
					if err != nil {
						return err
					}
					tasks, err := store.Tasks(cmd.Context(), user.ID, false)
					if err != nil {
						return err
					}
					names := make([]string, 0, len(categories))
					for _, category := range categories {
						label := category.Name
						if category.SendTime != "" {
							label += "@" + category.SendTime
						}
						names = append(names, label)
					}
					categoryText := strings.Join(names, ", ")
					if categoryText == "" {
						categoryText = "-"
					}
					rows = append(rows, []string{
						user.ID,
						user.DisplayName(),
						user.Channel,
						yesNo(user.CheckinsEnabled),
						categoryText,
						strconv.Itoa(len(tasks)),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Name", "Channel", "Check-ins", "Categories", "Open Tasks"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newUsersAddCategoryCommand(ctx *commandContext) *cobra.Command {
	var sendTime string

	cmd := &cobra.Command{
		Use:   "add-category USER CATEGORY",
		Short: "Subscribe a user to a message category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *userdata.Store) error {
				sendTime = strings.TrimSpace(sendTime)
				if sendTime != "" {
					if _, _, err := config.ParseClock(sendTime); err != nil {
						return fmt.Errorf("--time: %w", err)
					}
				}
				userID, category := args[0], userdata.NormalizeCategory(args[1])
				if err := store.AddCategory(cmd.Context(), userID, category, sendTime); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Subscribed %s to %s\n", userID, category)

				running, _, err := daemonState(cfg)
				if err != nil || !running {
					return err
				}
				return submitRequest(cmd, cfg, flagfile.KindReschedule, "", reschedulePayload(userID, category, time.Now()), 0)
			})
		},
	}

	cmd.Flags().StringVar(&sendTime, "time", "", "Daily send time (HH:MM) overriding the configured schedule")
	return cmd
}

func newUsersAddTaskCommand(ctx *commandContext) *cobra.Command {
	var dueText string

	cmd := &cobra.Command{
		Use:   "add-task USER TITLE",
		Short: "Add an open task that drives reminders",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *userdata.Store) error {
				due, err := parseDue(dueText, cfg.Location())
				if err != nil {
					return err
				}
				task, err := store.AddTask(cmd.Context(), args[0], args[1], due)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Added task %d for %s\n", task.ID, task.UserID)
				fmt.Fprintf(out, "Send a reminder now with: nudge send task-reminder %s %d\n", task.UserID, task.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dueText, "due", "", `Due time ("2006-01-02", "2006-01-02 15:04", or RFC 3339)`)
	return cmd
}

var dueLayouts = []string{"2006-01-02 15:04", "2006-01-02"}

// parseDue accepts RFC 3339 or a local date with optional time. Empty input
// means no due date.
func parseDue(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("--due %q: expected YYYY-MM-DD, YYYY-MM-DD HH:MM, or RFC 3339", value)
}
