package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"nudge/internal/flagfile"
)

func newFlagsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "List flag files waiting in the flag directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := flagfile.ListAll(cfg.Paths.BaseDir)
			if err != nil {
				return fmt.Errorf("list flags: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No flag files in %s\n", cfg.Paths.BaseDir)
				return nil
			}
			fmt.Fprintln(out, renderFlagTable(entries, time.Now()))
			return nil
		},
	}
}

func renderFlagTable(entries []flagfile.Entry, now time.Time) string {
	sorted := append([]flagfile.Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].ModTime.Equal(sorted[j].ModTime) {
			return sorted[i].ModTime.Before(sorted[j].ModTime)
		}
		return sorted[i].Name < sorted[j].Name
	})
	rows := make([][]string, 0, len(sorted))
	for _, entry := range sorted {
		kind := string(entry.Kind)
		if kind == "" {
			kind = "-"
		}
		key := entry.Key
		if entry.Role == flagfile.RoleUnknown {
			key = entry.Name
		}
		if key == "" {
			key = "-"
		}
		rows = append(rows, []string{
			string(entry.Role),
			kind,
			key,
			formatAge(now, entry.ModTime),
			formatBytes(entry.Size),
		})
	}
	return renderTable(
		[]string{"Role", "Kind", "Key", "Age", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}
