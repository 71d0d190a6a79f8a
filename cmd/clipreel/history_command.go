package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipreel/internal/api"
	"clipreel/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statuses []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			filter := make([]history.Status, 0, len(statuses))
			for _, s := range statuses {
				if s = strings.TrimSpace(s); s != "" {
					filter = append(filter, history.Status(s))
				}
			}
			runs, err := store.List(cmd.Context(), limit, filter...)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.FromRuns(runs))
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortID(run.ID),
					run.StartedAt.Local().Format("2006-01-02 15:04"),
					run.Term,
					string(run.Status),
					fmt.Sprintf("%dx%d/%ds", run.Width, run.Height, run.DurationSeconds),
					strconv.Itoa(run.ClipsUsed),
					humanize.Bytes(uint64(run.BytesDownloaded)),
					run.Elapsed().Round(time.Second).String(),
					runDetail(run),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Started", "Term", "Status", "Target", "Clips", "Downloaded", "Elapsed", "Output / Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show runs with these statuses")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print runs as JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDetail(run *history.Run) string {
	if run.ErrorMessage != "" {
		msg := run.ErrorMessage
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		return msg
	}
	return run.OutputPath
}
