package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipreel/internal/pipeline"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var flags targetFlags
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Show catalog candidates and a dry-run selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireCatalogKey(); err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			p, err := pipeline.New(cfg, pipeline.WithLogger(logger))
			if err != nil {
				return err
			}
			preview, err := p.Preview(cmd.Context(), flags.request(cfg, ""))
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, preview)
			}

			selected := make(map[string]bool, preview.Selection.Len())
			for _, clip := range preview.Selection.Clips {
				selected[clip.URL] = true
			}
			rows := make([][]string, 0, len(preview.Candidates))
			for _, c := range preview.Candidates {
				size := "?"
				if c.FileSize > 0 {
					size = humanize.Bytes(uint64(c.FileSize))
				}
				mark := ""
				if selected[c.URL] {
					mark = "*"
				}
				rows = append(rows, []string{
					mark,
					strconv.FormatInt(c.ID, 10),
					fmt.Sprintf("%ds", c.Duration),
					c.Resolution(),
					strconv.FormatFloat(c.FrameRate, 'f', -1, 64),
					size,
				})
			}

			out := cmd.OutOrStdout()
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Sel", "ID", "Duration", "Resolution", "FPS", "Size"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignRight, alignRight},
				))
			}
			fmt.Fprintf(out, "Target: %s, %ds at %s fps (seed %d)\n",
				preview.Target.Resolution(), preview.Target.Duration,
				strconv.FormatFloat(preview.Target.FrameRate, 'f', -1, 64), preview.Seed)
			fmt.Fprintf(out, "Selected %d of %d candidates, %ds total\n",
				preview.Selection.Len(), len(preview.Candidates), preview.Selection.TotalDuration())
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print candidates and selection as JSON")
	return cmd
}
