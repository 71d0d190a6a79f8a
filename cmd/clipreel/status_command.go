package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"clipreel/internal/config"
	"clipreel/internal/history"
	"clipreel/internal/pipeline"
	"clipreel/internal/preflight"
	"clipreel/internal/staging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var skipCatalog bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check binaries, directories, encoders, and the catalog API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			checkCtx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			results := preflight.RunAll(checkCtx, cfg)
			if !skipCatalog {
				results = append(results, preflight.CheckCatalogFromConfig(checkCtx, cfg))
			}
			renderChecks(out, results)

			gateway := pipeline.NewGateway(cfg, logger)
			if version, err := gateway.Version(checkCtx); err == nil {
				fmt.Fprintf(out, "\nFFmpeg: %s\n", version)
			}
			renderEncoders(out, gateway.HardwareStatus(checkCtx), gateway.HardwareEncoders(), gateway.Software().Name)

			renderWorkDir(out, cfg)
			renderHistoryCounts(checkCtx, out, cfg)

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipCatalog, "offline", false, "Skip the catalog API check")
	return cmd
}

func renderChecks(out io.Writer, results []preflight.Result) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if !r.Passed {
			status = "FAIL"
		}
		rows = append(rows, []string{r.Name, status, r.Detail})
	}
	fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
}

func renderEncoders(out io.Writer, status map[string]bool, order []string, software string) {
	if len(order) == 0 {
		fmt.Fprintf(out, "Hardware encoders disabled; using %s\n", software)
		return
	}
	rows := make([][]string, 0, len(order)+1)
	for _, name := range order {
		rows = append(rows, []string{name, yesNo(status[name])})
	}
	rows = append(rows, []string{software, "yes"})
	fmt.Fprintln(out, renderTable([]string{"Encoder", "Available"}, rows, nil))

	preferred := software
	for _, name := range order {
		if status[name] {
			preferred = name
			break
		}
	}
	fmt.Fprintf(out, "Preferred encoder: %s\n", preferred)
}

func renderWorkDir(out io.Writer, cfg *config.Config) {
	dirs, err := staging.ListDirectories(cfg.Paths.WorkDir)
	if err != nil || len(dirs) == 0 {
		return
	}
	active := slices.IndexFunc(dirs, func(d staging.DirInfo) bool { return d.Active })
	fmt.Fprintf(out, "Run directories: %d", len(dirs))
	if active >= 0 {
		fmt.Fprint(out, " (a run is in progress)")
	}
	fmt.Fprintln(out)
}

func renderHistoryCounts(ctx context.Context, out io.Writer, cfg *config.Config) {
	store, err := history.Open(cfg)
	if err != nil {
		return
	}
	defer store.Close()
	counts, err := store.Counts(ctx)
	if err != nil {
		return
	}
	fmt.Fprint(out, "Runs:")
	for _, status := range history.Statuses {
		fmt.Fprintf(out, " %s=%d", status, counts[status])
	}
	fmt.Fprintln(out)
}
