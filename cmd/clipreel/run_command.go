package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"clipreel/internal/catalog"
	"clipreel/internal/config"
	"clipreel/internal/history"
	"clipreel/internal/pipeline"
	"clipreel/internal/progress"
)

// targetFlags holds the output-shape flags shared by run and search.
type targetFlags struct {
	term      string
	duration  int
	width     int
	height    int
	frameRate float64
	vertical  bool
	seed      int64
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.term, "term", "t", "", "Search term (required)")
	cmd.Flags().IntVarP(&f.duration, "duration", "d", 0, "Target duration in seconds (default output.duration_seconds)")
	cmd.Flags().IntVar(&f.width, "width", 0, "Output width (default output.width)")
	cmd.Flags().IntVar(&f.height, "height", 0, "Output height (default output.height)")
	cmd.Flags().Float64Var(&f.frameRate, "fps", 0, "Output frame rate (default output.frame_rate)")
	cmd.Flags().BoolVar(&f.vertical, "vertical", false, "Portrait output (swaps width and height)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Selection seed for reproducible runs (0 picks one)")
	_ = cmd.MarkFlagRequired("term")
}

func (f *targetFlags) request(cfg *config.Config, output string) pipeline.Request {
	// Zero fields are filled from [output] by the pipeline.
	return pipeline.Request{
		Term: f.term,
		Target: catalog.Target{
			Duration:  f.duration,
			Width:     f.width,
			Height:    f.height,
			FrameRate: f.frameRate,
			Vertical:  f.vertical || cfg.Output.Vertical,
		},
		Output: output,
		Seed:   f.seed,
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags targetFlags
	var output string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search, download, normalize, and concatenate clips into one video",
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

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			sink, finish := progressSink(cmd.ErrOrStderr(), logger)
			p, err := pipeline.New(cfg,
				pipeline.WithLogger(logger),
				pipeline.WithHistory(store),
				pipeline.WithProgress(sink),
			)
			if err != nil {
				return err
			}
			report, err := p.Execute(signalCtx, flags.request(cfg, output))
			finish()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <output_dir>/<term>-<timestamp>.mp4)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run summary as JSON")
	return cmd
}

// progressSink draws a bar on interactive terminals and falls back to
// sampled log lines otherwise.
func progressSink(w io.Writer, logger *slog.Logger) (progress.Sink, func()) {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		bar := progress.NewBarSink(w, "starting")
		return bar, bar.Finish
	}
	return progress.NewLogSink(logger, 25), func() {}
}

func printReport(w io.Writer, report pipeline.Report) {
	fmt.Fprintf(w, "Output:      %s\n", report.Output)
	fmt.Fprintf(w, "Run ID:      %s\n", report.RunID)
	fmt.Fprintf(w, "Seed:        %d\n", report.Seed)
	fmt.Fprintf(w, "Clips:       %d used of %d selected (%d candidates)\n", report.ClipsUsed, report.Selected, report.Candidates)
	fmt.Fprintf(w, "Normalized:  %d re-encoded, %d passed through\n", report.Reencoded, report.PassedThrough)
	if failed := report.FailedDownloads + report.FailedNormalize; failed > 0 {
		fmt.Fprintf(w, "Skipped:     %d download, %d normalize failures\n", report.FailedDownloads, report.FailedNormalize)
	}
	fmt.Fprintf(w, "Downloaded:  %s\n", humanize.Bytes(uint64(report.BytesDownloaded)))
	fmt.Fprintf(w, "Elapsed:     %s\n", report.Elapsed.Round(time.Second))
}
