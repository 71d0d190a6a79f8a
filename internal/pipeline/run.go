package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"clipreel/internal/catalog"
	"clipreel/internal/concat"
	"clipreel/internal/download"
	"clipreel/internal/fileutil"
	"clipreel/internal/history"
	"clipreel/internal/logging"
	"clipreel/internal/normalize"
	"clipreel/internal/preflight"
	"clipreel/internal/selection"
	"clipreel/internal/services"
	"clipreel/internal/staging"
	"clipreel/internal/textutil"
)

const (
	stageSearch    = "search"
	stageSelect    = "select"
	stageDownload  = "download"
	stageNormalize = "normalize"
	stageConcat    = "concat"
)

// Run is the state of one pipeline execution.
type Run struct {
	ID        string
	Term      string
	Target    catalog.Target
	Seed      int64
	Output    string
	Workspace *staging.Workspace
	Resources *download.Resources
	StartedAt time.Time

	bytesDownloaded atomic.Int64
	clipsProcessed  atomic.Int32
}

// BytesDownloaded returns the bytes fetched so far.
func (r *Run) BytesDownloaded() int64 { return r.bytesDownloaded.Load() }

// ClipsProcessed returns the number of clips that reached the concat stage.
func (r *Run) ClipsProcessed() int { return int(r.clipsProcessed.Load()) }

// Report summarizes a finished run.
type Report struct {
	RunID           string
	Output          string
	Seed            int64
	Candidates      int
	Selected        int
	SelectedSeconds int
	Downloaded      int
	FailedDownloads int
	Reencoded       int
	PassedThrough   int
	FailedNormalize int
	ClipsUsed       int
	BytesDownloaded int64
	Elapsed         time.Duration
}

// Execute runs every stage for req and returns the summary. The returned
// Report is filled as far as the run got, even on error.
func (p *Pipeline) Execute(ctx context.Context, req Request) (Report, error) {
	target := p.resolveTarget(req.Target)
	if err := validateTarget(req.Term, target); err != nil {
		return Report{}, err
	}
	if err := p.prepare(ctx); err != nil {
		return Report{}, err
	}

	run, err := p.newRun(req, target)
	if err != nil {
		return Report{}, err
	}
	ctx = services.WithRunID(ctx, run.ID)
	logger := logging.WithContext(ctx, p.logger)
	report := Report{RunID: run.ID, Seed: run.Seed}

	defer func() {
		if err := run.Workspace.Remove(); err != nil {
			logging.WarnWithContext(logger, "failed to remove run directory", "workspace_cleanup_failed",
				logging.String("path", run.Workspace.Dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the directory manually; it is swept after 24h"),
			)
		}
	}()

	p.recordStart(ctx, run)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("term", run.Term),
		logging.String("target", target.Resolution()),
		logging.Int("duration_seconds", target.Duration),
		logging.Int64("seed", run.Seed),
	)

	runErr := p.execute(ctx, run, &report)
	report.BytesDownloaded = run.BytesDownloaded()
	report.ClipsUsed = run.ClipsProcessed()
	report.Elapsed = time.Since(run.StartedAt)
	p.recordFinish(ctx, run, report, runErr)

	switch {
	case runErr == nil:
		logger.Info("run complete",
			logging.String(logging.FieldEventType, "run_complete"),
			logging.String("output", report.Output),
			logging.Int("clips", report.ClipsUsed),
			logging.String("downloaded", humanize.Bytes(uint64(report.BytesDownloaded))),
			logging.Duration("elapsed", report.Elapsed),
		)
	case services.IsCancelled(runErr):
		logger.Info("run cancelled", logging.String(logging.FieldEventType, "run_cancelled"))
	default:
		logger.Error("run failed",
			logging.String(logging.FieldEventType, "run_failed"),
			logging.Error(runErr),
		)
	}
	return report, runErr
}

func (p *Pipeline) prepare(ctx context.Context) error {
	if err := p.cfg.EnsureDirectories(); err != nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "prepare", "create directories", err)
	}
	if p.preflight != nil {
		if failed := preflight.Failed(p.preflight(ctx, p.cfg)); len(failed) > 0 {
			return services.Wrap(services.ErrConfiguration, "pipeline", "preflight", preflight.Summary(failed), nil)
		}
	}

	sweep := staging.CleanStale(ctx, p.cfg.Paths.WorkDir, staging.DefaultMaxAge, p.logger)
	for _, failure := range sweep.Errors {
		p.logger.Debug("stale sweep error", logging.String("path", failure.Path), logging.Error(failure.Error))
	}
	if p.history != nil {
		if n, err := p.history.MarkInterrupted(ctx, p.now().Add(-staging.DefaultMaxAge)); err != nil {
			p.logger.Debug("mark interrupted runs failed", logging.Error(err))
		} else if n > 0 {
			p.logger.Info("marked interrupted runs as failed", logging.Int64("count", n))
		}
	}
	return nil
}

func (p *Pipeline) newRun(req Request, target catalog.Target) (*Run, error) {
	id := uuid.NewString()
	ws, err := staging.NewWorkspace(p.cfg.Paths.WorkDir, id)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "workspace", "create run directory", err)
	}
	seed := req.Seed
	if seed == 0 {
		seed = p.now().UnixNano()
	}
	now := p.now()
	output := req.Output
	if output == "" {
		name := fmt.Sprintf("%s-%s.mp4", textutil.Slug(req.Term), now.Format("20060102-150405"))
		output = fileutil.UniquePath(filepath.Join(p.cfg.Paths.OutputDir, name))
	}
	if abs, err := filepath.Abs(output); err == nil {
		output = abs
	}
	return &Run{
		ID:        id,
		Term:      req.Term,
		Target:    target,
		Seed:      seed,
		Output:    output,
		Workspace: ws,
		Resources: download.NewResources(p.cfg.Download.Concurrency, p.cfg.Encoding.Parallelism),
		StartedAt: now,
	}, nil
}

func (p *Pipeline) execute(ctx context.Context, run *Run, report *Report) error {
	var candidates []catalog.Candidate
	err := p.stage(ctx, stageSearch, func(ctx context.Context) error {
		var err error
		candidates, err = p.searcher.Search(ctx, run.Term, run.Target)
		report.Candidates = len(candidates)
		return err
	})
	if err != nil {
		return err
	}

	var set selection.Set
	err = p.stage(ctx, stageSelect, func(ctx context.Context) error {
		set = selection.Select(candidates, run.Target, selection.NewRand(uint64(run.Seed)))
		report.Selected = set.Len()
		report.SelectedSeconds = set.TotalDuration()
		if set.Empty() {
			return services.Wrap(services.ErrNoSuitableClips, stageSelect, "select",
				fmt.Sprintf("none of %d candidates fit the target", len(candidates)), nil)
		}
		return ctx.Err()
	})
	if err != nil {
		return err
	}

	var clips []download.LocalClip
	err = p.stage(ctx, stageDownload, func(ctx context.Context) error {
		manager := download.New(run.Resources, download.Options{
			MaxAttempts:    p.cfg.Download.MaxAttempts,
			AttemptTimeout: p.cfg.DownloadTimeout(),
		},
			download.WithHTTPClient(p.httpClient),
			download.WithLogger(p.logger),
			download.WithProber(p.gateway),
			download.WithSleeper(p.sleeper),
			download.WithProgress(p.sink),
		)
		batch, err := manager.FetchAll(ctx, set.Clips, run.Workspace.Path("clips"))
		run.bytesDownloaded.Add(batch.Bytes())
		clips = batch.Succeeded()
		report.Downloaded = len(clips)
		report.FailedDownloads = batch.Failed()
		if err != nil {
			return err
		}
		if len(clips) == 0 {
			return services.Wrap(services.ErrDownloadFailed, stageDownload, "fetch",
				fmt.Sprintf("all %d downloads failed", len(set.Clips)), errors.Join(batch.Errors...))
		}
		return nil
	})
	if err != nil {
		return err
	}

	var normalized []string
	err = p.stage(ctx, stageNormalize, func(ctx context.Context) error {
		paths := make([]string, len(clips))
		for i, clip := range clips {
			paths[i] = clip.Path
		}
		engine := normalize.New(p.gateway, run.Resources,
			normalize.WithLogger(p.logger),
			normalize.WithProgress(p.sink),
		)
		result, err := engine.Normalize(ctx, paths, run.Target, p.cfg.Encoding.Parallelism)
		report.Reencoded = result.Reencoded
		report.PassedThrough = result.Passed
		report.FailedNormalize = len(result.Failures)
		if err != nil {
			return err
		}
		normalized = result.Ordered()
		if len(normalized) == 0 {
			return services.Wrap(services.ErrNoValidInputs, stageNormalize, "normalize",
				fmt.Sprintf("all %d clips failed normalization", len(paths)), nil)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return p.stage(ctx, stageConcat, func(ctx context.Context) error {
		if err := os.MkdirAll(filepath.Dir(run.Output), 0o755); err != nil {
			return services.Wrap(services.ErrConfiguration, stageConcat, "prepare", "create output directory", err)
		}
		stage := concat.New(p.gateway,
			concat.WithLogger(p.logger),
			concat.WithProgress(p.sink),
			concat.WithTempDir(run.Workspace.Dir),
		)
		if err := stage.Concatenate(ctx, normalized, run.Output, run.Target); err != nil {
			return err
		}
		run.clipsProcessed.Store(int32(len(normalized)))
		report.Output = run.Output
		return nil
	})
}

// stage runs fn with the stage name attached to ctx and logs its bounds.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stageCtx := services.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, p.logger)
	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	start := time.Now()

	err := fn(stageCtx)
	switch {
	case err == nil:
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", time.Since(start)),
		)
	case services.IsCancelled(err):
		logger.Debug("stage cancelled")
	default:
		logger.Debug("stage failed", logging.Error(err))
	}
	return err
}

func (p *Pipeline) recordStart(ctx context.Context, run *Run) {
	if p.history == nil {
		return
	}
	err := p.history.Start(context.WithoutCancel(ctx), history.Run{
		ID:              run.ID,
		Term:            run.Term,
		DurationSeconds: run.Target.Duration,
		Width:           run.Target.Width,
		Height:          run.Target.Height,
		FrameRate:       run.Target.FrameRate,
		Vertical:        run.Target.Vertical,
		Seed:            run.Seed,
		OutputPath:      run.Output,
		StartedAt:       run.StartedAt,
	})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to record run start", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run missing from history"),
		)
	}
}

func (p *Pipeline) recordFinish(ctx context.Context, run *Run, report Report, runErr error) {
	if p.history == nil {
		return
	}
	outcome := history.Outcome{
		Status:          history.Status(services.Outcome(runErr)),
		Candidates:      report.Candidates,
		Selected:        report.Selected,
		ClipsUsed:       report.ClipsUsed,
		FailedClips:     report.FailedDownloads + report.FailedNormalize,
		BytesDownloaded: report.BytesDownloaded,
		OutputPath:      report.Output,
	}
	if runErr != nil {
		outcome.ErrorMessage = runErr.Error()
	}
	if err := p.history.Finish(context.WithoutCancel(ctx), run.ID, outcome); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to record run outcome", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run left as running in history"),
		)
	}
}
