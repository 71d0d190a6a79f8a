package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"clipreel/internal/catalog"
	"clipreel/internal/download"
	"clipreel/internal/ffmpeg"
	"clipreel/internal/fileutil"
	"clipreel/internal/logging"
	"clipreel/internal/media/ffprobe"
	"clipreel/internal/progress"
	"clipreel/internal/services"
)

const stageName = "normalize"

// Gateway is the slice of the encoder gateway the engine needs.
type Gateway interface {
	Probe(ctx context.Context, path string) (ffprobe.Result, error)
	Strategies(ctx context.Context) []ffmpeg.Encoder
	Transcode(ctx context.Context, args []string, onProgress func(seconds float64)) error
}

var _ Gateway = (*ffmpeg.Gateway)(nil)

// Result maps input indices to outcomes. Every index appears in exactly one
// of Paths and Failures unless the batch was cancelled before reaching it.
type Result struct {
	Paths     map[int]string
	Failures  map[int]error
	Reencoded int
	Passed    int
}

// Ordered returns the successful paths in input order.
func (r Result) Ordered() []string {
	indices := make([]int, 0, len(r.Paths))
	for i := range r.Paths {
		indices = append(indices, i)
	}
	slices.Sort(indices)
	out := make([]string, 0, len(indices))
	for _, i := range indices {
		out = append(out, r.Paths[i])
	}
	return out
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProgress routes per-clip encode progress to sink.
func WithProgress(sink progress.Sink) Option {
	return func(e *Engine) {
		e.sink = progress.OrDiscard(sink)
	}
}

// Engine normalizes batches of clips.
type Engine struct {
	gateway   Gateway
	resources *download.Resources
	sink      progress.Sink
	logger    *slog.Logger
}

// New builds an Engine. A nil pool gets default sizes.
func New(gateway Gateway, resources *download.Resources, opts ...Option) *Engine {
	if resources == nil {
		resources = download.NewResources(0, 0)
	}
	e := &Engine{
		gateway:   gateway,
		resources: resources,
		sink:      progress.Discard,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, stageName)
	return e
}

type outcome struct {
	path      string
	reencoded bool
	err       error
}

// Normalize processes paths with at most parallelism clips in flight
// (non-positive means the size of the shared Normalize semaphore). Encoder
// strategies are resolved once, on the first clip that needs re-encoding.
// On cancellation the partial result is returned together with ctx.Err().
func (e *Engine) Normalize(ctx context.Context, paths []string, target catalog.Target, parallelism int) (Result, error) {
	result := Result{Paths: make(map[int]string), Failures: make(map[int]error)}
	if len(paths) == 0 {
		return result, ctx.Err()
	}
	target = target.Normalized()
	if target.Width <= 0 || target.Height <= 0 {
		return result, services.Wrap(services.ErrValidation, stageName, "normalize", "target dimensions must be positive", nil)
	}
	if parallelism <= 0 {
		parallelism = e.resources.NormalizeSlots()
	}
	ctx = services.WithStage(ctx, stageName)
	logger := logging.WithContext(ctx, e.logger)

	strategies := sync.OnceValue(func() []ffmpeg.Encoder {
		list := e.gateway.Strategies(ctx)
		names := make([]string, len(list))
		for i, enc := range list {
			names[i] = enc.String()
		}
		logger.Info("encoder strategies resolved", logging.Any("strategies", names))
		return list
	})

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(parallelism)
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := e.resources.Normalize.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer e.resources.Normalize.Release(1)

			res := e.normalizeOne(services.WithClipIndex(ctx, i), i, path, target, strategies)
			if res.err != nil && ctx.Err() != nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if res.err != nil {
				result.Failures[i] = res.err
				return nil
			}
			result.Paths[i] = res.path
			if res.reencoded {
				result.Reencoded++
			} else {
				result.Passed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	logger.Info("normalization complete",
		logging.Int("clips", len(paths)),
		logging.Int("passed_through", result.Passed),
		logging.Int("reencoded", result.Reencoded),
		logging.Int("failed", len(result.Failures)),
	)
	return result, nil
}

func (e *Engine) normalizeOne(ctx context.Context, index int, path string, target catalog.Target, strategies func() []ffmpeg.Encoder) outcome {
	logger := logging.WithContext(ctx, e.logger)
	base := filepath.Base(path)

	probe, err := e.gateway.Probe(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{err: ctx.Err()}
		}
		return e.fail(logger, path, services.Wrap(services.ErrExternalTool, stageName, "probe", base, err))
	}
	width, height := probe.Dimensions()
	if width <= 0 || height <= 0 {
		return e.fail(logger, path, services.Wrap(services.ErrValidation, stageName, "probe", base+": no video stream", nil))
	}
	if width*target.Height == height*target.Width {
		logger.Debug("clip already matches target aspect; passing through",
			logging.String("path", path),
			logging.String("resolution", fmt.Sprintf("%dx%d", width, height)),
		)
		return outcome{path: path}
	}

	output := fileutil.UniquePath(fileutil.NormalizedName(path))
	want := ffmpeg.Target{Width: target.Width, Height: target.Height, FrameRate: target.FrameRate}
	total := probe.DurationSeconds()
	label := fmt.Sprintf("normalize clip %d: %s", index+1, base)
	onProgress := func(seconds float64) {
		e.sink.Report(label, ffmpeg.Percent(seconds, total))
	}

	list := strategies()
	var lastErr error
	for n, enc := range list {
		err := e.gateway.Transcode(ctx, ffmpeg.NormalizeArgs(path, output, want, enc), onProgress)
		if err == nil && !fileutil.NonEmpty(output) {
			err = fmt.Errorf("ffmpeg produced no output at %s", output)
		}
		if err == nil {
			lastErr = nil
			break
		}
		e.removePartial(logger, output)
		if ctx.Err() != nil {
			return outcome{err: ctx.Err()}
		}
		lastErr = err
		if enc.Hardware && n+1 < len(list) {
			logging.WarnWithContext(logger, "hardware encode failed; retrying with software", "encoder_fallback",
				logging.String("path", path),
				logging.String("encoder", enc.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check GPU drivers or remove the encoder from encoding.hardware_encoders"),
				logging.String(logging.FieldImpact, "slower software encode"),
			)
			continue
		}
		break
	}
	if lastErr != nil {
		return e.fail(logger, path, services.Wrap(services.ErrExternalTool, stageName, "transcode", base, lastErr))
	}

	if err := fileutil.RemoveQuietly(path); err != nil {
		logger.Warn("failed to remove original clip",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "cleanup_failed"),
			logging.String(logging.FieldErrorHint, "remove the file manually"),
			logging.String(logging.FieldImpact, "extra disk usage until the run directory is removed"),
		)
	}
	e.sink.Report(label, 100)
	logger.Debug("clip re-encoded",
		logging.String("input", path),
		logging.String("output", output),
		logging.String("from", fmt.Sprintf("%dx%d", width, height)),
	)
	return outcome{path: output, reencoded: true}
}

func (e *Engine) fail(logger *slog.Logger, path string, err error) outcome {
	logging.WarnWithContext(logger, "clip normalization failed", "normalize_failed",
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "the clip may be corrupt; rerun to pick other clips"),
		logging.String(logging.FieldImpact, "clip dropped from the output"),
	)
	return outcome{err: err}
}

func (e *Engine) removePartial(logger *slog.Logger, output string) {
	if err := fileutil.RemoveQuietly(output); err != nil {
		logger.Debug("failed to remove partial output", logging.String("path", output), logging.Error(err))
	}
}
