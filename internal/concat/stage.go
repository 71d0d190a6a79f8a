package concat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"clipreel/internal/catalog"
	"clipreel/internal/ffmpeg"
	"clipreel/internal/fileutil"
	"clipreel/internal/logging"
	"clipreel/internal/media/ffprobe"
	"clipreel/internal/progress"
	"clipreel/internal/services"
)

const (
	stageName            = "concat"
	manifestName         = "inputs.txt"
	minTimeoutUnits      = 5
	defaultTimeoutUnit   = time.Minute
	defaultTickInterval  = 5 * time.Second
	progressMessageLabel = "concat"
)

// Gateway is the slice of the encoder gateway the stage needs.
type Gateway interface {
	Probe(ctx context.Context, path string) (ffprobe.Result, error)
	SelectEncoder(ctx context.Context) ffmpeg.Encoder
	Transcode(ctx context.Context, args []string, onProgress func(seconds float64)) error
}

var _ Gateway = (*ffmpeg.Gateway)(nil)

// Option customizes a Stage.
type Option func(*Stage)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProgress routes the periodic progress notices to sink.
func WithProgress(sink progress.Sink) Option {
	return func(s *Stage) {
		s.sink = progress.OrDiscard(sink)
	}
}

// WithTempDir sets where concat-* manifest directories are created.
func WithTempDir(dir string) Option {
	return func(s *Stage) {
		s.tempDir = dir
	}
}

// WithTimeoutUnit scales the encode timeout. The budget is
// max(5, ceil(totalMinutes × 2)) units; the default unit is one minute.
func WithTimeoutUnit(unit time.Duration) Option {
	return func(s *Stage) {
		if unit > 0 {
			s.timeoutUnit = unit
		}
	}
}

// WithTickInterval overrides how often progress notices are sent.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Stage) {
		if interval > 0 {
			s.tick = interval
		}
	}
}

// Stage concatenates clips.
type Stage struct {
	gateway     Gateway
	tempDir     string
	timeoutUnit time.Duration
	tick        time.Duration
	sink        progress.Sink
	logger      *slog.Logger
}

// New builds a Stage.
func New(gateway Gateway, opts ...Option) *Stage {
	s := &Stage{
		gateway:     gateway,
		timeoutUnit: defaultTimeoutUnit,
		tick:        defaultTickInterval,
		sink:        progress.Discard,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, stageName)
	return s
}

// Timeout returns the encode budget for clips totalling totalSeconds.
func (s *Stage) Timeout(totalSeconds float64) time.Duration {
	units := int(math.Ceil(totalSeconds / 60 * 2))
	if units < minTimeoutUnits {
		units = minTimeoutUnits
	}
	return time.Duration(units) * s.timeoutUnit
}

// Concatenate encodes paths, in order, into output at the target size and
// frame rate.
// A nil return means output exists and ffmpeg exited cleanly.
func (s *Stage) Concatenate(ctx context.Context, paths []string, output string, target catalog.Target) error {
	if strings.TrimSpace(output) == "" {
		return services.Wrap(services.ErrValidation, stageName, "concatenate", "empty output path", nil)
	}
	ctx = services.WithStage(ctx, stageName)
	logger := logging.WithContext(ctx, s.logger)
	target = target.Normalized()

	inputs, total, err := s.validInputs(ctx, logger, paths)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return services.Wrap(services.ErrNoValidInputs, stageName, "validate", fmt.Sprintf("none of %d inputs usable", len(paths)), nil)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "create output directory", err)
	}
	manifestDir, err := os.MkdirTemp(s.tempDir, "concat-*")
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "create manifest directory", err)
	}
	defer func() {
		if err := os.RemoveAll(manifestDir); err != nil {
			logger.Debug("failed to remove manifest directory", logging.String("path", manifestDir), logging.Error(err))
		}
	}()
	manifest := filepath.Join(manifestDir, manifestName)
	if err := os.WriteFile(manifest, []byte(Manifest(inputs)), 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "write manifest", err)
	}

	encoder := s.gateway.SelectEncoder(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	budget := s.Timeout(total)
	logger.Info("concatenating clips",
		logging.Int("clips", len(inputs)),
		logging.Float64("total_seconds", math.Round(total*10)/10),
		logging.String("encoder", encoder.String()),
		logging.Duration("timeout", budget),
		logging.String("output", output),
	)

	want := ffmpeg.Target{Width: target.Width, Height: target.Height, FrameRate: target.FrameRate}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var elapsed atomic.Int64
	stopTicker := s.startTicker(runCtx, total, &elapsed)
	err = s.gateway.Transcode(runCtx, ffmpeg.ConcatArgs(manifest, output, want, encoder), func(seconds float64) {
		elapsed.Store(int64(seconds * 1000))
	})
	stopTicker()

	if err != nil {
		_ = fileutil.RemoveQuietly(output)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, stageName, "encode", fmt.Sprintf("exceeded %s budget", budget), err)
		}
		return services.Wrap(services.ErrExternalTool, stageName, "encode", encoder.Name, err)
	}
	size, err := fileutil.Size(output)
	if err != nil || size == 0 {
		return services.Wrap(services.ErrExternalTool, stageName, "encode", "ffmpeg exited cleanly but produced no output", err)
	}
	s.sink.Report(progressMessageLabel+": complete", 100)
	logger.Info("concatenation complete",
		logging.String("output", output),
		logging.String("size", humanize.Bytes(uint64(size))),
	)
	return nil
}

func (s *Stage) validInputs(ctx context.Context, logger *slog.Logger, paths []string) ([]string, float64, error) {
	var (
		inputs []string
		total  float64
	)
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		reason := ""
		var duration float64
		if !fileutil.NonEmpty(path) {
			reason = "missing or empty"
		} else if probe, err := s.gateway.Probe(ctx, path); err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			reason = err.Error()
		} else if duration = probe.DurationSeconds(); duration <= 0 {
			reason = "no measurable duration"
		}
		if reason != "" {
			logging.WarnWithContext(logger, "skipping concat input", "concat_input_skipped",
				logging.Int(logging.FieldClipIndex, i),
				logging.String("path", path),
				logging.String("reason", reason),
				logging.String(logging.FieldImpact, "clip missing from the output"),
			)
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		inputs = append(inputs, abs)
		total += duration
	}
	return inputs, total, nil
}

func (s *Stage) startTicker(ctx context.Context, total float64, elapsed *atomic.Int64) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				seconds := float64(elapsed.Load()) / 1000
				percent := progress.Indeterminate
				if seconds > 0 {
					percent = ffmpeg.Percent(seconds, total)
				}
				s.sink.Report(progressMessageLabel+": encoding", percent)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// Manifest renders concat-demuxer lines for paths, escaping single quotes.
func Manifest(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}
