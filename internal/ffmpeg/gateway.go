package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clipreel/internal/logging"
	"clipreel/internal/media/ffprobe"
)

const defaultProbeTimeout = 10 * time.Second

// Options configures a Gateway.
type Options struct {
	FFmpegBinary     string
	FFprobeBinary    string
	HardwareEncoders []string
	ProbeTimeout     time.Duration
	SoftwarePreset   string
	SoftwareCRF      int
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(g *Gateway) {
		if exec != nil {
			g.exec = exec
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Gateway runs ffmpeg and ffprobe on behalf of the pipeline stages.
type Gateway struct {
	ffmpeg       string
	ffprobe      string
	hardware     []string
	probeTimeout time.Duration
	software     Encoder
	exec         Executor
	logger       *slog.Logger
}

// New constructs a Gateway. Empty binaries default to ffmpeg/ffprobe on PATH;
// a nil HardwareEncoders list uses DefaultHardwareEncoders, an empty non-nil
// list disables hardware encoding.
func New(opts Options, extra ...Option) *Gateway {
	hardware := opts.HardwareEncoders
	if hardware == nil {
		hardware = DefaultHardwareEncoders
	}
	g := &Gateway{
		ffmpeg:       defaultString(opts.FFmpegBinary, "ffmpeg"),
		ffprobe:      defaultString(opts.FFprobeBinary, "ffprobe"),
		hardware:     append([]string(nil), hardware...),
		probeTimeout: opts.ProbeTimeout,
		software:     SoftwareEncoder(opts.SoftwarePreset, opts.SoftwareCRF),
		exec:         commandExecutor{},
		logger:       logging.NewNop(),
	}
	if g.probeTimeout <= 0 {
		g.probeTimeout = defaultProbeTimeout
	}
	for _, opt := range extra {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "ffmpeg")
	return g
}

// FFmpegBinary returns the configured ffmpeg executable.
func (g *Gateway) FFmpegBinary() string { return g.ffmpeg }

// FFprobeBinary returns the configured ffprobe executable.
func (g *Gateway) FFprobeBinary() string { return g.ffprobe }

// Software returns the software fallback profile.
func (g *Gateway) Software() Encoder { return g.software }

// Version returns the first line of `ffmpeg -version`.
func (g *Gateway) Version(ctx context.Context) (string, error) {
	out, err := g.exec.Output(ctx, g.ffmpeg, []string{"-hide_banner", "-version"})
	if err != nil {
		return "", fmt.Errorf("ffmpeg version: %w", err)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(first), nil
}

// Probe inspects a media file with ffprobe.
func (g *Gateway) Probe(ctx context.Context, path string) (ffprobe.Result, error) {
	if strings.TrimSpace(path) == "" {
		return ffprobe.Result{}, errors.New("ffprobe: empty path")
	}
	out, err := g.exec.Output(ctx, g.ffprobe, ffprobe.Args(path))
	if err != nil {
		return ffprobe.Result{}, fmt.Errorf("probe %s: %w", path, err)
	}
	return ffprobe.Parse(out)
}

// TestEncoder reports whether the named encoder can encode a one-second
// synthetic clip within the probe timeout. Failures are logged at debug level
// only.
func (g *Gateway) TestEncoder(ctx context.Context, name string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()
	err := g.exec.Run(probeCtx, g.ffmpeg, EncoderTestArgs(name), nil)
	if err != nil {
		g.logger.Debug("hardware encoder unavailable",
			logging.String("encoder", name),
			logging.Error(err),
		)
		return false
	}
	g.logger.Debug("hardware encoder available", logging.String("encoder", name))
	return true
}

// Strategies returns the ordered encoder list for one stage invocation: the
// first working hardware encoder (if any) followed by the software profile.
func (g *Gateway) Strategies(ctx context.Context) []Encoder {
	for _, name := range g.hardware {
		if ctx.Err() != nil {
			break
		}
		if g.TestEncoder(ctx, name) {
			return []Encoder{HardwareEncoder(name), g.software}
		}
	}
	return []Encoder{g.software}
}

// SelectEncoder returns the preferred strategy: first working hardware
// encoder, else software.
func (g *Gateway) SelectEncoder(ctx context.Context) Encoder {
	return g.Strategies(ctx)[0]
}

// HardwareStatus tests every configured hardware encoder and reports which work.
func (g *Gateway) HardwareStatus(ctx context.Context) map[string]bool {
	status := make(map[string]bool, len(g.hardware))
	for _, name := range g.hardware {
		status[name] = g.TestEncoder(ctx, name)
	}
	return status
}

// HardwareEncoders returns the configured probe order.
func (g *Gateway) HardwareEncoders() []string {
	return append([]string(nil), g.hardware...)
}

// Transcode runs ffmpeg with args. onProgress, when set, receives the elapsed
// output time parsed from each status line.
func (g *Gateway) Transcode(ctx context.Context, args []string, onProgress func(seconds float64)) error {
	var onLine func(string)
	if onProgress != nil {
		onLine = func(line string) {
			if seconds, ok := ParseTime(line); ok {
				onProgress(seconds)
			}
		}
	}
	return g.exec.Run(ctx, g.ffmpeg, args, onLine)
}

func defaultString(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
