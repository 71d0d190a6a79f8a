package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clipreel/internal/catalog"
	"clipreel/internal/concat"
	"clipreel/internal/config"
	"clipreel/internal/ffmpeg"
	"clipreel/internal/history"
	"clipreel/internal/logging"
	"clipreel/internal/normalize"
	"clipreel/internal/preflight"
	"clipreel/internal/progress"
	"clipreel/internal/services"
)

// Gateway is the encoder surface the normalize and concat stages share.
type Gateway interface {
	normalize.Gateway
	concat.Gateway
}

var _ Gateway = (*ffmpeg.Gateway)(nil)

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithSearcher replaces the catalog client.
func WithSearcher(searcher catalog.Searcher) Option {
	return func(p *Pipeline) {
		if searcher != nil {
			p.searcher = searcher
		}
	}
}

// WithGateway replaces the ffmpeg gateway.
func WithGateway(gateway Gateway) Option {
	return func(p *Pipeline) {
		if gateway != nil {
			p.gateway = gateway
		}
	}
}

// WithHistory records every run in store.
func WithHistory(store *history.Store) Option {
	return func(p *Pipeline) {
		p.history = store
	}
}

// WithHTTPClient sets the client used for clip downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Pipeline) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProgress receives stage progress for every run.
func WithProgress(sink progress.Sink) Option {
	return func(p *Pipeline) {
		p.sink = progress.OrDiscard(sink)
	}
}

// WithSleeper replaces the download retry sleeper (tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(p *Pipeline) {
		p.sleeper = sleeper
	}
}

// WithClock overrides time.Now for output naming.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithPreflight replaces the readiness checks run before each run.
func WithPreflight(check func(context.Context, *config.Config) []preflight.Result) Option {
	return func(p *Pipeline) {
		p.preflight = check
	}
}

// Pipeline assembles clip reels using one configuration.
type Pipeline struct {
	cfg        *config.Config
	searcher   catalog.Searcher
	gateway    Gateway
	history    *history.Store
	httpClient *http.Client
	sink       progress.Sink
	sleeper    func(time.Duration)
	preflight  func(context.Context, *config.Config) []preflight.Result
	now        func() time.Time
	logger     *slog.Logger
}

// New builds a Pipeline from cfg. The catalog client and ffmpeg gateway are
// created from configuration unless supplied through options.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "config required", nil)
	}
	p := &Pipeline{
		cfg:        cfg,
		httpClient: &http.Client{},
		sink:       progress.Discard,
		preflight:  preflight.RunAll,
		now:        time.Now,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "pipeline")

	if p.searcher == nil {
		client, err := catalog.New(catalog.Options{
			APIKey:        cfg.Catalog.APIKey,
			BaseURL:       cfg.Catalog.BaseURL,
			PageSize:      cfg.Catalog.PageSize,
			MaxPages:      cfg.Catalog.MaxPages,
			MinCandidates: cfg.Catalog.MinCandidates,
		},
			catalog.WithHTTPClient(&http.Client{Timeout: cfg.CatalogTimeout()}),
			catalog.WithLogger(p.logger),
		)
		if err != nil {
			return nil, err
		}
		p.searcher = client
	}
	if p.gateway == nil {
		p.gateway = NewGateway(cfg, p.logger)
	}
	return p, nil
}

// NewGateway builds the ffmpeg gateway described by cfg.
func NewGateway(cfg *config.Config, logger *slog.Logger) *ffmpeg.Gateway {
	return ffmpeg.New(ffmpeg.Options{
		FFmpegBinary:     cfg.Encoding.FFmpegBinary,
		FFprobeBinary:    cfg.Encoding.FFprobeBinary,
		HardwareEncoders: cfg.Encoding.HardwareEncoders,
		ProbeTimeout:     cfg.ProbeTimeout(),
		SoftwarePreset:   cfg.Encoding.SoftwarePreset,
		SoftwareCRF:      cfg.Encoding.SoftwareCRF,
	}, ffmpeg.WithLogger(logger))
}

// Request describes one run. Zero target fields fall back to the [output]
// configuration; a zero Seed is replaced by a time-derived one.
type Request struct {
	Term   string
	Target catalog.Target
	Output string
	Seed   int64
}

// TargetFromConfig returns the configured default target.
func TargetFromConfig(cfg *config.Config) catalog.Target {
	return catalog.NewTarget(
		cfg.Output.DurationSeconds,
		cfg.Output.Width,
		cfg.Output.Height,
		cfg.Output.FrameRate,
		cfg.Output.Vertical,
	)
}

func (p *Pipeline) resolveTarget(t catalog.Target) catalog.Target {
	def := TargetFromConfig(p.cfg)
	if t.Duration <= 0 {
		t.Duration = def.Duration
	}
	if t.Width <= 0 || t.Height <= 0 {
		t.Width, t.Height = def.Width, def.Height
	}
	if t.FrameRate <= 0 {
		t.FrameRate = def.FrameRate
	}
	return t.Normalized()
}

func validateTarget(term string, t catalog.Target) error {
	if strings.TrimSpace(term) == "" {
		return services.Wrap(services.ErrValidation, "pipeline", "request", "search term required", nil)
	}
	if t.Duration <= 0 || t.Width <= 0 || t.Height <= 0 || t.FrameRate <= 0 {
		return services.Wrap(services.ErrValidation, "pipeline", "request", "target duration, size and frame rate must be positive", nil)
	}
	return nil
}
