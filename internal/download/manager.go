package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"clipreel/internal/catalog"
	"clipreel/internal/fileutil"
	"clipreel/internal/logging"
	"clipreel/internal/media/ffprobe"
	"clipreel/internal/progress"
	"clipreel/internal/services"
)

const (
	defaultMaxAttempts     = 3
	defaultAttemptTimeout  = 2 * time.Minute
	stageName              = "download"
	defaultClipExtension   = ".mp4"
	maxClipExtensionLength = 5
)

// LocalClip is a candidate after it landed on disk. Duration, Width, and
// Height come from ffprobe when a prober is configured, otherwise from the
// catalog metadata.
type LocalClip struct {
	Candidate catalog.Candidate
	Path      string
	Duration  float64
	Width     int
	Height    int
	Bytes     int64
}

// Prober measures a downloaded file.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.Result, error)
}

// Error reports a transfer that exhausted its attempts or failed fatally.
// It matches services.ErrDownloadFailed via errors.Is.
type Error struct {
	Path     string
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download failed: %s after %d attempt(s): %v", e.Path, e.Attempts, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{services.ErrDownloadFailed, e.Err}
}

// Options configures a Manager.
type Options struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
}

// Option customizes a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for transfers.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSleeper overrides how retry delays are waited out (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(m *Manager) {
		m.sleeper = sleeper
	}
}

// WithProber measures each finished download.
func WithProber(prober Prober) Option {
	return func(m *Manager) {
		m.prober = prober
	}
}

// WithProgress receives a report as each FetchAll transfer completes.
func WithProgress(sink progress.Sink) Option {
	return func(m *Manager) {
		m.sink = progress.OrDiscard(sink)
	}
}

// Manager downloads clips under the shared Resources limits.
type Manager struct {
	resources      *Resources
	maxAttempts    int
	attemptTimeout time.Duration
	httpClient     *http.Client
	prober         Prober
	sleeper        func(time.Duration)
	sink           progress.Sink
	logger         *slog.Logger
}

// New builds a Manager around resources. A nil pool gets default sizes.
func New(resources *Resources, opts Options, extra ...Option) *Manager {
	if resources == nil {
		resources = NewResources(0, 0)
	}
	m := &Manager{
		resources:      resources,
		maxAttempts:    opts.MaxAttempts,
		attemptTimeout: opts.AttemptTimeout,
		httpClient:     &http.Client{},
		sink:           progress.Discard,
		logger:         logging.NewNop(),
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = defaultMaxAttempts
	}
	if m.attemptTimeout <= 0 {
		m.attemptTimeout = defaultAttemptTimeout
	}
	for _, opt := range extra {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, stageName)
	return m
}

// Fetch downloads candidate to dest, or to a numbered sibling when dest is
// taken. Cancellation returns the context error unchanged.
func (m *Manager) Fetch(ctx context.Context, candidate catalog.Candidate, dest string) (LocalClip, error) {
	if strings.TrimSpace(candidate.URL) == "" {
		return LocalClip{}, services.Wrap(services.ErrValidation, stageName, "fetch", "candidate has no URL", nil)
	}
	if strings.TrimSpace(dest) == "" {
		return LocalClip{}, services.Wrap(services.ErrValidation, stageName, "fetch", "empty destination", nil)
	}
	dest = filepath.Clean(dest)
	logger := logging.WithContext(ctx, m.logger)

	// A request queued behind a busy destination must not hold a download slot.
	final, unlock, err := m.claim(ctx, dest)
	if err != nil {
		return LocalClip{}, err
	}
	defer unlock()

	if err := m.resources.Downloads.Acquire(ctx, 1); err != nil {
		return LocalClip{}, err
	}
	defer m.resources.Downloads.Release(1)

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return LocalClip{}, &Error{Path: final, URL: candidate.URL, Attempts: 0, Err: err}
	}

	var (
		size    int64
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= m.maxAttempts; attempt++ {
		size, lastErr = m.transfer(ctx, candidate.URL, final)
		if lastErr == nil {
			break
		}
		class := classify(ctx, lastErr)
		if class == classCancelled {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return LocalClip{}, ctxErr
			}
			return LocalClip{}, lastErr
		}
		if !class.retryable() || attempt == m.maxAttempts {
			break
		}
		delay := class.backoff(attempt)
		logging.WarnWithContext(logger, "download attempt failed; retrying", "download_retry",
			logging.String("path", final),
			logging.Int("attempt", attempt),
			logging.String("failure_class", class.String()),
			logging.Duration("delay", delay),
			logging.Error(lastErr),
			logging.String(logging.FieldErrorHint, "check network connectivity and disk access"),
			logging.String(logging.FieldImpact, "clip delayed"),
		)
		if err := m.sleep(ctx, delay); err != nil {
			return LocalClip{}, err
		}
	}
	if lastErr != nil {
		if attempt > m.maxAttempts {
			attempt = m.maxAttempts
		}
		return LocalClip{}, &Error{Path: final, URL: candidate.URL, Attempts: attempt, Err: lastErr}
	}

	clip := LocalClip{
		Candidate: candidate,
		Path:      final,
		Duration:  float64(candidate.Duration),
		Width:     candidate.Width,
		Height:    candidate.Height,
		Bytes:     size,
	}
	m.measure(ctx, logger, &clip)
	logger.Debug("clip downloaded",
		logging.String("path", final),
		logging.String("size", humanize.Bytes(uint64(size))),
		logging.Int("attempts", attempt),
	)
	return clip, nil
}

// claim locks dest and picks the path the clip will be written to. When dest
// is taken the numbered sibling is locked as well and re-checked, so a request
// whose own destination is that sibling can never be overwritten by the rename.
func (m *Manager) claim(ctx context.Context, dest string) (string, func(), error) {
	unlockDest, err := m.resources.Locks.Lock(ctx, dest)
	if err != nil {
		return "", nil, err
	}
	for {
		final := fileutil.UniquePath(dest)
		if final == dest {
			return final, unlockDest, nil
		}
		unlockFinal, err := m.resources.Locks.Lock(ctx, final)
		if err != nil {
			unlockDest()
			return "", nil, err
		}
		if !fileutil.Exists(final) {
			return final, func() {
				unlockFinal()
				unlockDest()
			}, nil
		}
		// Another holder committed final while we waited; pick again.
		unlockFinal()
	}
}

func (m *Manager) transfer(ctx context.Context, url, final string) (int64, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &statusError{Code: resp.StatusCode, URL: url}
	}

	tmp, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".*.part")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = fileutil.RemoveQuietly(tmpPath)
		}
	}()

	written, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return 0, copyErr
	}
	if closeErr != nil {
		return 0, closeErr
	}
	if written == 0 {
		return 0, errEmptyBody
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return 0, err
	}
	committed = true
	return written, nil
}

func (m *Manager) measure(ctx context.Context, logger *slog.Logger, clip *LocalClip) {
	if m.prober == nil {
		return
	}
	result, err := m.prober.Probe(ctx, clip.Path)
	if err != nil {
		logger.Debug("probe after download failed; keeping catalog metadata",
			logging.String("path", clip.Path),
			logging.Error(err),
		)
		return
	}
	if w, h := result.Dimensions(); w > 0 && h > 0 {
		clip.Width, clip.Height = w, h
	}
	if d := result.DurationSeconds(); d > 0 {
		clip.Duration = d
	}
}

// Batch holds FetchAll results keyed by input index. Exactly one of
// Clips[i] and Errors[i] is set for every index.
type Batch struct {
	Clips  []*LocalClip
	Errors []error
}

// Succeeded returns the downloaded clips in input order.
func (b Batch) Succeeded() []LocalClip {
	out := make([]LocalClip, 0, len(b.Clips))
	for _, clip := range b.Clips {
		if clip != nil {
			out = append(out, *clip)
		}
	}
	return out
}

// Failed counts indices that did not produce a clip.
func (b Batch) Failed() int {
	n := 0
	for _, err := range b.Errors {
		if err != nil {
			n++
		}
	}
	return n
}

// Bytes sums the sizes of the downloaded clips.
func (b Batch) Bytes() int64 {
	var total int64
	for _, clip := range b.Clips {
		if clip != nil {
			total += clip.Bytes
		}
	}
	return total
}

// FetchAll downloads every candidate into dir concurrently. Individual
// failures are recorded per index; the returned error is non-nil only when
// ctx was cancelled.
func (m *Manager) FetchAll(ctx context.Context, candidates []catalog.Candidate, dir string) (Batch, error) {
	batch := Batch{
		Clips:  make([]*LocalClip, len(candidates)),
		Errors: make([]error, len(candidates)),
	}
	if len(candidates) == 0 {
		return batch, nil
	}
	logger := logging.WithContext(ctx, m.logger)
	total := len(candidates)
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	for i, candidate := range candidates {
		g.Go(func() error {
			clipCtx := services.WithClipIndex(gctx, i)
			clip, err := m.Fetch(clipCtx, candidate, filepath.Join(dir, ClipFileName(i, candidate)))
			if err != nil {
				batch.Errors[i] = err
				if services.IsCancelled(err) {
					return err
				}
				logging.WarnWithContext(logger, "clip download failed", "download_failed",
					logging.Int(logging.FieldClipIndex, i),
					logging.String("url", candidate.URL),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "the clip host may be unavailable; rerun to pick other clips"),
					logging.String(logging.FieldImpact, "clip skipped"),
				)
			} else {
				batch.Clips[i] = &clip
			}
			n := done.Add(1)
			m.sink.Report(fmt.Sprintf("download: %d/%d clips", n, total), float64(n)/float64(total)*100)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return batch, err
	}
	if err := ctx.Err(); err != nil {
		return batch, err
	}
	logger.Info("downloads complete",
		logging.Int("requested", total),
		logging.Int("failed", batch.Failed()),
		logging.String("bytes", humanize.Bytes(uint64(batch.Bytes()))),
	)
	return batch, nil
}

// ClipFileName is the destination base name for the clip at index.
func ClipFileName(index int, candidate catalog.Candidate) string {
	ext := strings.ToLower(path.Ext(urlPath(candidate.URL)))
	if ext == "" || len(ext) > maxClipExtensionLength {
		ext = defaultClipExtension
	}
	if candidate.ID > 0 {
		return fmt.Sprintf("clip_%03d_%d%s", index, candidate.ID, ext)
	}
	return fmt.Sprintf("clip_%03d%s", index, ext)
}

func urlPath(raw string) string {
	raw, _, _ = strings.Cut(raw, "?")
	raw, _, _ = strings.Cut(raw, "#")
	return raw
}
