// Package progress defines the sink stages report incremental progress to and
// a few ready-made sinks: structured log lines, a terminal bar, plain
// callbacks, and fan-out.
package progress

import (
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"

	"clipreel/internal/logging"
)

// Indeterminate marks a report whose completion percentage is unknown.
const Indeterminate = -1.0

// Sink receives progress reports. Percent is 0-100 or Indeterminate.
// Implementations must be safe for concurrent use.
type Sink interface {
	Report(message string, percent float64)
}

// Func adapts a function to Sink.
type Func func(message string, percent float64)

func (f Func) Report(message string, percent float64) {
	if f != nil {
		f(message, percent)
	}
}

type nopSink struct{}

func (nopSink) Report(string, float64) {}

// Discard drops every report.
var Discard Sink = nopSink{}

// OrDiscard returns sink, or Discard when sink is nil.
func OrDiscard(sink Sink) Sink {
	if sink == nil {
		return Discard
	}
	return sink
}

type multiSink []Sink

func (m multiSink) Report(message string, percent float64) {
	for _, s := range m {
		s.Report(message, percent)
	}
}

// Multi fans each report out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return Discard
	}
	return out
}

type prefixSink struct {
	prefix string
	next   Sink
}

func (p prefixSink) Report(message string, percent float64) {
	p.next.Report(p.prefix+message, percent)
}

// WithPrefix prepends prefix to every message.
func WithPrefix(sink Sink, prefix string) Sink {
	return prefixSink{prefix: prefix, next: OrDiscard(sink)}
}

// LogSink writes sampled progress reports as info log lines.
type LogSink struct {
	mu      sync.Mutex
	logger  *slog.Logger
	sampler *logging.ProgressSampler
}

// NewLogSink returns a sink that logs when the message changes or percent
// crosses a step boundary.
func NewLogSink(logger *slog.Logger, step float64) *LogSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogSink{logger: logger, sampler: logging.NewProgressSampler(step)}
}

func (s *LogSink) Report(message string, percent float64) {
	s.mu.Lock()
	emit := s.sampler.ShouldLog(labelOf(message), percent)
	s.mu.Unlock()
	if !emit {
		return
	}
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "progress")}
	if percent >= 0 {
		attrs = append(attrs, logging.Float64("percent", math.Round(percent*10)/10))
	}
	s.logger.Info(message, logging.Args(attrs...)...)
}

// labelOf keys sampling on the message up to the first colon so
// "normalize clip 3: 00:04" and "normalize clip 3: 00:05" share a bucket.
func labelOf(message string) string {
	label, _, _ := strings.Cut(message, ":")
	return label
}

// BarSink renders reports on a terminal progress bar scaled 0-100.
type BarSink struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewBarSink draws a bar on w.
func NewBarSink(w io.Writer, description string) *BarSink {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	return &BarSink{bar: bar}
}

func (b *BarSink) Report(message string, percent float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar.Describe(message)
	if percent >= 0 {
		_ = b.bar.Set(int(math.Min(percent, 100)))
	}
}

// Finish completes and clears the bar.
func (b *BarSink) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar.Finish()
}
