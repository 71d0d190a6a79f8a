package logging

import (
	"math"
	"strings"
)

// ProgressSampler throttles progress logging. A report is emitted when the
// label changes or the percentage enters a new bucket; indeterminate (negative)
// percentages only emit on label changes.
type ProgressSampler struct {
	step   float64
	label  string
	bucket int
}

// NewProgressSampler returns a sampler with the given bucket width in percent.
// Non-positive widths fall back to 10.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 10
	}
	return &ProgressSampler{step: step, bucket: -1}
}

// ShouldLog reports whether the progress update deserves a log line.
func (s *ProgressSampler) ShouldLog(label string, percent float64) bool {
	if s == nil {
		return true
	}
	label = strings.TrimSpace(label)
	emit := false
	if label != "" && label != s.label {
		s.label = label
		s.bucket = -1
		emit = true
	}
	if percent < 0 {
		return emit
	}
	bucket := int(math.Floor(math.Min(percent, 100) / s.step))
	if bucket > s.bucket {
		s.bucket = bucket
		emit = true
	}
	return emit
}

// Reset forgets the last label and bucket.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.label = ""
	s.bucket = -1
}
