// Package logging assembles structured slog loggers and formatting helpers used
// across clipreel.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so stage code can tag log lines with run
// IDs, stage names, and clip indexes. The package also provides a no-op logger
// for tests and a ProgressSampler that keeps chatty encoder progress out of the
// log unless a bucket boundary is crossed.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the pipeline.
package logging
