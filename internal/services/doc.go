// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and clip indexes for
//     logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (transient, timeout, external tool, no valid inputs) with
//     errors.Is instead of matching strings.
//   - Outcome/IsCancelled helpers that keep cancellation distinct from failure.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
