// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual video/audio stream properties
//   - Format: container-level metadata (duration, size)
//
// Parse decodes a payload produced by running ffprobe with Args.
// Helper methods on Result extract the first video stream's dimensions and
// frame rate, and the container duration.
package ffprobe
