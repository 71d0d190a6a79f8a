// Package ffmpeg is the encoder gateway: the single place clipreel starts
// ffmpeg and ffprobe processes.
//
// A Gateway wraps an Executor (real processes by default, stubs in tests) and
// offers version and media probes, hardware encoder capability tests, ordered
// encoder strategies (hardware first, libx264 last), and transcodes that stream
// `time=` progress back to the caller. Processes run in their own process
// group so cancellation or a deadline kills ffmpeg and any helpers it spawned.
//
// Non-zero exits surface as *ExitError carrying the tail of the captured
// output; the error matches services.ErrExternalTool under errors.Is.
package ffmpeg
