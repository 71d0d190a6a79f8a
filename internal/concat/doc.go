// Package concat joins normalized clips into the final output with a single
// ffmpeg concat-demuxer pass.
package concat
