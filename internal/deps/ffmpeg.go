package deps

import "strings"

// MediaRequirements lists the binaries every pipeline run needs. Empty
// values fall back to ffmpeg and ffprobe on PATH.
func MediaRequirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     defaultCommand(ffmpegBinary, "ffmpeg"),
			Description: "Required for normalization and concatenation",
		},
		{
			Name:        "FFprobe",
			Command:     defaultCommand(ffprobeBinary, "ffprobe"),
			Description: "Required for clip inspection",
		},
	}
}

func defaultCommand(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
