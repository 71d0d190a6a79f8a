package ffmpeg

import (
	"regexp"
	"strconv"
)

var timePattern = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// ParseTime extracts the elapsed output time from an ffmpeg status line such
// as "frame=  120 fps=60 ... time=00:00:04.00 bitrate=...". Lines with
// time=N/A or no marker report false.
func ParseTime(line string) (float64, bool) {
	m := timePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	hours, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return float64(hours*3600+minutes*60) + seconds, true
}

// Percent converts elapsed seconds into a 0-100 percentage of total, or -1
// when total is unknown.
func Percent(elapsed, total float64) float64 {
	if total <= 0 {
		return -1
	}
	pct := elapsed / total * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
