package catalog

import (
	"math"
)

const (
	// MinClipDuration is the shortest entry, in seconds, worth downloading.
	MinClipDuration = 3
	// MaxFileSize caps a rendition's reported size.
	MaxFileSize int64 = 1 << 30

	resolutionTolerance = 0.10
	rateEpsilon         = 0.01
)

type dims struct{ w, h int }

// tierResolutions lists the accepted landscape renditions keyed by the
// target's short side.
var tierResolutions = map[int][]dims{
	720:  {{1280, 720}},
	1080: {{1920, 1080}, {2048, 1080}},
	2160: {{3840, 2160}, {4096, 2160}},
}

// nearRates lists frame rates accepted in place of the keyed target rate.
var nearRates = []struct {
	target   float64
	accepted []float64
}{
	{30, []float64{24, 25, 29.97}},
	{60, []float64{50, 59.94}},
	{25, []float64{24, 30}},
	{24, []float64{23.976, 25}},
	{29.97, []float64{30}},
	{59.94, []float64{60}},
}

// durationAllowed reports whether an entry's duration falls inside
// [MinClipDuration, max(60, target/2)].
func durationAllowed(duration int, target Target) bool {
	d := float64(duration)
	return d >= MinClipDuration && d <= target.MaxClipDuration()
}

// resolutionMatches accepts the tier's exact renditions for the target
// orientation or anything within ±10% of both target dimensions.
func resolutionMatches(width, height int, target Target) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	short := min(target.Width, target.Height)
	for _, d := range tierResolutions[short] {
		w, h := d.w, d.h
		if target.Vertical {
			w, h = h, w
		}
		if width == w && height == h {
			return true
		}
	}
	return within(width, target.Width) && within(height, target.Height)
}

func within(value, want int) bool {
	return math.Abs(float64(value-want)) <= resolutionTolerance*float64(want)
}

// frameRateMatches accepts the target rate or one of its near matches. An
// unknown (zero) rate never matches.
func frameRateMatches(rate, target float64) bool {
	if rate <= 0 {
		return false
	}
	if math.Abs(rate-target) < rateEpsilon {
		return true
	}
	for _, entry := range nearRates {
		if math.Abs(entry.target-target) >= rateEpsilon {
			continue
		}
		for _, accepted := range entry.accepted {
			if math.Abs(rate-accepted) < rateEpsilon {
				return true
			}
		}
	}
	return false
}

func sizeAllowed(size int64) bool {
	return size < MaxFileSize
}

// bestFile picks the widest qualifying rendition, breaking ties by the
// smaller reported size.
func bestFile(files []videoFile, target Target) (videoFile, bool) {
	var best videoFile
	found := false
	for _, f := range files {
		if f.Link == "" {
			continue
		}
		if !resolutionMatches(f.Width, f.Height, target) ||
			!frameRateMatches(f.FPS, target.FrameRate) ||
			!sizeAllowed(f.Size) {
			continue
		}
		if !found || f.Width > best.Width || (f.Width == best.Width && f.Size < best.Size) {
			best = f
			found = true
		}
	}
	return best, found
}

// toCandidate applies every entry-level filter. ok is false when the entry
// must be dropped.
func toCandidate(v video, target Target) (Candidate, bool) {
	if !durationAllowed(v.Duration, target) {
		return Candidate{}, false
	}
	file, ok := bestFile(v.VideoFiles, target)
	if !ok {
		return Candidate{}, false
	}
	c := Candidate{
		ID:        v.ID,
		URL:       file.Link,
		PageURL:   v.URL,
		Author:    v.User.Name,
		Duration:  v.Duration,
		Width:     file.Width,
		Height:    file.Height,
		FrameRate: file.FPS,
		FileSize:  file.Size,
		Quality:   file.Quality,
	}
	if c.Portrait() != target.Vertical {
		return Candidate{}, false
	}
	return c, true
}
