package catalog

import (
	"fmt"
	"math"
)

// Candidate is one downloadable rendition of a catalog entry. Identity is URL.
type Candidate struct {
	ID        int64
	URL       string
	PageURL   string
	Author    string
	Duration  int
	Width     int
	Height    int
	FrameRate float64
	// FileSize is the reported size in bytes; 0 means unknown.
	FileSize int64
	Quality  string
}

// Portrait reports whether the rendition is taller than it is wide.
func (c Candidate) Portrait() bool {
	return c.Height > c.Width
}

// Resolution renders WxH.
func (c Candidate) Resolution() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}

// Target describes the requested output: total duration in seconds plus the
// resolution, frame rate, and orientation every clip is normalized to.
type Target struct {
	Duration  int
	Width     int
	Height    int
	FrameRate float64
	Vertical  bool
}

// NewTarget builds a Target whose dimensions agree with its orientation:
// Vertical implies Height > Width. Mismatched dimensions are swapped and a
// non-positive frame rate becomes 30.
func NewTarget(duration, width, height int, frameRate float64, vertical bool) Target {
	t := Target{Duration: duration, Width: width, Height: height, FrameRate: frameRate, Vertical: vertical}
	return t.Normalized()
}

// Normalized returns a copy with orientation and dimensions reconciled.
func (t Target) Normalized() Target {
	if t.Width != t.Height && t.Vertical != (t.Height > t.Width) {
		t.Width, t.Height = t.Height, t.Width
	}
	if t.FrameRate <= 0 {
		t.FrameRate = 30
	}
	return t
}

// Orientation returns the catalog orientation filter for the target.
func (t Target) Orientation() string {
	switch {
	case t.Vertical:
		return "portrait"
	case t.Width == t.Height:
		return "square"
	default:
		return "landscape"
	}
}

// MaxClipDuration is the longest entry accepted for this target.
func (t Target) MaxClipDuration() float64 {
	return math.Max(60, float64(t.Duration)/2)
}

// Resolution renders WxH.
func (t Target) Resolution() string {
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}
