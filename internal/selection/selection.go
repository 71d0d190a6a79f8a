// Package selection chooses which catalog candidates make up a video so their
// durations add up close to the requested length.
//
// Selection is a shuffled greedy pass followed by an optional top-up pass with
// looser limits. Thresholds are ratios of the target duration and are compared
// in float64 with inclusive bounds.
package selection

import (
	"math"
	"math/rand/v2"
	"time"

	"clipreel/internal/catalog"
)

const (
	exactPoolMinimum = 3
	exactFrameRate   = 30.0
	rateEpsilon      = 0.01

	greedyClipCap   = 60.0
	greedyCeiling   = 1.10
	countFloor      = 10.0
	countDivisor    = 15.0
	topUpClipCap    = 30.0
	topUpCeiling    = 1.15
	topUpShortRatio = 0.8
	topUpStopRatio  = 0.9
	topUpMinClips   = 2
)

// Set is the ordered result of a selection. URLs are unique.
type Set struct {
	Clips []catalog.Candidate
}

// TotalDuration sums the catalog durations of the selected clips.
func (s Set) TotalDuration() int {
	total := 0
	for _, c := range s.Clips {
		total += c.Duration
	}
	return total
}

// Len returns the number of selected clips.
func (s Set) Len() int { return len(s.Clips) }

// Empty reports whether nothing was selected.
func (s Set) Empty() bool { return len(s.Clips) == 0 }

// NewRand returns a generator seeded from seed, or from the clock when seed is 0.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Select picks clips for target from candidates. rng drives the shuffle; nil
// uses a clock-seeded generator. The input slice is not modified. An empty
// Set means no candidate fit.
func Select(candidates []catalog.Candidate, target catalog.Target, rng *rand.Rand) Set {
	if rng == nil {
		rng = NewRand(0)
	}
	target = target.Normalized()
	d := float64(target.Duration)
	if d <= 0 || len(candidates) == 0 {
		return Set{}
	}

	pool := append([]catalog.Candidate(nil), candidates...)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	primary := pool
	if exact := exactFormat(pool, target); len(exact) >= exactPoolMinimum {
		primary = exact
	}

	s := &selector{target: target, seen: make(map[string]struct{})}

	maxCount := math.Max(countFloor, d/countDivisor)
	greedyCap := math.Min(greedyClipCap, d/3)
	for _, c := range primary {
		if s.acc >= d || float64(len(s.picked)) >= maxCount {
			break
		}
		s.offer(c, greedyCap, greedyCeiling*d)
	}

	if len(s.picked) < topUpMinClips || s.acc < topUpShortRatio*d {
		topUpCap := math.Min(topUpClipCap, d/4)
		for _, c := range pool {
			if s.acc >= topUpStopRatio*d {
				break
			}
			s.offer(c, topUpCap, topUpCeiling*d)
		}
	}

	return Set{Clips: s.picked}
}

type selector struct {
	target catalog.Target
	seen   map[string]struct{}
	picked []catalog.Candidate
	acc    float64
}

// offer accepts c when it is new, short enough, correctly oriented, and fits
// under ceiling.
func (s *selector) offer(c catalog.Candidate, clipCap, ceiling float64) bool {
	if _, dup := s.seen[c.URL]; dup {
		return false
	}
	dur := float64(c.Duration)
	if dur <= 0 || dur > clipCap {
		return false
	}
	if c.Portrait() != s.target.Vertical {
		return false
	}
	if s.acc+dur > ceiling {
		return false
	}
	s.seen[c.URL] = struct{}{}
	s.picked = append(s.picked, c)
	s.acc += dur
	return true
}

func exactFormat(pool []catalog.Candidate, target catalog.Target) []catalog.Candidate {
	var exact []catalog.Candidate
	for _, c := range pool {
		if c.Width == target.Width && c.Height == target.Height && math.Abs(c.FrameRate-exactFrameRate) < rateEpsilon {
			exact = append(exact, c)
		}
	}
	return exact
}
