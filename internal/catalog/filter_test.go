package catalog

import "testing"

func TestNewTargetReconcilesOrientation(t *testing.T) {
	target := NewTarget(60, 1920, 1080, 0, true)
	if target.Width != 1080 || target.Height != 1920 {
		t.Fatalf("expected swap for vertical target, got %s", target.Resolution())
	}
	if target.FrameRate != 30 {
		t.Fatalf("expected default frame rate 30, got %v", target.FrameRate)
	}
	if target.Orientation() != "portrait" {
		t.Fatalf("orientation = %q", target.Orientation())
	}

	landscape := NewTarget(60, 1080, 1920, 25, false)
	if landscape.Width != 1920 || landscape.Height != 1080 || landscape.Orientation() != "landscape" {
		t.Fatalf("unexpected landscape target %+v", landscape)
	}
	square := NewTarget(60, 1080, 1080, 30, true)
	if square.Width != 1080 || square.Height != 1080 {
		t.Fatalf("square target changed: %+v", square)
	}
}

func TestDurationAllowed(t *testing.T) {
	short := Target{Duration: 60}
	long := Target{Duration: 300}
	tests := []struct {
		duration int
		target   Target
		want     bool
	}{
		{2, short, false},
		{3, short, true},
		{60, short, true},
		{61, short, false},
		{150, long, true},
		{151, long, false},
	}
	for _, tt := range tests {
		if got := durationAllowed(tt.duration, tt.target); got != tt.want {
			t.Errorf("durationAllowed(%d, D=%d) = %v, want %v", tt.duration, tt.target.Duration, got, tt.want)
		}
	}
}

func TestResolutionMatches(t *testing.T) {
	hd := NewTarget(60, 1920, 1080, 30, false)
	vertical := NewTarget(60, 1080, 1920, 30, true)
	tests := []struct {
		name   string
		w, h   int
		target Target
		want   bool
	}{
		{"exact", 1920, 1080, hd, true},
		{"dci tier", 2048, 1080, hd, true},
		{"within ten percent", 2100, 1150, hd, true},
		{"too wide", 2200, 1080, hd, false},
		{"720p is out of tolerance", 1280, 720, hd, false},
		{"vertical tier", 1080, 2048, vertical, true},
		{"vertical rejects landscape", 1920, 1080, vertical, false},
		{"zero", 0, 0, hd, false},
	}
	for _, tt := range tests {
		if got := resolutionMatches(tt.w, tt.h, tt.target); got != tt.want {
			t.Errorf("%s: resolutionMatches(%d, %d) = %v, want %v", tt.name, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestFrameRateMatches(t *testing.T) {
	tests := []struct {
		rate, target float64
		want         bool
	}{
		{30, 30, true},
		{29.97002997, 30, true},
		{25, 30, true},
		{24, 30, true},
		{23.976, 30, false},
		{60, 30, false},
		{50, 60, true},
		{59.94005994, 60, true},
		{23.976023, 24, true},
		{30, 29.97, true},
		{0, 30, false},
		{48, 48, true},
	}
	for _, tt := range tests {
		if got := frameRateMatches(tt.rate, tt.target); got != tt.want {
			t.Errorf("frameRateMatches(%v, %v) = %v, want %v", tt.rate, tt.target, got, tt.want)
		}
	}
}

func TestBestFilePrefersWidestThenSmallest(t *testing.T) {
	target := NewTarget(60, 1920, 1080, 30, false)
	files := []videoFile{
		{Link: "a", Width: 1920, Height: 1080, FPS: 30, Size: 5000},
		{Link: "b", Width: 2048, Height: 1080, FPS: 25, Size: 9000},
		{Link: "c", Width: 2048, Height: 1080, FPS: 30, Size: 7000},
		{Link: "d", Width: 3840, Height: 2160, FPS: 30, Size: 100},
		{Link: "e", Width: 2000, Height: 1100, FPS: 30, Size: MaxFileSize},
		{Link: "", Width: 2048, Height: 1080, FPS: 30, Size: 1},
	}
	best, ok := bestFile(files, target)
	if !ok || best.Link != "c" {
		t.Fatalf("expected c, got %+v (ok=%v)", best, ok)
	}
}

func TestBestFileUnknownSizePasses(t *testing.T) {
	target := NewTarget(60, 1280, 720, 30, false)
	best, ok := bestFile([]videoFile{{Link: "x", Width: 1280, Height: 720, FPS: 30}}, target)
	if !ok || best.Link != "x" {
		t.Fatalf("expected unknown size to pass, got %+v", best)
	}
}

func TestToCandidateDropsOrientationMismatch(t *testing.T) {
	target := NewTarget(60, 1080, 1080, 30, false)
	v := video{ID: 1, Duration: 10, VideoFiles: []videoFile{{Link: "sq", Width: 1000, Height: 1100, FPS: 30}}}
	if _, ok := toCandidate(v, target); ok {
		t.Fatal("portrait rendition must be dropped for a landscape target")
	}
	v.VideoFiles[0].Width, v.VideoFiles[0].Height = 1100, 1000
	c, ok := toCandidate(v, target)
	if !ok || c.URL != "sq" || c.Duration != 10 {
		t.Fatalf("unexpected candidate %+v (ok=%v)", c, ok)
	}
}
