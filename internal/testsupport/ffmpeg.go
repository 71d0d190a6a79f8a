package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"clipreel/internal/ffmpeg"
)

// Media describes what the fake ffprobe reports for a path.
type Media struct {
	Width     int
	Height    int
	Duration  float64
	FrameRate string
}

// FakeFFmpeg is an in-memory ffmpeg.Executor. ffprobe answers come from the
// Media registry; transcodes write a small placeholder output and register it
// with the dimensions requested by the scale filter.
type FakeFFmpeg struct {
	mu sync.Mutex

	media map[string]Media
	calls [][]string

	// WorkingEncoders lists hardware encoders whose capability test passes.
	WorkingEncoders []string
	// FailEncoders makes transcodes that use the named encoder exit 1.
	FailEncoders map[string]bool
	// FailInputs makes transcodes reading the named input exit 1 with any encoder.
	FailInputs map[string]bool
	// ProgressLines are emitted to the line callback during each transcode.
	ProgressLines []string
	// Hang blocks transcodes until the context ends.
	Hang bool
	// SkipOutput makes successful transcodes leave no output file behind.
	SkipOutput bool
	// VersionErr makes `ffmpeg -version` fail.
	VersionErr error
	// Resolve answers probes for unregistered paths before Default is tried.
	Resolve func(path string) (Media, bool)
	// Default answers probes for unregistered paths that exist on disk.
	Default *Media
}

// NewFakeFFmpeg returns a fake with no registered media.
func NewFakeFFmpeg() *FakeFFmpeg {
	return &FakeFFmpeg{media: make(map[string]Media), FailEncoders: map[string]bool{}, FailInputs: map[string]bool{}}
}

// SetMedia registers the probe answer for path.
func (f *FakeFFmpeg) SetMedia(path string, m Media) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media[path] = m
}

// MediaFor returns the registered probe answer for path.
func (f *FakeFFmpeg) MediaFor(path string) (Media, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[path]
	return m, ok
}

// Calls returns a copy of every invocation as binary followed by args.
func (f *FakeFFmpeg) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// EncodersUsed returns the -c:v value of every transcode (capability tests excluded).
func (f *FakeFFmpeg) EncodersUsed() []string {
	var used []string
	for _, call := range f.Calls() {
		if slices.Contains(call, "lavfi") {
			continue
		}
		if enc := argAfter(call, "-c:v"); enc != "" {
			used = append(used, enc)
		}
	}
	return used
}

func (f *FakeFFmpeg) record(binary string, args []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{binary}, args...))
}

// Output implements ffmpeg.Executor.
func (f *FakeFFmpeg) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	f.record(binary, args)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if slices.Contains(args, "-version") {
		if f.VersionErr != nil {
			return nil, f.VersionErr
		}
		return []byte("ffmpeg version 7.1-fake Copyright (c) 2000-2024\nbuilt with gcc\n"), nil
	}
	path := args[len(args)-1]
	m, ok := f.lookup(path)
	if !ok {
		return nil, &ffmpeg.ExitError{Binary: binary, Code: 1, Output: path + ": No such file or directory"}
	}
	return probeJSON(path, m), nil
}

// Run implements ffmpeg.Executor.
func (f *FakeFFmpeg) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	f.record(binary, args)
	if err := ctx.Err(); err != nil {
		return err
	}
	encoder := argAfter(args, "-c:v")
	if slices.Contains(args, "lavfi") {
		if slices.Contains(f.WorkingEncoders, encoder) {
			return nil
		}
		return &ffmpeg.ExitError{Binary: binary, Code: 1, Output: "Unknown encoder '" + encoder + "'"}
	}

	for _, line := range f.ProgressLines {
		if onLine != nil {
			onLine(line)
		}
	}
	if f.Hang {
		<-ctx.Done()
		return ctx.Err()
	}
	input := argAfter(args, "-i")
	if f.FailEncoders[encoder] || f.FailInputs[input] {
		return &ffmpeg.ExitError{Binary: binary, Code: 1, Output: "Error while opening encoder " + encoder}
	}
	if f.SkipOutput {
		return nil
	}

	output := args[len(args)-1]
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(output, []byte("fake video"), 0o644); err != nil {
		return err
	}
	f.SetMedia(output, f.outputMedia(args, input))
	return nil
}

var scalePattern = regexp.MustCompile(`scale=(\d+):(\d+)`)

func (f *FakeFFmpeg) outputMedia(args []string, input string) Media {
	out := Media{FrameRate: "30/1"}
	if m := scalePattern.FindStringSubmatch(argAfter(args, "-vf")); m != nil {
		out.Width, _ = strconv.Atoi(m[1])
		out.Height, _ = strconv.Atoi(m[2])
	}
	if slices.Contains(args, "concat") {
		for i, entry := range manifestEntries(input) {
			in, _ := f.lookup(entry)
			out.Duration += in.Duration
			if i == 0 && out.Width == 0 {
				out.Width, out.Height = in.Width, in.Height
			}
		}
		return out
	}
	if in, ok := f.lookup(input); ok {
		out.Duration = in.Duration
		if out.Width == 0 {
			out.Width, out.Height = in.Width, in.Height
		}
	}
	return out
}

// lookup answers from the registry, then Resolve, then Default for files
// that exist on disk.
func (f *FakeFFmpeg) lookup(path string) (Media, bool) {
	if m, ok := f.MediaFor(path); ok {
		return m, true
	}
	if _, err := os.Stat(path); err != nil {
		return Media{}, false
	}
	if f.Resolve != nil {
		if m, ok := f.Resolve(path); ok {
			return m, true
		}
	}
	if f.Default != nil {
		return *f.Default, true
	}
	return Media{}, false
}

// manifestEntries reads the paths listed in an ffmpeg concat manifest.
func manifestEntries(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var entries []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "file '") || !strings.HasSuffix(line, "'") {
			continue
		}
		quoted := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		entries = append(entries, strings.ReplaceAll(quoted, `'\''`, "'"))
	}
	return entries
}

func argAfter(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func probeJSON(path string, m Media) []byte {
	rate := m.FrameRate
	if strings.TrimSpace(rate) == "" {
		rate = "30/1"
	}
	payload := map[string]any{
		"streams": []map[string]any{{
			"index":          0,
			"codec_type":     "video",
			"codec_name":     "h264",
			"width":          m.Width,
			"height":         m.Height,
			"avg_frame_rate": rate,
			"r_frame_rate":   rate,
		}},
		"format": map[string]any{
			"filename": path,
			"duration": fmt.Sprintf("%.3f", m.Duration),
		},
	}
	data, _ := json.Marshal(payload)
	return data
}
