package normalize_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"clipreel/internal/catalog"
	"clipreel/internal/download"
	"clipreel/internal/ffmpeg"
	"clipreel/internal/fileutil"
	"clipreel/internal/normalize"
	"clipreel/internal/progress"
	"clipreel/internal/services"
	"clipreel/internal/testsupport"
)

var hd = catalog.NewTarget(60, 1920, 1080, 30, false)

type fixture struct {
	fake   *testsupport.FakeFFmpeg
	engine *normalize.Engine
	dir    string
}

func newFixture(t *testing.T, hardware []string, opts ...normalize.Option) fixture {
	t.Helper()
	fake := testsupport.NewFakeFFmpeg()
	gateway := ffmpeg.New(ffmpeg.Options{HardwareEncoders: hardware}, ffmpeg.WithExecutor(fake))
	return fixture{
		fake:   fake,
		engine: normalize.New(gateway, download.NewResources(3, 4), opts...),
		dir:    t.TempDir(),
	}
}

func (f fixture) clip(t *testing.T, name string, width, height int) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	testsupport.WriteFile(t, path, 64)
	f.fake.SetMedia(path, testsupport.Media{Width: width, Height: height, Duration: 10})
	return path
}

func TestNormalizePassesThroughMatchingAspect(t *testing.T) {
	f := newFixture(t, []string{})
	a := f.clip(t, "a.mp4", 1920, 1080)
	b := f.clip(t, "b.mp4", 1280, 720)
	c := f.clip(t, "c.mp4", 1080, 1920)

	result, err := f.engine.Normalize(context.Background(), []string{a, b, c}, hd, 2)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if result.Passed != 2 || result.Reencoded != 1 || len(result.Failures) != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	want := []string{a, b, filepath.Join(f.dir, "c_norm.mp4")}
	if got := result.Ordered(); !slices.Equal(got, want) {
		t.Fatalf("Ordered() = %v, want %v", got, want)
	}
	if fileutil.Exists(c) {
		t.Fatal("original of re-encoded clip should be removed")
	}
	if !fileutil.Exists(a) || !fileutil.Exists(b) {
		t.Fatal("pass-through clips must be left in place")
	}
	media, ok := f.fake.MediaFor(want[2])
	if !ok || media.Width != 1920 || media.Height != 1080 {
		t.Fatalf("re-encoded clip has wrong dimensions: %+v", media)
	}
}

func TestNormalizeFallsBackToSoftware(t *testing.T) {
	f := newFixture(t, []string{"h264_nvenc"})
	f.fake.WorkingEncoders = []string{"h264_nvenc"}
	f.fake.FailEncoders["h264_nvenc"] = true
	c := f.clip(t, "c.mp4", 1080, 1920)

	result, err := f.engine.Normalize(context.Background(), []string{c}, hd, 1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Reencoded != 1 {
		t.Fatalf("expected software retry to succeed, got %+v", result)
	}
	if got := f.fake.EncodersUsed(); !slices.Equal(got, []string{"h264_nvenc", "libx264"}) {
		t.Fatalf("encoders used = %v", got)
	}
}

func TestNormalizeProbesHardwareOncePerCall(t *testing.T) {
	f := newFixture(t, nil)
	paths := []string{
		f.clip(t, "a.mp4", 1080, 1920),
		f.clip(t, "b.mp4", 720, 1280),
		f.clip(t, "c.mp4", 640, 640),
	}
	result, err := f.engine.Normalize(context.Background(), paths, hd, 3)
	if err != nil {
		t.Fatal(err)
	}
	if result.Reencoded != 3 {
		t.Fatalf("expected 3 re-encodes, got %+v", result)
	}
	tests := 0
	for _, call := range f.fake.Calls() {
		if slices.Contains(call, "lavfi") {
			tests++
		}
	}
	if tests != len(ffmpeg.DefaultHardwareEncoders) {
		t.Fatalf("expected one capability probe per encoder, got %d", tests)
	}
	for _, enc := range f.fake.EncodersUsed() {
		if enc != "libx264" {
			t.Fatalf("unexpected encoder %s", enc)
		}
	}
}

func TestNormalizeRecordsPerClipFailures(t *testing.T) {
	f := newFixture(t, []string{})
	a := f.clip(t, "a.mp4", 1080, 1920)
	b := f.clip(t, "b.mp4", 1080, 1920)
	missing := filepath.Join(f.dir, "missing.mp4")
	f.fake.FailInputs[b] = true

	result, err := f.engine.Normalize(context.Background(), []string{a, b, missing}, hd, 2)
	if err != nil {
		t.Fatalf("partial failure should not fail the batch: %v", err)
	}
	if _, ok := result.Paths[0]; !ok {
		t.Fatal("clip 0 should have succeeded")
	}
	if !errors.Is(result.Failures[1], services.ErrExternalTool) {
		t.Fatalf("clip 1 failure = %v", result.Failures[1])
	}
	if result.Failures[2] == nil {
		t.Fatal("clip 2 should fail to probe")
	}
	if !fileutil.Exists(b) {
		t.Fatal("original of a failed clip must be kept")
	}
	if fileutil.Exists(filepath.Join(f.dir, "b_norm.mp4")) {
		t.Fatal("partial output left behind")
	}
	if len(result.Ordered()) != 1 {
		t.Fatalf("expected one usable clip, got %v", result.Ordered())
	}
}

func TestNormalizeMissingOutputIsFailure(t *testing.T) {
	f := newFixture(t, []string{})
	f.fake.SkipOutput = true
	c := f.clip(t, "c.mp4", 1080, 1920)
	result, err := f.engine.Normalize(context.Background(), []string{c}, hd, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(result.Failures[0], services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", result.Failures[0])
	}
}

func TestNormalizeCancelledBeforeStart(t *testing.T) {
	f := newFixture(t, []string{})
	c := f.clip(t, "c.mp4", 1080, 1920)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.engine.Normalize(ctx, []string{c}, hd, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(result.Paths)+len(result.Failures) != 0 {
		t.Fatalf("no clip should have been processed: %+v", result)
	}
	if len(f.fake.Calls()) != 0 {
		t.Fatal("no ffmpeg invocation expected after cancellation")
	}
}

func TestNormalizeAbandonsInFlightWorkOnCancel(t *testing.T) {
	f := newFixture(t, []string{})
	f.fake.Hang = true
	paths := []string{f.clip(t, "a.mp4", 1080, 1920), f.clip(t, "b.mp4", 1080, 1920)}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	result, err := f.engine.Normalize(ctx, paths, hd, 2)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("cancellation did not stop in-flight work")
	}
	if len(result.Failures) != 0 {
		t.Fatalf("cancelled clips must not be recorded as failures: %v", result.Failures)
	}
	for _, p := range paths {
		if !fileutil.Exists(p) {
			t.Fatalf("original %s removed after cancellation", p)
		}
	}
}

func TestNormalizeReportsProgress(t *testing.T) {
	var (
		mu      sync.Mutex
		reports []float64
	)
	sink := progress.Func(func(message string, percent float64) {
		if !strings.HasPrefix(message, "normalize clip 1") {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, percent)
	})
	f := newFixture(t, []string{}, normalize.WithProgress(sink))
	f.fake.ProgressLines = []string{
		"frame=  150 fps=60 q=28.0 size=512kB time=00:00:05.00 bitrate=838.9kbits/s speed=2x",
		"frame=  300 fps=60 q=28.0 size=1024kB time=N/A bitrate=N/A speed=2x",
	}
	c := f.clip(t, "c.mp4", 1080, 1920)
	if _, err := f.engine.Normalize(context.Background(), []string{c}, hd, 1); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(reports, []float64{50, 100}) {
		t.Fatalf("progress reports = %v", reports)
	}
}

func TestNormalizeRejectsEmptyTarget(t *testing.T) {
	f := newFixture(t, []string{})
	c := f.clip(t, "c.mp4", 1080, 1920)
	_, err := f.engine.Normalize(context.Background(), []string{c}, catalog.Target{Duration: 60}, 1)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
