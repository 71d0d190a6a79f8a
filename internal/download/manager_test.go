package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clipreel/internal/catalog"
	"clipreel/internal/media/ffprobe"
	"clipreel/internal/progress"
	"clipreel/internal/services"
)

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
}

func (r *recordedSleeps) list() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.delays)
}

func newTestManager(t *testing.T, server *httptest.Server, opts ...Option) (*Manager, *recordedSleeps) {
	t.Helper()
	sleeps := &recordedSleeps{}
	opts = append([]Option{WithHTTPClient(server.Client()), WithSleeper(sleeps.sleep)}, opts...)
	return New(NewResources(3, 2), Options{AttemptTimeout: 5 * time.Second}, opts...), sleeps
}

func candidateFor(server *httptest.Server, name string) catalog.Candidate {
	return catalog.Candidate{ID: 7, URL: server.URL + "/" + name, Duration: 8, Width: 1920, Height: 1080, FrameRate: 30}
}

func assertNoPartFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".part") {
			t.Fatalf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestFetchWritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "video-bytes")
	}))
	defer server.Close()

	mgr, sleeps := newTestManager(t, server)
	dir := t.TempDir()
	dest := filepath.Join(dir, "clip.mp4")
	clip, err := mgr.Fetch(context.Background(), candidateFor(server, "a.mp4"), dest)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if clip.Path != dest || clip.Bytes != int64(len("video-bytes")) {
		t.Fatalf("unexpected clip: %+v", clip)
	}
	if clip.Duration != 8 || clip.Width != 1920 {
		t.Fatalf("expected catalog metadata without prober, got %+v", clip)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "video-bytes" {
		t.Fatalf("unexpected content %q (%v)", data, err)
	}
	if len(sleeps.list()) != 0 {
		t.Fatalf("unexpected retries: %v", sleeps.list())
	}
	assertNoPartFiles(t, dir)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	mgr, sleeps := newTestManager(t, server)
	dest := filepath.Join(t.TempDir(), "clip.mp4")
	if _, err := mgr.Fetch(context.Background(), candidateFor(server, "a.mp4"), dest); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if got := sleeps.list(); !slices.Equal(got, want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
}

func TestFetchExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusRequestTimeout)
	}))
	defer server.Close()

	mgr, sleeps := newTestManager(t, server)
	dir := t.TempDir()
	dest := filepath.Join(dir, "clip.mp4")
	_, err := mgr.Fetch(context.Background(), candidateFor(server, "a.mp4"), dest)
	if !errors.Is(err, services.ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	var dlErr *Error
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if dlErr.Path != dest || dlErr.Attempts != 3 {
		t.Fatalf("unexpected error detail: %+v", dlErr)
	}
	if !strings.Contains(err.Error(), dest) {
		t.Fatalf("error should name the destination: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	want := []time.Duration{3 * time.Second, 6 * time.Second}
	if got := sleeps.list(); !slices.Equal(got, want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, fs.ErrNotExist) {
		t.Fatalf("destination should not exist after failure: %v", statErr)
	}
	assertNoPartFiles(t, dir)
}

func TestFetchFatalFailuresStopImmediately(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"forbidden", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusForbidden) }},
		{"empty body", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}))
			defer server.Close()

			mgr, sleeps := newTestManager(t, server)
			dir := t.TempDir()
			_, err := mgr.Fetch(context.Background(), candidateFor(server, "a.mp4"), filepath.Join(dir, "clip.mp4"))
			if !errors.Is(err, services.ErrDownloadFailed) {
				t.Fatalf("expected ErrDownloadFailed, got %v", err)
			}
			if calls.Load() != 1 || len(sleeps.list()) != 0 {
				t.Fatalf("fatal failure retried: calls=%d sleeps=%v", calls.Load(), sleeps.list())
			}
			assertNoPartFiles(t, dir)
		})
	}
}

func TestFetchAvoidsExistingDestination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "new")
	}))
	defer server.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(dest, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	mgr, _ := newTestManager(t, server)
	clip, err := mgr.Fetch(context.Background(), candidateFor(server, "a.mp4"), dest)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if want := filepath.Join(dir, "clip_1.mp4"); clip.Path != want {
		t.Fatalf("path = %s, want %s", clip.Path, want)
	}
	if data, _ := os.ReadFile(dest); string(data) != "old" {
		t.Fatalf("existing file was overwritten: %q", data)
	}
}

func TestFetchSameDestinationSerializes(t *testing.T) {
	var active, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	defer server.Close()

	mgr, _ := newTestManager(t, server)
	dir := t.TempDir()
	dest := filepath.Join(dir, "clip.mp4")

	var wg sync.WaitGroup
	paths := make([]string, 2)
	for i := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clip, err := mgr.Fetch(context.Background(), candidateFor(server, fmt.Sprintf("c%d.mp4", i)), dest)
			if err != nil {
				t.Errorf("Fetch %d: %v", i, err)
				return
			}
			paths[i] = clip.Path
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Fatalf("transfers to the same destination overlapped (peak %d)", peak.Load())
	}
	if paths[0] == paths[1] {
		t.Fatalf("both transfers landed on %s", paths[0])
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(data), "/c") {
			t.Fatalf("corrupted content in %s: %q", p, data)
		}
	}
	if mgr.resources.Locks.Len() != 0 {
		t.Fatal("lock entries leaked")
	}
}

// stallingServer holds requests for /slow.mp4 until release is closed and
// answers everything else immediately with the request path.
func stallingServer(t *testing.T) (server *httptest.Server, started <-chan struct{}, release func()) {
	t.Helper()
	startedCh := make(chan struct{}, 8)
	releaseCh := make(chan struct{})
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow.mp4" {
			startedCh <- struct{}{}
			<-releaseCh
		}
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	var once sync.Once
	release = func() { once.Do(func() { close(releaseCh) }) }
	t.Cleanup(server.Close)
	t.Cleanup(release)
	return server, startedCh, release
}

func TestFetchWaitingOnPathDoesNotHoldSlot(t *testing.T) {
	server, started, release := stallingServer(t)
	mgr := New(NewResources(2, 1), Options{AttemptTimeout: 5 * time.Second}, WithHTTPClient(server.Client()))
	dir := t.TempDir()
	busy := filepath.Join(dir, "a.mp4")

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.Fetch(context.Background(), candidateFor(server, "slow.mp4"), busy); err != nil {
				t.Errorf("Fetch busy path: %v", err)
			}
		}()
	}
	<-started
	// Let the second request queue behind the path lock.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := mgr.Fetch(ctx, candidateFor(server, "b.mp4"), filepath.Join(dir, "b.mp4")); err != nil {
		t.Fatalf("independent download blocked by a path waiter: %v", err)
	}

	release()
	wg.Wait()
}

func TestFetchNeverOverwritesSiblingDestination(t *testing.T) {
	server, started, release := stallingServer(t)
	mgr, _ := newTestManager(t, server)
	dir := t.TempDir()
	dest := filepath.Join(dir, "clip.mp4")
	sibling := filepath.Join(dir, "clip_1.mp4")
	if err := os.WriteFile(dest, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The first request is redirected to clip_1.mp4 and stalls mid-transfer.
	first := make(chan LocalClip, 1)
	go func() {
		clip, err := mgr.Fetch(context.Background(), candidateFor(server, "slow.mp4"), dest)
		if err != nil {
			t.Errorf("Fetch redirected: %v", err)
		}
		first <- clip
	}()
	<-started

	second := make(chan LocalClip, 1)
	go func() {
		clip, err := mgr.Fetch(context.Background(), candidateFor(server, "fast.mp4"), sibling)
		if err != nil {
			t.Errorf("Fetch sibling: %v", err)
		}
		second <- clip
	}()
	time.Sleep(50 * time.Millisecond)
	release()

	a, b := <-first, <-second
	if a.Path != sibling {
		t.Fatalf("first path = %s, want %s", a.Path, sibling)
	}
	if a.Path == b.Path {
		t.Fatalf("both requests landed on %s", a.Path)
	}
	for path, want := range map[string]string{dest: "old", a.Path: "/slow.mp4", b.Path: "/fast.mp4"} {
		data, err := os.ReadFile(path)
		if err != nil || string(data) != want {
			t.Fatalf("%s holds %q (%v), want %q", path, data, err, want)
		}
	}
	if mgr.resources.Locks.Len() != 0 {
		t.Fatal("lock entries leaked")
	}
}

func TestFetchCancelledIsNotAFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "x")
	}))
	defer server.Close()

	mgr, _ := newTestManager(t, server)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mgr.Fetch(ctx, candidateFor(server, "a.mp4"), filepath.Join(t.TempDir(), "clip.mp4"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, services.ErrDownloadFailed) {
		t.Fatal("cancellation must not be reported as a download failure")
	}
}

func TestFetchValidatesInput(t *testing.T) {
	mgr := New(nil, Options{})
	if _, err := mgr.Fetch(context.Background(), catalog.Candidate{}, "/tmp/x.mp4"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing URL, got %v", err)
	}
	if _, err := mgr.Fetch(context.Background(), catalog.Candidate{URL: "http://x"}, " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty dest, got %v", err)
	}
}

type stubProber struct {
	result ffprobe.Result
	err    error
}

func (s stubProber) Probe(context.Context, string) (ffprobe.Result, error) {
	return s.result, s.err
}

func TestFetchUsesProberMeasurements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "x")
	}))
	defer server.Close()

	result, err := ffprobe.Parse([]byte(`{"streams":[{"codec_type":"video","width":1280,"height":720}],"format":{"duration":"9.5"}}`))
	if err != nil {
		t.Fatal(err)
	}
	mgr, _ := newTestManager(t, server, WithProber(stubProber{result: result}))
	clip, err := mgr.Fetch(context.Background(), candidateFor(server, "a.mp4"), filepath.Join(t.TempDir(), "clip.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if clip.Width != 1280 || clip.Height != 720 || clip.Duration != 9.5 {
		t.Fatalf("expected probed metadata, got %+v", clip)
	}

	mgr, _ = newTestManager(t, server, WithProber(stubProber{err: errors.New("boom")}))
	clip, err = mgr.Fetch(context.Background(), candidateFor(server, "a.mp4"), filepath.Join(t.TempDir(), "clip.mp4"))
	if err != nil {
		t.Fatalf("probe failure should not fail the download: %v", err)
	}
	if clip.Width != 1920 || clip.Duration != 8 {
		t.Fatalf("expected catalog metadata fallback, got %+v", clip)
	}
}

func TestFetchAllPartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	defer server.Close()

	var reports atomic.Int32
	mgr, _ := newTestManager(t, server, WithProgress(progress.Func(func(string, float64) { reports.Add(1) })))
	candidates := []catalog.Candidate{
		{ID: 1, URL: server.URL + "/one.mp4"},
		{ID: 2, URL: server.URL + "/bad.mp4"},
		{ID: 3, URL: server.URL + "/three.mp4"},
	}
	batch, err := mgr.FetchAll(context.Background(), candidates, t.TempDir())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if batch.Clips[0] == nil || batch.Clips[2] == nil || batch.Clips[1] != nil {
		t.Fatalf("unexpected clips: %+v", batch.Clips)
	}
	if !errors.Is(batch.Errors[1], services.ErrDownloadFailed) || batch.Errors[0] != nil {
		t.Fatalf("unexpected errors: %v", batch.Errors)
	}
	if batch.Failed() != 1 || len(batch.Succeeded()) != 2 {
		t.Fatalf("failed=%d succeeded=%d", batch.Failed(), len(batch.Succeeded()))
	}
	if batch.Succeeded()[1].Candidate.ID != 3 {
		t.Fatal("succeeded clips are not in input order")
	}
	if batch.Bytes() != int64(len("/one.mp4")+len("/three.mp4")) {
		t.Fatalf("bytes = %d", batch.Bytes())
	}
	if reports.Load() != 3 {
		t.Fatalf("expected 3 progress reports, got %d", reports.Load())
	}
}

func TestFetchAllRespectsDownloadSlots(t *testing.T) {
	var active, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		active.Add(-1)
		_, _ = io.WriteString(w, "x")
	}))
	defer server.Close()

	mgr := New(NewResources(2, 1), Options{}, WithHTTPClient(server.Client()))
	candidates := make([]catalog.Candidate, 6)
	for i := range candidates {
		candidates[i] = catalog.Candidate{ID: int64(i + 1), URL: fmt.Sprintf("%s/%d.mp4", server.URL, i)}
	}
	batch, err := mgr.FetchAll(context.Background(), candidates, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if batch.Failed() != 0 {
		t.Fatalf("unexpected failures: %v", batch.Errors)
	}
	if peak.Load() > 2 {
		t.Fatalf("peak concurrent transfers %d exceeds 2", peak.Load())
	}
}

func candidateWith(url string, id int64) catalog.Candidate {
	return catalog.Candidate{ID: id, URL: url}
}
