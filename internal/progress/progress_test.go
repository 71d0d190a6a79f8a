package progress

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"clipreel/internal/logging"
)

type recorder struct {
	mu      sync.Mutex
	reports []string
	percent []float64
}

func (r *recorder) Report(message string, percent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, message)
	r.percent = append(r.percent, percent)
}

func TestMultiAndPrefix(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	sink := WithPrefix(Multi(a, nil, b), "clip 2: ")
	sink.Report("encoding", 40)

	for _, r := range []*recorder{a, b} {
		if len(r.reports) != 1 || r.reports[0] != "clip 2: encoding" || r.percent[0] != 40 {
			t.Fatalf("unexpected reports %v %v", r.reports, r.percent)
		}
	}
}

func TestMultiEmptyIsDiscard(t *testing.T) {
	if Multi() != Discard || Multi(nil) != Discard {
		t.Fatal("expected Discard for empty fan-out")
	}
	if OrDiscard(nil) != Discard {
		t.Fatal("expected Discard for nil sink")
	}
	Discard.Report("ignored", Indeterminate)
}

func TestFuncSink(t *testing.T) {
	var got string
	Func(func(message string, _ float64) { got = message }).Report("hi", 1)
	if got != "hi" {
		t.Fatalf("got %q", got)
	}
	var nilFunc Func
	nilFunc.Report("no panic", 0)
}

func TestLogSinkSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	sink := NewLogSink(logger, 50)
	sink.Report("normalize clip 1: 00:01", 10)
	sink.Report("normalize clip 1: 00:02", 20)
	sink.Report("normalize clip 1: 00:06", 60)
	sink.Report("concatenating", Indeterminate)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 sampled lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[1], "percent=60") {
		t.Fatalf("expected percent on bucket line: %q", lines[1])
	}
	if !strings.Contains(lines[2], "concatenating") || strings.Contains(lines[2], "percent=") {
		t.Fatalf("indeterminate line should omit percent: %q", lines[2])
	}
}

func TestBarSinkRenders(t *testing.T) {
	var buf bytes.Buffer
	bar := NewBarSink(&buf, "assembling")
	bar.Report("downloading", 25)
	bar.Report("still going", Indeterminate)
	bar.Report("done", 150)
	bar.Finish()
	if buf.Len() == 0 {
		t.Fatal("expected bar output")
	}
}
