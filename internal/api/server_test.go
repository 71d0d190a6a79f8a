package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clipreel/internal/api"
	"clipreel/internal/history"
	"clipreel/internal/testsupport"
)

func seedStore(t *testing.T) *history.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := history.Run{
			ID:              id,
			Term:            "ocean",
			DurationSeconds: 60,
			Width:           1920,
			Height:          1080,
			FrameRate:       30,
			Seed:            int64(i + 1),
			StartedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Start(ctx, run); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	if err := store.Finish(ctx, "run-a", history.Outcome{Status: history.StatusSucceeded, ClipsUsed: 5, OutputPath: "/out/a.mp4"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Finish(ctx, "run-b", history.Outcome{Status: history.StatusFailed, ErrorMessage: "boom"}); err != nil {
		t.Fatal(err)
	}
	return store
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("%s: content type %q", path, ct)
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s: decode: %v (%s)", path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestHealthReportsCounts(t *testing.T) {
	h := api.NewServer("", seedStore(t), nil).Router()
	var resp api.HealthResponse
	if code := get(t, h, "/health", &resp); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if resp.Status != "ok" {
		t.Fatalf("status = %q", resp.Status)
	}
	if resp.Counts["succeeded"] != 1 || resp.Counts["failed"] != 1 || resp.Counts["running"] != 1 {
		t.Fatalf("unexpected counts: %v", resp.Counts)
	}
}

func TestListRunsNewestFirstWithFilters(t *testing.T) {
	h := api.NewServer("", seedStore(t), nil).Router()

	var all api.RunListResponse
	if code := get(t, h, "/runs", &all); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(all.Runs) != 3 || all.Runs[0].ID != "run-c" || all.Runs[2].ID != "run-a" {
		t.Fatalf("unexpected order: %+v", all.Runs)
	}

	var limited api.RunListResponse
	get(t, h, "/runs?limit=1", &limited)
	if len(limited.Runs) != 1 || limited.Runs[0].ID != "run-c" {
		t.Fatalf("limit not applied: %+v", limited.Runs)
	}

	var failed api.RunListResponse
	get(t, h, "/runs?status=failed&status=succeeded", &failed)
	if len(failed.Runs) != 2 {
		t.Fatalf("status filter returned %d runs", len(failed.Runs))
	}

	var errResp api.ErrorResponse
	if code := get(t, h, "/runs?limit=zero", &errResp); code != http.StatusBadRequest || errResp.Error == "" {
		t.Fatalf("expected 400 for bad limit, got %d %+v", code, errResp)
	}
}

func TestGetRun(t *testing.T) {
	h := api.NewServer("", seedStore(t), nil).Router()

	var resp api.RunResponse
	if code := get(t, h, "/runs/run-a", &resp); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	run := resp.Run
	if run.Status != "succeeded" || run.ClipsUsed != 5 || run.OutputPath != "/out/a.mp4" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Target.Width != 1920 || run.StartedAt != "2026-01-02T03:04:05.000Z" || run.FinishedAt == "" {
		t.Fatalf("unexpected target/timestamps: %+v", run)
	}

	var errResp api.ErrorResponse
	if code := get(t, h, "/runs/nope", &errResp); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := api.NewServer("", seedStore(t), nil).Router()
	if code := get(t, h, "/queue", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestStartServesUntilCancelled(t *testing.T) {
	srv := api.NewServer("127.0.0.1:0", seedStore(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestStartRequiresBind(t *testing.T) {
	if err := api.NewServer(" ", nil, nil).Start(context.Background()); err == nil {
		t.Fatal("expected error for empty bind")
	}
}
