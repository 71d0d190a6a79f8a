package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"clipreel/internal/config"
	"clipreel/internal/history"
	"clipreel/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PEXELS_API_KEY", "")
	t.Setenv("CLIPREEL_API_KEY", "")

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Encoding.HardwareEncoders = []string{}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[paths]")
	requireContains(t, out, "********")
	requireContains(t, out, env.cfg.Paths.WorkDir)
}

func TestLogFlagsOverrideConfig(t *testing.T) {
	env := setupCLITestEnv(t)
	ctxFlags := []string{"--config", env.configPath, "--log-level", "debug", "--log-format", "json"}
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs(append(ctxFlags, "config", "show"))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, stdout.String(), "level = 'debug'")
	requireContains(t, stdout.String(), "format = 'json'")
}

func TestHistoryListsRuns(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	store := testsupport.MustOpenHistory(t, env.cfg)
	ctx := context.Background()
	if err := store.Start(ctx, history.Run{ID: "0123456789abcdef", Term: "sunset beach", Width: 1920, Height: 1080, DurationSeconds: 60, StartedAt: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if err := store.Finish(ctx, "0123456789abcdef", history.Outcome{Status: history.StatusSucceeded, ClipsUsed: 6, BytesDownloaded: 3_000_000, OutputPath: "/videos/sunset.mp4"}); err != nil {
		t.Fatal(err)
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "01234567")
	requireContains(t, out, "sunset beach")
	requireContains(t, out, "succeeded")
	requireContains(t, out, "3.0 MB")
	requireContains(t, out, "/videos/sunset.mp4")

	out, _, err = runCLI(t, []string{"history", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var runs []map[string]any
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(runs) != 1 || runs[0]["clipsUsed"] != float64(6) {
		t.Fatalf("unexpected json: %v", runs)
	}
}

func TestSearchShowsSelection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		videos := make([]map[string]any, 0, 6)
		for i := 1; i <= 6; i++ {
			videos = append(videos, map[string]any{
				"id":       1000 + i,
				"duration": 12,
				"video_files": []map[string]any{{
					"width":  1920,
					"height": 1080,
					"fps":    30,
					"link":   fmt.Sprintf("https://cdn.example/%d.mp4", i),
					"size":   5_000_000,
				}},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"videos": videos})
	}))
	defer srv.Close()
	env := setupCLITestEnv(t, testsupport.WithCatalogURL(srv.URL))

	out, _, err := runCLI(t, []string{"search", "--term", "forest", "--duration", "60", "--seed", "5"}, env.configPath)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	requireContains(t, out, "1001")
	requireContains(t, out, "1920x1080")
	requireContains(t, out, "5.0 MB")
	requireContains(t, out, "Selected 5 of 6 candidates, 60s total")
	requireContains(t, out, "seed 5")
}

func TestRunRequiresTerm(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"run"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "term") {
		t.Fatalf("expected missing --term error, got %v", err)
	}
}

func TestRunRequiresCatalogKey(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Catalog.APIKey = ""
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, []string{"run", "--term", "ocean"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "catalog.api_key") {
		t.Fatalf("expected api key error, got %v", err)
	}
}

func TestStatusOfflineWithStubbedBinaries(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())

	out, _, err := runCLI(t, []string{"status", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	requireContains(t, out, "Work directory")
	requireContains(t, out, "FFprobe")
	requireContains(t, out, "Hardware encoders disabled; using libx264")
	requireContains(t, out, "Runs: running=0")
}

func TestStatusReportsMissingBinaries(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("PATH", t.TempDir())

	out, _, err := runCLI(t, []string{"status", "--offline"}, env.configPath)
	if err == nil {
		t.Fatal("expected failure when ffmpeg is missing")
	}
	requireContains(t, out, "FAIL")
}
