package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	StateDir  string `toml:"state_dir"`
}

// Catalog contains configuration for the stock clip search API.
type Catalog struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	PageSize       int    `toml:"page_size"`
	MaxPages       int    `toml:"max_pages"`
	MinCandidates  int    `toml:"min_candidates"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Download contains configuration for clip transfers.
type Download struct {
	Concurrency    int `toml:"concurrency"`
	MaxAttempts    int `toml:"max_attempts"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Encoding contains ffmpeg/ffprobe settings shared by normalization and concatenation.
type Encoding struct {
	FFmpegBinary        string   `toml:"ffmpeg_binary"`
	FFprobeBinary       string   `toml:"ffprobe_binary"`
	HardwareEncoders    []string `toml:"hardware_encoders"`
	ProbeTimeoutSeconds int      `toml:"probe_timeout_seconds"`
	SoftwarePreset      string   `toml:"software_preset"`
	SoftwareCRF         int      `toml:"software_crf"`
	// Parallelism caps concurrent normalization jobs. Zero means one per CPU.
	Parallelism int `toml:"parallelism"`
}

// Output describes the default target format for assembled videos.
type Output struct {
	Width           int     `toml:"width"`
	Height          int     `toml:"height"`
	FrameRate       float64 `toml:"frame_rate"`
	Vertical        bool    `toml:"vertical"`
	DurationSeconds int     `toml:"duration_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// API contains configuration for the read-only history server.
type API struct {
	Bind string `toml:"bind"`
}

// Config encapsulates all configuration values for clipreel.
//
// Configuration sections by subsystem:
//   - Paths: working, output, log, and state directories
//   - Catalog: stock clip search API credentials and pagination
//   - Download: transfer concurrency and retry limits
//   - Encoding: ffmpeg binaries and encoder preferences
//   - Output: default target resolution, frame rate, and duration
//   - Logging: log format and level
//   - API: history server bind address
type Config struct {
	Paths    Paths    `toml:"paths"`
	Catalog  Catalog  `toml:"catalog"`
	Download Download `toml:"download"`
	Encoding Encoding `toml:"encoding"`
	Output   Output   `toml:"output"`
	Logging  Logging  `toml:"logging"`
	API      API      `toml:"api"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipreel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strings.TrimSpace(strict.String()))
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipreel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a pipeline run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the SQLite database location for run history.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// CatalogTimeout returns the per-request HTTP timeout for catalog searches.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutSeconds) * time.Second
}

// DownloadTimeout returns the per-attempt timeout for a single clip transfer.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}

// ProbeTimeout returns the time budget for a hardware encoder capability test.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Encoding.ProbeTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Marshal renders the effective configuration as TOML. The catalog API key
// is masked.
func (c *Config) Marshal() ([]byte, error) {
	clone := *c
	if clone.Catalog.APIKey != "" {
		clone.Catalog.APIKey = "********"
	}
	data, err := toml.Marshal(clone)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
