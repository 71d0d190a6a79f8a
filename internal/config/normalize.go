package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCatalog()
	c.normalizeDownload()
	c.normalizeEncoding()
	c.normalizeOutput()
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeCatalog() {
	c.Catalog.APIKey = strings.TrimSpace(c.Catalog.APIKey)
	if c.Catalog.APIKey == "" {
		c.Catalog.APIKey = firstEnv("PEXELS_API_KEY", "CLIPREEL_API_KEY")
	}
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = defaultCatalogBaseURL
	}
	if c.Catalog.PageSize <= 0 {
		c.Catalog.PageSize = defaultCatalogPageSize
	}
	if c.Catalog.MaxPages <= 0 {
		c.Catalog.MaxPages = defaultCatalogMaxPages
	}
	if c.Catalog.MinCandidates <= 0 {
		c.Catalog.MinCandidates = defaultCatalogMinResults
	}
	if c.Catalog.TimeoutSeconds <= 0 {
		c.Catalog.TimeoutSeconds = defaultCatalogTimeout
	}
}

func (c *Config) normalizeDownload() {
	if c.Download.Concurrency <= 0 {
		c.Download.Concurrency = defaultDownloadConcurrency
	}
	if c.Download.MaxAttempts <= 0 {
		c.Download.MaxAttempts = defaultDownloadAttempts
	}
	if c.Download.TimeoutSeconds <= 0 {
		c.Download.TimeoutSeconds = defaultDownloadTimeout
	}
}

func (c *Config) normalizeEncoding() {
	c.Encoding.FFmpegBinary = strings.TrimSpace(c.Encoding.FFmpegBinary)
	if c.Encoding.FFmpegBinary == "" {
		c.Encoding.FFmpegBinary = defaultFFmpegBinary
	}
	c.Encoding.FFprobeBinary = strings.TrimSpace(c.Encoding.FFprobeBinary)
	if c.Encoding.FFprobeBinary == "" {
		c.Encoding.FFprobeBinary = defaultFFprobeBinary
	}
	encoders := make([]string, 0, len(c.Encoding.HardwareEncoders))
	seen := make(map[string]struct{}, len(c.Encoding.HardwareEncoders))
	for _, name := range c.Encoding.HardwareEncoders {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		encoders = append(encoders, normalized)
	}
	c.Encoding.HardwareEncoders = encoders
	if c.Encoding.ProbeTimeoutSeconds <= 0 {
		c.Encoding.ProbeTimeoutSeconds = defaultProbeTimeout
	}
	c.Encoding.SoftwarePreset = strings.ToLower(strings.TrimSpace(c.Encoding.SoftwarePreset))
	if c.Encoding.SoftwarePreset == "" {
		c.Encoding.SoftwarePreset = defaultSoftwarePreset
	}
	if c.Encoding.SoftwareCRF <= 0 {
		c.Encoding.SoftwareCRF = defaultSoftwareCRF
	}
	if c.Encoding.Parallelism <= 0 {
		c.Encoding.Parallelism = runtime.NumCPU()
	}
}

func (c *Config) normalizeOutput() {
	if c.Output.FrameRate <= 0 {
		c.Output.FrameRate = defaultOutputFrameRate
	}
	if c.Output.DurationSeconds <= 0 {
		c.Output.DurationSeconds = defaultOutputDuration
	}
	if c.Output.Width <= 0 || c.Output.Height <= 0 {
		c.Output.Width = defaultOutputWidth
		c.Output.Height = defaultOutputHeight
	}
	// Orientation wins over the literal dimensions.
	if c.Output.Vertical != (c.Output.Height > c.Output.Width) && c.Output.Width != c.Output.Height {
		c.Output.Width, c.Output.Height = c.Output.Height, c.Output.Width
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
