package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var validPresets = map[string]struct{}{
	"ultrafast": {}, "superfast": {}, "veryfast": {}, "faster": {}, "fast": {},
	"medium": {}, "slow": {}, "slower": {}, "veryslow": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// RequireCatalogKey reports a descriptive error when no catalog API key is
// configured. Only commands that search the catalog call it.
func (c *Config) RequireCatalogKey() error {
	if strings.TrimSpace(c.Catalog.APIKey) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/clipreel/config.toml"
	}
	return fmt.Errorf("catalog.api_key is required. Set PEXELS_API_KEY env var or edit %s (create with 'clipreel config init')", defaultPath)
}

func (c *Config) validateCatalog() error {
	parsed, err := url.Parse(c.Catalog.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("catalog.base_url %q must be an absolute URL", c.Catalog.BaseURL)
	}
	if c.Catalog.PageSize > 80 {
		return errors.New("catalog.page_size must be at most 80")
	}
	return nil
}

func (c *Config) validateDownload() error {
	if c.Download.MaxAttempts > 10 {
		return errors.New("download.max_attempts must be at most 10")
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if _, ok := validPresets[c.Encoding.SoftwarePreset]; !ok {
		return fmt.Errorf("encoding.software_preset %q is not a libx264 preset", c.Encoding.SoftwarePreset)
	}
	if c.Encoding.SoftwareCRF > 51 {
		return errors.New("encoding.software_crf must be between 1 and 51")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.Width%2 != 0 || c.Output.Height%2 != 0 {
		return errors.New("output.width and output.height must be even")
	}
	if c.Output.FrameRate > 240 {
		return errors.New("output.frame_rate must be at most 240")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}
