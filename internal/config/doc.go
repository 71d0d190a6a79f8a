// Package config owns clipreel's TOML settings.
//
// Load reads ~/.config/clipreel/config.toml (or ./clipreel.toml, or an
// explicit path), layers it over Default, expands ~ in paths and falls back to
// PEXELS_API_KEY or CLIPREEL_API_KEY when the catalog key is blank. Validate
// rejects out-of-range download, encoding and output values; callers that
// talk to the catalog additionally call RequireCatalogKey.
package config
