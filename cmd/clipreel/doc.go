// Command clipreel assembles a single video from stock clips matching a
// search term.
//
//	clipreel run --term ocean --duration 60
//	clipreel search --term ocean
//	clipreel status
//	clipreel history
//	clipreel serve
//	clipreel config init | show
//
// Configuration is read from --config, ~/.config/clipreel/config.toml, or
// ./clipreel.toml. A .env file in the working directory is loaded first so
// PEXELS_API_KEY can live there.
package main
