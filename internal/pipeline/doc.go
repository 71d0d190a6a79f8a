// Package pipeline runs one clip assembly from search term to output file.
//
// A Pipeline holds the long-lived collaborators (catalog client, encoder
// gateway, run history) built from configuration. Each Execute call creates a
// Run: a uuid-named working directory under paths.work_dir, a fresh
// download.Resources pool, and atomic running totals. Stages run in order
// (search, select, download, normalize, concat) with the run id and stage
// name attached to the context so every log line carries them. The working
// directory is removed when the run ends, whatever the outcome, and the
// outcome is written to history with a context that survives cancellation.
//
// Preview performs only the search and selection steps for the CLI search
// command.
package pipeline
