// Package history records pipeline runs in a SQLite database under
// paths.state_dir.
//
// The schema is created on first open and versioned with a single-row
// schema_version table. When the layout changes, update schema.sql and bump
// schemaVersion; older databases are rejected with ErrSchemaMismatch rather
// than migrated.
package history
