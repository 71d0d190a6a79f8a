// Package api serves recorded pipeline runs over HTTP for dashboards and
// scripts. It is read-only: runs are started from the CLI.
//
// # Routes
//
//	GET /health          liveness plus run counts by status
//	GET /runs            most recent runs; ?limit=N and repeated ?status=
//	GET /runs/{id}       one run
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers. Timestamps are
// RFC3339 with milliseconds. Errors are returned as {"error": "..."} with a
// matching status code.
package api
