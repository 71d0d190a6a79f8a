// Package download fetches selected clips to the run's working directory.
//
// Transfers share a Resources pool owned by the pipeline run: a weighted
// semaphore caps concurrent transfers, and a path-keyed lock table keeps two
// requests for the same destination from writing at once. Each transfer
// streams into a hidden temporary sibling and is renamed into place only
// after a non-empty body arrived. Failures are classified and retried with
// a linear, class-specific backoff.
package download
