// Package catalog searches a Pexels-style stock video API and turns raw search
// entries into clip candidates.
//
// For every entry the client applies a duration window relative to the
// requested output length, picks the best rendition among the entry's video
// files (matching resolution tier, acceptable frame rate, under 1 GiB,
// widest first), and drops entries whose chosen rendition has the wrong
// orientation. Pagination stops early once enough candidates are collected.
// A failed page is logged and skipped. Cancellation aborts the search.
package catalog
