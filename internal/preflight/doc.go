// Package preflight provides readiness checks for the binaries, directories,
// and catalog API that clipreel depends on.
//
// The pipeline calls RunAll before every run and refuses to start when a
// check fails. The CLI "clipreel status" command uses the individual checks
// (CheckDirectoryAccess, CheckCatalog, CheckSystemDeps) for its report.
package preflight
