// Package staging manages per-run working directories under work_dir and
// sweeps away directories left behind by runs that crashed.
package staging
