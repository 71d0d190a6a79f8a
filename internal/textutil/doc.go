// Package textutil turns free-form search terms into filesystem-safe names
// and display titles.
package textutil
