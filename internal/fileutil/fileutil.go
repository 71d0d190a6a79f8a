// Package fileutil holds small filesystem helpers shared by the download,
// normalization, and concatenation stages.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// MaxNumberedSuffix is the highest _N suffix UniquePath tries before falling
// back to a timestamp suffix.
const MaxNumberedSuffix = 100

// UniquePath returns path when nothing exists there, otherwise the first free
// name_1.ext … name_100.ext sibling, otherwise name_<unix-nanos>.ext.
// Callers that race on the same directory must serialize around the call.
func UniquePath(path string) string {
	if !Exists(path) {
		return path
	}
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	for i := 1; i <= MaxNumberedSuffix; i++ {
		candidate := filepath.Join(dir, stem+"_"+strconv.Itoa(i)+ext)
		if !Exists(candidate) {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, time.Now().UnixNano(), ext))
}

// Exists reports whether anything (file, directory, or dangling link) is at path.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// Size returns the size of a regular file.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), nil
}

// NonEmpty reports whether path is a regular file with at least one byte.
func NonEmpty(path string) bool {
	size, err := Size(path)
	return err == nil && size > 0
}

// RemoveQuietly deletes path and ignores "not exist" errors. Other failures
// are returned so callers can log them.
func RemoveQuietly(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// NormalizedName derives the re-encoded sibling path: dir/<stem>_norm.mp4.
func NormalizedName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(filepath.Dir(path), stem+"_norm.mp4")
}
