package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	ErrSearch          = errors.New("search failed")
	ErrNoSuitableClips = errors.New("no suitable clips")
	ErrDownloadFailed  = errors.New("download failed")
	ErrNoValidInputs   = errors.New("no valid inputs")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsCancelled reports whether err stems from a cancelled context rather than a
// failure. Deadline expiry is not cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Outcome maps a pipeline error to the status recorded in run history.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case IsCancelled(err):
		return "cancelled"
	case errors.Is(err, ErrTimeout):
		return "timed_out"
	default:
		return "failed"
	}
}

// buildDetail joins the non-blank context parts as "stage: op: message".
func buildDetail(parts ...string) string {
	kept := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return "pipeline failure"
	}
	return strings.Join(kept, ": ")
}
