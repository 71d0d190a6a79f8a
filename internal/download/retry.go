package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// failureClass drives the attempt loop's decision table.
type failureClass int

const (
	classFatal failureClass = iota
	classCancelled
	classSharing
	classNetwork
	classTimeout
)

func (c failureClass) String() string {
	switch c {
	case classCancelled:
		return "cancelled"
	case classSharing:
		return "sharing_violation"
	case classNetwork:
		return "network"
	case classTimeout:
		return "timeout"
	default:
		return "fatal"
	}
}

// Base delays per retryable class; the delay before attempt n+1 is base × n.
const (
	sharingBaseDelay = 500 * time.Millisecond
	networkBaseDelay = 2 * time.Second
	timeoutBaseDelay = 3 * time.Second
)

func (c failureClass) retryable() bool {
	return c == classSharing || c == classNetwork || c == classTimeout
}

func (c failureClass) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var base time.Duration
	switch c {
	case classSharing:
		base = sharingBaseDelay
	case classNetwork:
		base = networkBaseDelay
	case classTimeout:
		base = timeoutBaseDelay
	default:
		return 0
	}
	return base * time.Duration(attempt)
}

// statusError is a non-200 response from the clip host.
type statusError struct {
	Code int
	URL  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: http %d", e.URL, e.Code)
}

var errEmptyBody = errors.New("empty response body")

// classify maps a transfer error to its class. parent is the caller's context:
// when it is done the failure counts as cancellation regardless of err.
func classify(parent context.Context, err error) failureClass {
	if err == nil {
		return classFatal
	}
	if parent.Err() != nil || errors.Is(err, context.Canceled) {
		return classCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classTimeout
	}

	var status *statusError
	if errors.As(err, &status) {
		switch {
		case status.Code == http.StatusRequestTimeout:
			return classTimeout
		case status.Code == http.StatusTooManyRequests, status.Code >= http.StatusInternalServerError:
			return classNetwork
		default:
			return classFatal
		}
	}
	if errors.Is(err, errEmptyBody) {
		return classFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classTimeout
	}

	switch {
	case errors.Is(err, syscall.EBUSY),
		errors.Is(err, syscall.ETXTBSY),
		errors.Is(err, syscall.EAGAIN),
		errors.Is(err, syscall.EACCES):
		return classSharing
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return classNetwork
	}
	return classFatal
}

func (m *Manager) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if m.sleeper != nil {
		m.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
