package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"syscall"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		want failureClass
	}{
		{"busy rename", &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EBUSY}, classSharing},
		{"access denied open", &fs.PathError{Op: "open", Path: "a", Err: syscall.EACCES}, classSharing},
		{"text busy", &fs.PathError{Op: "open", Path: "a", Err: syscall.ETXTBSY}, classSharing},
		{"would block", &fs.PathError{Op: "open", Path: "a", Err: syscall.EAGAIN}, classSharing},
		{"reset", &net.OpError{Op: "read", Err: &os.SyscallError{Syscall: "read", Err: syscall.ECONNRESET}}, classNetwork},
		{"refused", &net.OpError{Op: "dial", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}, classNetwork},
		{"unexpected eof", fmt.Errorf("copy: %w", io.ErrUnexpectedEOF), classNetwork},
		{"too many requests", &statusError{Code: 429}, classNetwork},
		{"bad gateway", &statusError{Code: 502}, classNetwork},
		{"request timeout", &statusError{Code: 408}, classTimeout},
		{"attempt deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), classTimeout},
		{"net timeout", timeoutErr{}, classTimeout},
		{"not found", &statusError{Code: 404}, classFatal},
		{"empty body", errEmptyBody, classFatal},
		{"other", errors.New("boom"), classFatal},
		{"cancelled", fmt.Errorf("get: %w", context.Canceled), classCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(ctx, tt.err); got != tt.want {
				t.Fatalf("classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyParentCancelledWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := classify(ctx, &statusError{Code: 503}); got != classCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
}

func TestBackoffIsLinearPerClass(t *testing.T) {
	tests := []struct {
		class   failureClass
		attempt int
		want    time.Duration
	}{
		{classSharing, 1, 500 * time.Millisecond},
		{classSharing, 2, time.Second},
		{classNetwork, 1, 2 * time.Second},
		{classNetwork, 2, 4 * time.Second},
		{classTimeout, 1, 3 * time.Second},
		{classTimeout, 2, 6 * time.Second},
		{classFatal, 1, 0},
	}
	for _, tt := range tests {
		if got := tt.class.backoff(tt.attempt); got != tt.want {
			t.Errorf("%s backoff(%d) = %v, want %v", tt.class, tt.attempt, got, tt.want)
		}
	}
}

func TestClipFileName(t *testing.T) {
	tests := []struct {
		url  string
		id   int64
		want string
	}{
		{"https://cdn.test/v/123.mp4?token=x", 9, "clip_004_9.mp4"},
		{"https://cdn.test/v/123.MOV", 9, "clip_004_9.mov"},
		{"https://cdn.test/v/download", 0, "clip_004.mp4"},
		{"https://cdn.test/v/file.verylongext", 1, "clip_004_1.mp4"},
	}
	for _, tt := range tests {
		candidate := candidateWith(tt.url, tt.id)
		if got := ClipFileName(4, candidate); got != tt.want {
			t.Errorf("ClipFileName(%s) = %s, want %s", tt.url, got, tt.want)
		}
	}
}
