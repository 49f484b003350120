package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, ErrKindTimeout},
		{"wrapped deadline", fmt.Errorf("upload: %w", context.DeadlineExceeded), ErrKindTimeout},
		{"timeout message", errors.New("request timeout after 30s"), ErrKindTimeout},
		{"gateway timeout", errors.New("POST /storage: 504 Gateway Timeout"), ErrKindTimeout},
		{"too large sentinel", fmt.Errorf("%w: 11 MiB", ErrFileTooLarge), ErrKindFileTooLarge},
		{"entity too large", errors.New("413 Request Entity Too Large"), ErrKindFileTooLarge},
		{"not exist", fmt.Errorf("stat: %w", fs.ErrNotExist), ErrKindFileNotFound},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrKindNetwork},
		{"dns", errors.New("lookup rest.alpha.fal.ai: no such host"), ErrKindNetwork},
		{"anything else", errors.New("internal server error"), ErrKindUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyError(tc.err); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSessionHelpers(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !status.Terminal() {
			t.Errorf("%s should be terminal", status)
		}
		if (&Session{Status: status}).Active() {
			t.Errorf("%s should not be active", status)
		}
	}
	for _, status := range []Status{StatusStarting, StatusDownloading, StatusUploading} {
		if status.Terminal() {
			t.Errorf("%s should not be terminal", status)
		}
	}
}

func TestNewSessionIDFormat(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == b {
		t.Fatal("session ids must be unique")
	}
	if len(a) < len("upload_xxxxxxxx_0") {
		t.Fatalf("unexpected session id %q", a)
	}
	if a[:7] != "upload_" {
		t.Fatalf("session id should carry the upload_ prefix, got %q", a)
	}
}
