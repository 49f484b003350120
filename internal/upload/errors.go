// errors.go holds the sentinel errors surfaced by the manager and the
// worker-side failure classification.
package upload

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"strings"
)

var (
	// ErrSessionNotFound is returned when a session id has no record.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrNotFinished is returned by Result for sessions that have not yet
	// reached a terminal state.
	ErrNotFinished = errors.New("upload not completed yet")

	// ErrUploadFailed is returned by Result for failed sessions; the
	// wrapped message carries the stored error text.
	ErrUploadFailed = errors.New("upload failed")

	// ErrUploadCancelled is returned by Result for cancelled sessions.
	ErrUploadCancelled = errors.New("upload was cancelled")

	// ErrTooManyUploads is returned by StartUpload when the active-session
	// admission cap is reached.
	ErrTooManyUploads = errors.New("too many active uploads")

	// ErrFileTooLarge marks a source that exceeds MaxUploadBytes.
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")

	// errInterrupted is the worker's internal signal that a termination
	// request arrived; it is never persisted, only mapped to cancelled.
	errInterrupted = errors.New("upload interrupted")
)

// ClassifyError maps an upload failure to the persisted error taxonomy.
// The mapping mirrors how the backend and OS report each failure class;
// unknown preserves the message verbatim without guessing.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrKindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrKindTimeout
	case errors.Is(err, ErrFileTooLarge):
		return ErrKindFileTooLarge
	case errors.Is(err, fs.ErrNotExist):
		return ErrKindFileNotFound
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "504"):
		return ErrKindTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") ||
		strings.Contains(msg, "no such host"):
		return ErrKindNetwork
	case strings.Contains(msg, "too large") || strings.Contains(msg, "request entity"):
		return ErrKindFileTooLarge
	default:
		return ErrKindUnknown
	}
}
