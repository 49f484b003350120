// session.go defines the upload session record shared between the manager
// and detached worker processes, plus the status and error taxonomies.
//
// The record is the only communication channel between the two processes:
// the manager writes it before spawning a worker, the worker rewrites it as
// it progresses, and the manager re-reads it on every query. Fields must
// therefore stay forward-readable across versions: readers ignore unknown
// fields and treat missing optional fields as absent.
package upload

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an upload session.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusUploading   Status = "uploading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal records are
// immutable: no writer may move a session out of a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// SourceKind selects the worker's behavior for a session.
type SourceKind string

const (
	// SourceFile uploads a local file directly.
	SourceFile SourceKind = "file"
	// SourceURL fetches the source URL to a temp file first, then uploads.
	SourceURL SourceKind = "url"
)

// ErrorKind classifies a terminal failure.
type ErrorKind string

const (
	ErrKindTimeout      ErrorKind = "timeout"
	ErrKindNetwork      ErrorKind = "network"
	ErrKindFileNotFound ErrorKind = "file_not_found"
	ErrKindFileTooLarge ErrorKind = "file_too_large"
	ErrKindUnknown      ErrorKind = "unknown"
)

// Session is one tracked upload attempt. It is persisted as
// <state_dir>/<session_id>.json and mutated by whole-record writes only.
type Session struct {
	SessionID  string     `json:"session_id"`
	Source     string     `json:"source"`
	SourceKind SourceKind `json:"source_kind"`

	// SizeBytes is the local file size; 0 for URL sources until the
	// worker has downloaded the artifact.
	SizeBytes int64 `json:"size_bytes"`

	Status Status `json:"status"`

	// Progress is in [0, 1] and non-decreasing while the session is
	// active; fixed at 1.0 on completion.
	Progress float64 `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Error and ErrorKind are set only for failed/cancelled sessions.
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// ResultURL is present iff Status is completed.
	ResultURL string `json:"result_url,omitempty"`

	// WorkerPID is the detached worker's process id, once known.
	WorkerPID int `json:"worker_pid,omitempty"`

	// RetryCount is the number of failed upload attempts so far.
	RetryCount int `json:"retry_count"`
}

// Active reports whether the session is still being worked on.
func (s *Session) Active() bool {
	return !s.Status.Terminal()
}

// NewSessionID generates a unique, sortable-ish session id of the form
// upload_<8 hex chars>_<unix seconds>. The id doubles as the state file name.
func NewSessionID() string {
	short := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("upload_%s_%d", short, time.Now().Unix())
}
