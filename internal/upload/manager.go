// manager.go is the front-end-facing orchestrator of the upload subsystem.
//
// The manager validates inputs, creates session records, spawns detached
// worker processes, and answers every status/result/cancel/list/cleanup
// query by consulting the state store and the process supervisor. It never
// performs an upload itself and never blocks on a worker: each operation is
// a short read-reconcile-respond cycle against the store.
package upload

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"sort"
	"syscall"
	"time"
)

// MaxUploadBytes is the size ceiling for local file uploads (10 MiB).
const MaxUploadBytes = 10 << 20

// estimateBytesPerSecond drives the duration estimate returned from
// StartUpload: roughly 2 seconds per MiB, with a 10 second floor.
const estimateBytesPerSecond = 524288

// Manager owns session creation and worker supervision.
type Manager struct {
	store *Store
	super *Supervisor
	log   *slog.Logger

	// maxActive caps non-terminal sessions; 0 means unlimited.
	maxActive int

	// workerCmd builds the command that runs one session's worker.
	// Replaceable in tests; the default re-execs the current binary with
	// the upload-worker subcommand.
	workerCmd func(sessionID, source string, kind SourceKind, stateDir string) *exec.Cmd
}

// NewManager builds a manager over the given store.
func NewManager(store *Store, super *Supervisor, maxActive int, log *slog.Logger) *Manager {
	return &Manager{
		store:     store,
		super:     super,
		log:       log,
		maxActive: maxActive,
		workerCmd: defaultWorkerCmd,
	}
}

// defaultWorkerCmd re-execs the running binary as a detached upload worker.
// Setsid gives the worker its own session so it survives the server process
// and never receives the server's terminal signals.
func defaultWorkerCmd(sessionID, source string, kind SourceKind, stateDir string) *exec.Cmd {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	cmd := exec.Command(exe, "upload-worker",
		"--session-id", sessionID,
		"--source", source,
		"--kind", string(kind),
		"--state-dir", stateDir,
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd
}

// SetWorkerCmd overrides the worker spawn command. Test hook.
func (m *Manager) SetWorkerCmd(fn func(sessionID, source string, kind SourceKind, stateDir string) *exec.Cmd) {
	m.workerCmd = fn
}

// StartResult is returned synchronously from StartUpload.
type StartResult struct {
	SessionID        string
	SizeBytes        int64
	EstimatedSeconds int
}

// StartUpload validates the source, creates the session record, and spawns
// a detached worker. Validation failures create no session and spawn no
// process; a spawn failure marks the already-created session failed before
// the error is returned, so no active "starting" record is left dangling.
func (m *Manager) StartUpload(source string, kind SourceKind) (*StartResult, error) {
	var sizeBytes int64

	switch kind {
	case SourceFile:
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("file not found: %s", source)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("path is not a regular file: %s", source)
		}
		if info.Size() > MaxUploadBytes {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), MaxUploadBytes)
		}
		sizeBytes = info.Size()
	case SourceURL:
		u, err := url.Parse(source)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("invalid source URL: %s", source)
		}
	default:
		return nil, fmt.Errorf("unknown source kind: %q", kind)
	}

	if m.maxActive > 0 {
		active := 0
		for _, sess := range m.store.List() {
			if sess.Active() {
				active++
			}
		}
		if active >= m.maxActive {
			return nil, fmt.Errorf("%w: %d active (max %d)", ErrTooManyUploads, active, m.maxActive)
		}
	}

	sess := &Session{
		SessionID:  NewSessionID(),
		Source:     source,
		SourceKind: kind,
		SizeBytes:  sizeBytes,
		Status:     StatusStarting,
		Progress:   0.0,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.Put(sess); err != nil {
		return nil, err
	}

	cmd := m.workerCmd(sess.SessionID, source, kind, m.store.Dir())
	if err := cmd.Start(); err != nil {
		sess.Status = StatusFailed
		sess.Error = fmt.Sprintf("failed to start upload worker: %v", err)
		sess.ErrorKind = ErrKindUnknown
		if putErr := m.store.Put(sess); putErr != nil {
			m.log.Error("failed to record spawn failure", "session_id", sess.SessionID, "error", putErr)
		}
		return nil, fmt.Errorf("failed to start upload worker: %w", err)
	}

	sess.WorkerPID = cmd.Process.Pid
	if err := m.store.Put(sess); err != nil {
		return nil, err
	}
	// The worker is a child of this process until it exits; reap it in the
	// background so a finished worker does not linger as a zombie and fool
	// the supervisor's liveness probe.
	go cmd.Wait()

	m.log.Info("upload started",
		"session_id", sess.SessionID,
		"source_kind", string(kind),
		"size_bytes", sizeBytes,
		"worker_pid", sess.WorkerPID,
	)

	return &StartResult{
		SessionID:        sess.SessionID,
		SizeBytes:        sizeBytes,
		EstimatedSeconds: estimateSeconds(sizeBytes),
	}, nil
}

// GetStatus returns the session's current record, reconciling a worker that
// died without writing a terminal state. The reconciliation is idempotent:
// once the record is terminal, repeated calls change nothing.
func (m *Manager) GetStatus(sessionID string) (*Session, error) {
	sess, ok := m.store.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if sess.Active() && sess.WorkerPID > 0 && !m.super.AliveWorker(sess.WorkerPID) {
		// Re-read: the worker may have written its terminal state
		// between our read and the liveness probe.
		if cur, ok := m.store.Get(sessionID); ok {
			sess = cur
		}
		if sess.Active() {
			sess.Status = StatusFailed
			sess.Error = "worker died unexpectedly"
			sess.ErrorKind = ErrKindUnknown
			if err := m.store.Put(sess); err != nil {
				return nil, err
			}
			m.log.Warn("reconciled dead worker", "session_id", sessionID, "worker_pid", sess.WorkerPID)
		}
	}

	return sess, nil
}

// Result returns the uploaded file's URL for a completed session. Failed,
// cancelled, and not-yet-finished sessions each surface a distinct error.
func (m *Manager) Result(sessionID string) (*Session, error) {
	sess, err := m.GetStatus(sessionID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case StatusCompleted:
		return sess, nil
	case StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrUploadFailed, sess.Error)
	case StatusCancelled:
		return nil, ErrUploadCancelled
	default:
		return nil, fmt.Errorf("%w: status %s", ErrNotFinished, sess.Status)
	}
}

// CancelOutcome says what Cancel actually did.
type CancelOutcome string

const (
	// CancelDone means the session was active and is now cancelled.
	CancelDone CancelOutcome = "cancelled"
	// CancelAlreadyFinished means the session was already terminal;
	// nothing was changed.
	CancelAlreadyFinished CancelOutcome = "already_finished"
)

// Cancel terminates the session's worker (if any) and marks the session
// cancelled. Cancelling a terminal session is a no-op.
func (m *Manager) Cancel(sessionID string) (CancelOutcome, error) {
	sess, ok := m.store.Get(sessionID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if sess.Status.Terminal() {
		return CancelAlreadyFinished, nil
	}

	if sess.WorkerPID > 0 {
		m.super.Terminate(sess.WorkerPID)
	}

	// The worker may have written its own terminal state (cancelled via
	// signal, or completed by race) while we were terminating it.
	if cur, ok := m.store.Get(sessionID); ok {
		sess = cur
	}
	if !sess.Status.Terminal() {
		sess.Status = StatusCancelled
		sess.Error = "cancelled by caller"
		if err := m.store.Put(sess); err != nil {
			return "", err
		}
	}

	m.log.Info("upload cancelled", "session_id", sessionID)
	return CancelDone, nil
}

// List returns all sessions, newest first, optionally only active ones.
func (m *Manager) List(activeOnly bool) []*Session {
	sessions := m.store.List()
	if activeOnly {
		filtered := sessions[:0]
		for _, sess := range sessions {
			if sess.Active() {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions
}

// Cleanup removes terminal sessions older than maxAge and every corrupt
// state file, returning the number removed.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	removed := m.store.Sweep(time.Now().UTC().Add(-maxAge))
	if removed > 0 {
		m.log.Info("cleaned up upload sessions", "removed", removed)
	}
	return removed
}

// estimateSeconds converts a file size to a rough upload duration:
// ~2 seconds per MiB with a 10 second floor for tiny files.
func estimateSeconds(sizeBytes int64) int {
	est := int(sizeBytes / estimateBytesPerSecond)
	if est < 10 {
		return 10
	}
	return est
}

// IsNotFound reports whether err is a session-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
