// worker.go is the body of the detached upload worker process.
//
// A worker performs exactly one session's upload to completion, failure, or
// cancellation and reports every transition into the state store; the store
// is its only channel back to the manager. The process is spawned detached
// (own session group) so a server restart does not kill in-flight uploads.
//
// Cancellation is cooperative: SIGTERM/SIGINT set an interrupted flag and
// cancel the worker's context. The flag is checked at each natural
// checkpoint (before an upload attempt, after a download); once set, the
// worker writes cancelled and stops, even if an in-flight upload call races
// to success afterwards.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// Uploader is the slice of the backend client the worker needs. Defined as
// an interface so tests can inject a mock.
type Uploader interface {
	// UploadFile pushes a local file to backend storage and returns its
	// public URL.
	UploadFile(ctx context.Context, path string) (string, error)

	// FetchToFile downloads url into dest and returns the byte count.
	FetchToFile(ctx context.Context, url, dest string) (int64, error)
}

const (
	// maxUploadAttempts bounds the retry loop.
	maxUploadAttempts = 3
	// backoffBase is the first retry delay; subsequent delays double.
	backoffBase = 1 * time.Second
)

// Worker executes one upload session end to end.
type Worker struct {
	sessionID string
	source    string
	kind      SourceKind
	store     *Store
	client    Uploader
	log       *slog.Logger

	interrupted atomic.Bool

	// Attempts and Backoff override the retry defaults; used by tests.
	Attempts int
	Backoff  time.Duration
}

// NewWorker builds a worker for the given session. The session record is
// normally created by the manager before the worker starts; the worker
// reconstructs a minimal record if it is missing.
func NewWorker(sessionID, source string, kind SourceKind, store *Store, client Uploader, log *slog.Logger) *Worker {
	return &Worker{
		sessionID: sessionID,
		source:    source,
		kind:      kind,
		store:     store,
		client:    client,
		log:       log.With("session_id", sessionID),
		Attempts:  maxUploadAttempts,
		Backoff:   backoffBase,
	}
}

// Interrupt requests cooperative cancellation: the worker stops at its next
// checkpoint and writes status cancelled instead of continuing.
func (w *Worker) Interrupt() {
	w.interrupted.Store(true)
}

// Run drives the session to a terminal state. It always writes a terminal
// record before returning, whatever the exit path.
func (w *Worker) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Termination requests flip the interrupted flag and abort in-flight
	// network calls via the context; checkpoints do the rest.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			w.Interrupt()
			cancel()
		case <-ctx.Done():
		}
	}()

	w.writeState(func(s *Session) {
		s.Status = StatusStarting
		s.Progress = 0.0
	})

	resultURL, err := w.perform(ctx)

	switch {
	case w.interrupted.Load() || errors.Is(err, errInterrupted) || errors.Is(err, context.Canceled):
		w.log.Info("upload cancelled")
		w.writeState(func(s *Session) {
			s.Status = StatusCancelled
			s.Error = "upload interrupted"
		})
	case err != nil:
		kind := ClassifyError(err)
		w.log.Error("upload failed", "error", err, "error_kind", string(kind))
		w.writeState(func(s *Session) {
			s.Status = StatusFailed
			s.Error = err.Error()
			s.ErrorKind = kind
		})
	default:
		w.log.Info("upload completed", "result_url", resultURL)
		w.writeState(func(s *Session) {
			s.Status = StatusCompleted
			s.Progress = 1.0
			s.ResultURL = resultURL
			s.Error = ""
			s.ErrorKind = ""
		})
	}
}

// perform runs download-if-needed then upload-with-retry and returns the
// result URL.
func (w *Worker) perform(ctx context.Context) (string, error) {
	path := w.source

	if w.kind == SourceURL {
		w.writeState(func(s *Session) {
			s.Status = StatusDownloading
			s.Progress = 0.1
		})

		tmp, err := os.CreateTemp("", "fal-upload-*"+urlSuffix(w.source))
		if err != nil {
			return "", fmt.Errorf("failed to create temp file: %w", err)
		}
		tmp.Close()
		// The temp artifact is removed on every exit path.
		defer os.Remove(tmp.Name())

		size, err := w.client.FetchToFile(ctx, w.source, tmp.Name())
		if err != nil {
			return "", fmt.Errorf("failed to download %s: %w", w.source, err)
		}

		w.writeState(func(s *Session) {
			s.Status = StatusUploading
			s.Progress = 0.5
			s.SizeBytes = size
		})
		path = tmp.Name()
	} else {
		// Re-check what the manager validated: the file may have
		// vanished or grown between validation and now.
		info, err := os.Stat(w.source)
		if err != nil {
			return "", err
		}
		if info.Size() > MaxUploadBytes {
			return "", fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), MaxUploadBytes)
		}
		w.writeState(func(s *Session) {
			s.Status = StatusUploading
			s.Progress = 0.1
			s.SizeBytes = info.Size()
		})
	}

	if w.interrupted.Load() {
		return "", errInterrupted
	}

	return w.uploadWithRetry(ctx, path)
}

// uploadWithRetry attempts the upload up to w.Attempts times with
// exponential backoff. Each failed attempt is recorded (retry_count,
// transient error message) without transitioning the session; only
// exhausting every attempt surfaces the failure.
func (w *Worker) uploadWithRetry(ctx context.Context, path string) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.Backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempts := 0
	var resultURL string

	operation := func() error {
		if w.interrupted.Load() {
			return backoff.Permanent(errInterrupted)
		}
		u, err := w.client.UploadFile(ctx, path)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return backoff.Permanent(err)
			}
			attempts++
			w.log.Warn("upload attempt failed", "attempt", attempts, "error", err)
			w.writeState(func(s *Session) {
				s.RetryCount = attempts
				s.Error = fmt.Sprintf("upload attempt %d failed: %v", attempts, err)
			})
			return err
		}
		resultURL = u
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.Attempts-1)), ctx))
	if err != nil {
		return "", err
	}

	w.writeState(func(s *Session) { s.Progress = 0.9 })
	return resultURL, nil
}

// writeState applies mutate to the current record and persists it as a
// whole-record write. Writes against a record that is already terminal are
// dropped: the manager may have cancelled the session underneath us, and
// terminal states are immutable. Progress never moves backwards.
func (w *Worker) writeState(mutate func(*Session)) {
	sess, ok := w.store.Get(w.sessionID)
	if !ok {
		sess = &Session{
			SessionID:  w.sessionID,
			Source:     w.source,
			SourceKind: w.kind,
			CreatedAt:  time.Now().UTC(),
		}
	}
	if sess.Status.Terminal() {
		return
	}

	prevProgress := sess.Progress
	mutate(sess)
	if sess.Progress < prevProgress {
		sess.Progress = prevProgress
	}

	if err := w.store.Put(sess); err != nil {
		// The store is the only channel back to the manager; all we can
		// do here is log.
		w.log.Error("failed to persist session state", "error", err)
	}
}

// urlSuffix extracts a file extension from a source URL for the temp file
// name, so the backend sees a sensible content type.
func urlSuffix(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".tmp"
	}
	ext := filepath.Ext(u.Path)
	if ext == "" || strings.ContainsAny(ext, "/\\") {
		return ".tmp"
	}
	return ext
}
