package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Mock uploader
// ---------------------------------------------------------------------------

type mockUploader struct {
	uploadFn func(ctx context.Context, path string) (string, error)
	fetchFn  func(ctx context.Context, url, dest string) (int64, error)
}

func (m *mockUploader) UploadFile(ctx context.Context, path string) (string, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, path)
	}
	return "https://fal.media/files/test", nil
}

func (m *mockUploader) FetchToFile(ctx context.Context, url, dest string) (int64, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, url, dest)
	}
	return 0, fmt.Errorf("unexpected fetch of %s", url)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestWorker builds a worker with millisecond backoff so retry tests
// finish fast.
func newTestWorker(t *testing.T, store *Store, source string, kind SourceKind, client Uploader) *Worker {
	t.Helper()
	w := NewWorker("upload_test_1", source, kind, store, client, discardLogger())
	w.Backoff = time.Millisecond
	return w
}

// writeTempFile creates a small source file and returns its path.
func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.png")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func seedSession(t *testing.T, store *Store, source string, kind SourceKind) {
	t.Helper()
	putSession(t, store, &Session{
		SessionID:  "upload_test_1",
		Source:     source,
		SourceKind: kind,
		Status:     StatusStarting,
		CreatedAt:  time.Now().UTC(),
	})
}

func getTestSession(t *testing.T, store *Store) *Session {
	t.Helper()
	sess, ok := store.Get("upload_test_1")
	if !ok {
		t.Fatal("session record missing")
	}
	return sess
}

// ---------------------------------------------------------------------------
// Successful file upload
// ---------------------------------------------------------------------------

func TestWorkerFileUploadLifecycle(t *testing.T) {
	store := newTestStore(t)
	src := writeTempFile(t, "image bytes")
	seedSession(t, store, src, SourceFile)

	w := newTestWorker(t, store, src, SourceFile, &mockUploader{})
	w.Run(context.Background())

	sess := getTestSession(t, store)
	if sess.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", sess.Status, sess.Error)
	}
	if sess.ResultURL != "https://fal.media/files/test" {
		t.Fatalf("unexpected result URL %q", sess.ResultURL)
	}
	if sess.Progress != 1.0 {
		t.Fatalf("expected progress 1.0, got %v", sess.Progress)
	}
	if sess.SizeBytes != int64(len("image bytes")) {
		t.Fatalf("expected size %d, got %d", len("image bytes"), sess.SizeBytes)
	}
	if sess.Error != "" || sess.ErrorKind != "" {
		t.Fatalf("completed session must carry no error, got %q/%q", sess.Error, sess.ErrorKind)
	}
}

// ---------------------------------------------------------------------------
// Retry behavior
// ---------------------------------------------------------------------------

func TestWorkerTransientFailureThenSuccess(t *testing.T) {
	store := newTestStore(t)
	src := writeTempFile(t, "data")
	seedSession(t, store, src, SourceFile)

	calls := 0
	mock := &mockUploader{
		uploadFn: func(ctx context.Context, path string) (string, error) {
			calls++
			if calls == 1 {
				return "", fmt.Errorf("connection reset by peer")
			}
			return "https://fal.media/files/ok", nil
		},
	}

	w := newTestWorker(t, store, src, SourceFile, mock)
	w.Run(context.Background())

	sess := getTestSession(t, store)
	if sess.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", sess.Status)
	}
	if sess.RetryCount != 1 {
		t.Fatalf("expected retry_count 1, got %d", sess.RetryCount)
	}
	if sess.Error != "" {
		t.Fatalf("transient error must be cleared on success, got %q", sess.Error)
	}
}

func TestWorkerRetriesExhausted(t *testing.T) {
	store := newTestStore(t)
	src := writeTempFile(t, "data")
	seedSession(t, store, src, SourceFile)

	calls := 0
	mock := &mockUploader{
		uploadFn: func(ctx context.Context, path string) (string, error) {
			calls++
			return "", fmt.Errorf("connection refused")
		},
	}

	w := newTestWorker(t, store, src, SourceFile, mock)
	w.Run(context.Background())

	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	sess := getTestSession(t, store)
	if sess.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", sess.Status)
	}
	if sess.RetryCount != 3 {
		t.Fatalf("expected retry_count 3, got %d", sess.RetryCount)
	}
	if sess.ErrorKind != ErrKindNetwork {
		t.Fatalf("expected network error kind, got %s", sess.ErrorKind)
	}
}

// ---------------------------------------------------------------------------
// Failure classification
// ---------------------------------------------------------------------------

func TestWorkerSourceFileMissing(t *testing.T) {
	store := newTestStore(t)
	src := filepath.Join(t.TempDir(), "vanished.png")
	seedSession(t, store, src, SourceFile)

	w := newTestWorker(t, store, src, SourceFile, &mockUploader{})
	w.Run(context.Background())

	sess := getTestSession(t, store)
	if sess.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", sess.Status)
	}
	if sess.ErrorKind != ErrKindFileNotFound {
		t.Fatalf("expected file_not_found, got %s", sess.ErrorKind)
	}
}

func TestWorkerSourceFileTooLarge(t *testing.T) {
	store := newTestStore(t)
	src := filepath.Join(t.TempDir(), "big.bin")
	f, err := os.Create(src)
	if err != nil {
		t.Fatal(err)
	}
	// Sparse file: logical size over the ceiling without the disk cost.
	if err := f.Truncate(MaxUploadBytes + 1); err != nil {
		t.Fatal(err)
	}
	f.Close()
	seedSession(t, store, src, SourceFile)

	w := newTestWorker(t, store, src, SourceFile, &mockUploader{})
	w.Run(context.Background())

	sess := getTestSession(t, store)
	if sess.Status != StatusFailed || sess.ErrorKind != ErrKindFileTooLarge {
		t.Fatalf("expected failed/file_too_large, got %s/%s", sess.Status, sess.ErrorKind)
	}
}

// ---------------------------------------------------------------------------
// URL sources
// ---------------------------------------------------------------------------

func TestWorkerURLLifecycle(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "https://example.com/cat.png", SourceURL)

	var uploadedPath string
	mock := &mockUploader{
		fetchFn: func(ctx context.Context, url, dest string) (int64, error) {
			if err := os.WriteFile(dest, []byte("fetched bytes"), 0o644); err != nil {
				return 0, err
			}
			return int64(len("fetched bytes")), nil
		},
		uploadFn: func(ctx context.Context, path string) (string, error) {
			uploadedPath = path
			return "https://fal.media/files/cat", nil
		},
	}

	w := newTestWorker(t, store, "https://example.com/cat.png", SourceURL, mock)
	w.Run(context.Background())

	sess := getTestSession(t, store)
	if sess.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", sess.Status, sess.Error)
	}
	if sess.SizeBytes != int64(len("fetched bytes")) {
		t.Fatalf("expected downloaded size recorded, got %d", sess.SizeBytes)
	}
	if uploadedPath == "" {
		t.Fatal("upload never ran")
	}
	if filepath.Ext(uploadedPath) != ".png" {
		t.Fatalf("temp artifact should keep the source extension, got %q", uploadedPath)
	}
	if _, err := os.Stat(uploadedPath); !os.IsNotExist(err) {
		t.Fatalf("temp artifact %s should be removed after the run", uploadedPath)
	}
}

func TestWorkerURLFetchFailure(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "https://example.com/gone.png", SourceURL)

	mock := &mockUploader{
		fetchFn: func(ctx context.Context, url, dest string) (int64, error) {
			return 0, fmt.Errorf("no such host")
		},
	}

	w := newTestWorker(t, store, "https://example.com/gone.png", SourceURL, mock)
	w.Run(context.Background())

	sess := getTestSession(t, store)
	if sess.Status != StatusFailed || sess.ErrorKind != ErrKindNetwork {
		t.Fatalf("expected failed/network, got %s/%s", sess.Status, sess.ErrorKind)
	}
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

func TestWorkerInterruptedBeforeUpload(t *testing.T) {
	store := newTestStore(t)
	src := writeTempFile(t, "data")
	seedSession(t, store, src, SourceFile)

	uploaded := false
	mock := &mockUploader{
		uploadFn: func(ctx context.Context, path string) (string, error) {
			uploaded = true
			return "https://fal.media/files/raced", nil
		},
	}

	w := newTestWorker(t, store, src, SourceFile, mock)
	w.Interrupt()
	w.Run(context.Background())

	if uploaded {
		t.Fatal("interrupted worker must not start an upload attempt")
	}
	sess := getTestSession(t, store)
	if sess.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", sess.Status)
	}
}

// A worker must never overwrite a terminal record: the manager may have
// cancelled the session while the worker was mid-flight.
func TestWorkerDoesNotOverwriteTerminalRecord(t *testing.T) {
	store := newTestStore(t)
	src := writeTempFile(t, "data")
	putSession(t, store, &Session{
		SessionID:  "upload_test_1",
		Source:     src,
		SourceKind: SourceFile,
		Status:     StatusCancelled,
		Error:      "cancelled by caller",
		CreatedAt:  time.Now().UTC(),
	})

	w := newTestWorker(t, store, src, SourceFile, &mockUploader{})
	w.Run(context.Background())

	sess := getTestSession(t, store)
	if sess.Status != StatusCancelled {
		t.Fatalf("terminal state must be immutable, got %s", sess.Status)
	}
	if sess.ResultURL != "" {
		t.Fatal("cancelled session must not gain a result URL")
	}
}

// ---------------------------------------------------------------------------
// Progress invariant
// ---------------------------------------------------------------------------

func TestWorkerProgressNeverDecreases(t *testing.T) {
	store := newTestStore(t)
	src := writeTempFile(t, "data")
	// Seed with progress already past the worker's first checkpoint value.
	putSession(t, store, &Session{
		SessionID:  "upload_test_1",
		Source:     src,
		SourceKind: SourceFile,
		Status:     StatusUploading,
		Progress:   0.5,
		CreatedAt:  time.Now().UTC(),
	})

	w := newTestWorker(t, store, src, SourceFile, &mockUploader{})
	w.writeState(func(s *Session) {
		s.Progress = 0.1
	})

	sess := getTestSession(t, store)
	if sess.Progress != 0.5 {
		t.Fatalf("progress moved backwards: %v", sess.Progress)
	}
}
