package upload

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func putSession(t *testing.T, store *Store, sess *Session) {
	t.Helper()
	if err := store.Put(sess); err != nil {
		t.Fatalf("failed to put session %s: %v", sess.SessionID, err)
	}
}

// ---------------------------------------------------------------------------
// Put / Get round trip
// ---------------------------------------------------------------------------

func TestStorePutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)

	sess := &Session{
		SessionID:  "upload_abc123_1",
		Source:     "/tmp/photo.png",
		SourceKind: SourceFile,
		SizeBytes:  4096,
		Status:     StatusStarting,
		CreatedAt:  time.Now().UTC(),
	}
	putSession(t, store, sess)

	got, ok := store.Get("upload_abc123_1")
	if !ok {
		t.Fatal("expected session to exist")
	}
	if got.Source != "/tmp/photo.png" || got.SourceKind != SourceFile || got.SizeBytes != 4096 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("expected Put to set UpdatedAt")
	}
}

func TestStorePutRefreshesUpdatedAt(t *testing.T) {
	store := newTestStore(t)

	sess := &Session{SessionID: "s1", Status: StatusStarting, CreatedAt: time.Now().UTC()}
	putSession(t, store, sess)
	first := sess.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	putSession(t, store, sess)

	if !sess.UpdatedAt.After(first) {
		t.Fatalf("expected UpdatedAt to advance: %v -> %v", first, sess.UpdatedAt)
	}
}

func TestStoreGetAbsent(t *testing.T) {
	store := newTestStore(t)
	if _, ok := store.Get("no-such-session"); ok {
		t.Fatal("expected absent session")
	}
}

// ---------------------------------------------------------------------------
// Corruption tolerance
// ---------------------------------------------------------------------------

func TestStoreCorruptRecordReadsAsAbsent(t *testing.T) {
	store := newTestStore(t)

	path := filepath.Join(store.Dir(), "upload_bad_1.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := store.Get("upload_bad_1"); ok {
		t.Fatal("corrupt record should read as absent")
	}
}

func TestStoreListSkipsCorruptAndTempFiles(t *testing.T) {
	store := newTestStore(t)

	putSession(t, store, &Session{SessionID: "s1", Status: StatusUploading, CreatedAt: time.Now().UTC()})
	putSession(t, store, &Session{SessionID: "s2", Status: StatusCompleted, CreatedAt: time.Now().UTC()})

	if err := os.WriteFile(filepath.Join(store.Dir(), "upload_bad.json"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(store.Dir(), ".state-xyz.tmp"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	sessions := store.List()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestStoreDeleteIdempotent(t *testing.T) {
	store := newTestStore(t)

	putSession(t, store, &Session{SessionID: "s1", Status: StatusCompleted, CreatedAt: time.Now().UTC()})
	if err := store.Delete("s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.Delete("s1"); err != nil {
		t.Fatalf("second delete should be a no-op, got: %v", err)
	}
	if _, ok := store.Get("s1"); ok {
		t.Fatal("session should be gone")
	}
}

// ---------------------------------------------------------------------------
// Sweep
// ---------------------------------------------------------------------------

func TestStoreSweep(t *testing.T) {
	store := newTestStore(t)
	old := time.Now().UTC().Add(-48 * time.Hour)

	putSession(t, store, &Session{SessionID: "old-done", Status: StatusCompleted, CreatedAt: old})
	putSession(t, store, &Session{SessionID: "old-failed", Status: StatusFailed, CreatedAt: old})
	putSession(t, store, &Session{SessionID: "old-active", Status: StatusUploading, CreatedAt: old})
	putSession(t, store, &Session{SessionID: "new-done", Status: StatusCompleted, CreatedAt: time.Now().UTC()})
	if err := os.WriteFile(filepath.Join(store.Dir(), "upload_corrupt.json"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed := store.Sweep(time.Now().UTC().Add(-24 * time.Hour))
	if removed != 3 {
		t.Fatalf("expected 3 removals (2 old terminal + 1 corrupt), got %d", removed)
	}

	if _, ok := store.Get("old-active"); !ok {
		t.Fatal("active session must never be swept")
	}
	if _, ok := store.Get("new-done"); !ok {
		t.Fatal("recent terminal session should survive")
	}
	if _, ok := store.Get("old-done"); ok {
		t.Fatal("old terminal session should be swept")
	}
}

func TestStoreSweepZeroAgeRemovesAllTerminal(t *testing.T) {
	store := newTestStore(t)

	putSession(t, store, &Session{SessionID: "done", Status: StatusCompleted, CreatedAt: time.Now().UTC().Add(-time.Second)})
	putSession(t, store, &Session{SessionID: "cancelled", Status: StatusCancelled, CreatedAt: time.Now().UTC().Add(-time.Second)})
	putSession(t, store, &Session{SessionID: "active", Status: StatusStarting, CreatedAt: time.Now().UTC().Add(-time.Second)})

	removed := store.Sweep(time.Now().UTC())
	if removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
	if _, ok := store.Get("active"); !ok {
		t.Fatal("active session must survive zero-age sweep")
	}
}
