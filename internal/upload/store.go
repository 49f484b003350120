// store.go implements the file-backed session store shared between the
// server process and detached upload workers.
//
// One JSON file per session, named after the session id. Writes go through
// a same-directory temp file followed by a rename, so a reader never sees a
// half-written record. Corrupt files are treated as absent by readers;
// Sweep is the one caller that deletes them.
package upload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store maps session ids to durable Session records.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) a session store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backing directory, passed to spawned workers.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Put writes the full record, refreshing UpdatedAt. The write is atomic
// from a reader's perspective: temp file in the same directory, then rename.
func (s *Store) Put(sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.SessionID, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session %s: %w", sess.SessionID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session %s: %w", sess.SessionID, err)
	}
	if err := os.Rename(tmpName, s.path(sess.SessionID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session %s: %w", sess.SessionID, err)
	}
	return nil
}

// Get returns the last successfully written record for the session.
// Missing and unparsable records both read as absent.
func (s *Store) Get(sessionID string) (*Session, bool) {
	return s.readFile(s.path(sessionID))
}

func (s *Store) readFile(path string) (*Session, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, false
	}
	if sess.SessionID == "" {
		return nil, false
	}
	return &sess, true
}

// List enumerates all stored sessions, skipping corrupt entries.
func (s *Store) List() []*Session {
	var sessions []*Session
	for _, path := range s.stateFiles() {
		if sess, ok := s.readFile(path); ok {
			sessions = append(sessions, sess)
		}
	}
	return sessions
}

// Delete removes the session's backing file. Deleting an absent session
// is not an error.
func (s *Store) Delete(sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Sweep deletes terminal sessions created before the cutoff, plus every
// unparsable state file regardless of age. Returns the number of files
// removed. Non-terminal sessions are never removed.
func (s *Store) Sweep(cutoff time.Time) int {
	removed := 0
	for _, path := range s.stateFiles() {
		sess, ok := s.readFile(path)
		if !ok {
			if os.Remove(path) == nil {
				removed++
			}
			continue
		}
		if sess.Status.Terminal() && sess.CreatedAt.Before(cutoff) {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed
}

// stateFiles lists candidate session files, excluding in-flight temp files.
func (s *Store) stateFiles() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, name))
	}
	return paths
}
