// Package session holds the authenticated identity of the local user and
// persists it between CLI invocations.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoSession is returned when nobody is logged in.
var ErrNoSession = errors.New("session: not logged in")

// Session is what login hands back: the bearer token, the display name and
// the user id every live event is keyed by.
type Session struct {
	Token    string `json:"token"`
	UserName string `json:"userName"`
	UserID   string `json:"userId"`
}

// Authenticated reports whether the session can be used for protected calls.
// A token is the only gate; the user id is required to scope live events.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.UserID != ""
}

// Store persists one session as a JSON file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath is <user config dir>/skillswap/session.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("session: locate config dir: %w", err)
	}
	return filepath.Join(dir, "skillswap", "session.json"), nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Load reads the stored session. A missing file or a session without a
// token yields ErrNoSession.
func (s *Store) Load() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: read: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return Session{}, fmt.Errorf("session: decode %s: %w", s.path, err)
	}
	if !sess.Authenticated() {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// Save writes sess atomically with owner-only permissions.
func (s *Store) Save(sess Session) error {
	if !sess.Authenticated() {
		return ErrNoSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session: create dir: %w", err)
	}
	b, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("session: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("session: write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("session: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Clear removes the stored session. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: remove: %w", err)
	}
	return nil
}
