package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const sessionFile = "session.json"

// FileStore keeps the snapshot in a JSON file, for the command-line client.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore in dir, defaulting to ~/.rewearify.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("session: resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".rewearify")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session: create %s: %w", dir, err)
	}
	return &FileStore{path: filepath.Join(dir, sessionFile)}, nil
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the file. Missing, unreadable JSON or half-filled content is
// reported as an empty snapshot.
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("session: read %s: %w", s.path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, nil
	}
	if !snap.Authenticated() {
		return Snapshot{}, nil
	}
	return snap, nil
}

// Save writes to a temp file and renames it over the old one.
func (s *FileStore) Save(ctx context.Context, snap Snapshot) error {
	if !snap.Authenticated() {
		return ErrIncomplete
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), sessionFile+".*")
	if err != nil {
		return fmt.Errorf("session: create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session: chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("session: replace %s: %w", s.path, err)
	}
	return nil
}

// Clear removes the file.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: remove %s: %w", s.path, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
