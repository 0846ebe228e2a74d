package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/gemcaller/types"
)

// FileStore keeps the snapshot in a single JSON file
type FileStore struct {
	path string
}

// NewFileStore creates a new file store
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file. A missing file is an empty state.
func (s *FileStore) Load(_ context.Context) (*types.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", s.path).Msg("No state file, starting empty")
		return types.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	snap := types.NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return snap.Normalize(), nil
}

// Save writes path.tmp, syncs it and renames it over the state file
func (s *FileStore) Save(_ context.Context, snap *types.Snapshot) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open temp state: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp state: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp state: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp state: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}

// Close is a no-op for files
func (s *FileStore) Close() error {
	return nil
}
