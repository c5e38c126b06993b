package statestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rolewise/rolewise/pkg/models"
)

// FileStore persists state as one YAML file per key under a directory.
// Writes go to a temp file first and rename into place, so readers
// never observe a half-written snapshot.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates the directory if needed and returns a store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: slog.With("component", "statestore", "dir", dir),
	}, nil
}

func (s *FileStore) Save(_ context.Context, key string, state *models.ExecutionState) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state %q: %w", key, err)
	}

	path := s.path(key)
	tmp, err := os.CreateTemp(s.dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to commit state %q: %w", key, err)
	}

	s.logger.Debug("Saved state", "key", key, "bytes", len(data))
	return nil
}

func (s *FileStore) Load(_ context.Context, key string) (*models.ExecutionState, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrStateNotFound, key)
		}
		return nil, fmt.Errorf("failed to read state %q: %w", key, err)
	}

	var state models.ExecutionState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt state file for %q: %w", key, err)
	}
	return &state, nil
}

func (s *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list state dir: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		key := decodeKey(strings.TrimSuffix(name, ".yaml"))
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", models.ErrStateNotFound, key)
		}
		return fmt.Errorf("failed to delete state %q: %w", key, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, encodeKey(key)+".yaml")
}

// encodeKey makes a state key filesystem-safe. Path separators cannot
// appear in file names; everything else passes through.
func encodeKey(key string) string {
	return strings.ReplaceAll(key, "/", "%2F")
}

func decodeKey(name string) string {
	return strings.ReplaceAll(name, "%2F", "/")
}
