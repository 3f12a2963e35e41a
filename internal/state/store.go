package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"nft/seller/internal/domain"
)

// Store keeps the progress record durable across runs.
type Store interface {
	// Exists reports whether a snapshot from a previous run is available.
	Exists(ctx context.Context) (bool, error)
	// Load returns the stored record, or an empty one when nothing was saved yet.
	Load(ctx context.Context) (*Record, error)
	// Persist overwrites the snapshot with the full record.
	Persist(ctx context.Context, record *Record) error
	Describe() string
}

type fileStore struct {
	path string
}

func NewFileStore(path string) Store {
	return &fileStore{path: path}
}

func (s *fileStore) Describe() string {
	return "file " + s.path
}

func (s *fileStore) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat %s: %v", domain.ErrPersistence, s.path, err)
}

func (s *fileStore) Load(_ context.Context) (*Record, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewRecord(), nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrPersistence, s.path, err)
	}
	return decode(b, s.path)
}

func (s *fileStore) Persist(_ context.Context, record *Record) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", domain.ErrPersistence, err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %v", domain.ErrPersistence, dir, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", domain.ErrPersistence, s.path, err)
	}
	return nil
}

func decode(b []byte, source string) (*Record, error) {
	record := NewRecord()
	if err := json.Unmarshal(b, record); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptSnapshot, source, err)
	}
	return record, nil
}
