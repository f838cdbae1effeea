package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github/itish2003/docbot/models"
)

// IndexStore persists built indexes. Persist must either fully replace the
// previous index or leave it untouched.
type IndexStore interface {
	Name() string
	Exists(ctx context.Context) (bool, error)
	Persist(ctx context.Context, idx *Index) error
	Load(ctx context.Context) (Searchable, error)
	Close() error
}

const fileIndexName = "index.json"

type indexFile struct {
	Manifest models.IndexManifest `json:"manifest"`
	Entries  []models.IndexEntry  `json:"entries"`
}

// FileIndexStore keeps the whole index in storage/index.json.
type FileIndexStore struct {
	dir string
}

func NewFileIndexStore(dir string) *FileIndexStore {
	return &FileIndexStore{dir: dir}
}

func (s *FileIndexStore) Name() string { return "file" }

func (s *FileIndexStore) path() string { return filepath.Join(s.dir, fileIndexName) }

func (s *FileIndexStore) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(s.path())
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Persist writes to a temp file in the same directory, syncs it and renames
// it over index.json.
func (s *FileIndexStore) Persist(_ context.Context, idx *Index) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(indexFile{Manifest: idx.Manifest(), Entries: idx.Entries()}); err != nil {
		cleanup()
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpName, s.path()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

func (s *FileIndexStore) Load(_ context.Context) (Searchable, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return NewIndex(f.Manifest, f.Entries), nil
}

func (s *FileIndexStore) Close() error { return nil }
