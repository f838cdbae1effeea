package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Namespace names one of the content directories.
type Namespace string

const (
	NamespaceDirect  Namespace = "direct"
	NamespaceWebhook Namespace = "webhook"
)

// PlaceholderName is the empty file kept in every directory so that an
// ingestion pass never reads an empty directory.
const PlaceholderName = "tmp.txt"

const stagePrefix = ".upload-"

// ParseNamespace maps user input ("direct", "data", "webhook", "data_webhooks") to a Namespace.
func ParseNamespace(s string) (Namespace, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "data":
		return NamespaceDirect, nil
	case "webhook", "webhooks", "data_webhooks":
		return NamespaceWebhook, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNamespace, s)
	}
}

// ContentStore owns the content directories and the index storage directory.
type ContentStore struct {
	dirs       map[Namespace]string
	storageDir string
}

// NewContentStore returns a store over the given directories. Nothing is
// created until EnsureLayout is called.
func NewContentStore(dataDir, webhookDir, storageDir string) *ContentStore {
	return &ContentStore{
		dirs: map[Namespace]string{
			NamespaceDirect:  dataDir,
			NamespaceWebhook: webhookDir,
		},
		storageDir: storageDir,
	}
}

// Namespaces lists the namespaces in ingestion order.
func (s *ContentStore) Namespaces() []Namespace {
	return []Namespace{NamespaceDirect, NamespaceWebhook}
}

// Dir returns the directory backing ns.
func (s *ContentStore) Dir(ns Namespace) (string, error) {
	dir, ok := s.dirs[ns]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	return dir, nil
}

// StorageDir returns the persisted index directory.
func (s *ContentStore) StorageDir() string { return s.storageDir }

// EnsureLayout creates every directory and its placeholder file when missing.
func (s *ContentStore) EnsureLayout() error {
	for _, dir := range []string{s.dirs[NamespaceDirect], s.dirs[NamespaceWebhook], s.storageDir} {
		if err := ensurePlaceholderDir(dir); err != nil {
			return err
		}
	}
	return nil
}

func ensurePlaceholderDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	placeholder := filepath.Join(dir, PlaceholderName)
	if _, err := os.Stat(placeholder); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(placeholder, nil, 0o644); err != nil {
			return fmt.Errorf("create placeholder in %s: %w", dir, err)
		}
	} else if err != nil {
		return err
	}
	return nil
}

// sanitizeFilename reduces name to a plain file name inside the namespace directory.
func sanitizeFilename(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := filepath.Base(name)
	if base == "" || base == "." || base == ".." || base == "/" || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return base, nil
}

// ResolvePath returns the on-disk path for name in ns.
func (s *ContentStore) ResolvePath(ns Namespace, name string) (string, error) {
	dir, err := s.Dir(ns)
	if err != nil {
		return "", err
	}
	base, err := sanitizeFilename(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, base), nil
}

func (s *ContentStore) writablePath(ns Namespace, name string) (string, error) {
	path, err := s.ResolvePath(ns, name)
	if err != nil {
		return "", err
	}
	if filepath.Base(path) == PlaceholderName {
		return "", fmt.Errorf("%w: %s", ErrReservedFile, PlaceholderName)
	}
	return path, nil
}

// StagedFile is a hidden temp file that becomes a content file on Commit.
// Ingestion skips hidden files, so an uncommitted stage is never indexed.
type StagedFile struct {
	*os.File
	finalPath string
}

// Stage opens a temp file next to the final location of name. The temp name
// keeps the original extension so the extractor can inspect it before Commit.
func (s *ContentStore) Stage(ns Namespace, name string) (*StagedFile, error) {
	final, err := s.writablePath(ns, name)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(final)
	if err := ensurePlaceholderDir(dir); err != nil {
		return nil, err
	}
	tmp := filepath.Join(dir, stagePrefix+uuid.New().String()+"-"+filepath.Base(final))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}
	return &StagedFile{File: f, finalPath: final}, nil
}

// FinalPath is where Commit moves the staged content.
func (f *StagedFile) FinalPath() string { return f.finalPath }

// Commit closes the temp file and renames it over the final path.
func (f *StagedFile) Commit() error {
	if err := f.File.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		_ = os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), f.finalPath); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("move staged file into place: %w", err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (f *StagedFile) Discard() {
	_ = f.File.Close()
	_ = os.Remove(f.Name())
}

// AppendText appends text to name, separating it from existing content with
// a newline. The file is created when missing.
func (s *ContentStore) AppendText(ns Namespace, name, text string) (string, error) {
	path, err := s.writablePath(ns, name)
	if err != nil {
		return "", err
	}
	if err := ensurePlaceholderDir(filepath.Dir(path)); err != nil {
		return "", err
	}
	prefix := ""
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		prefix = "\n"
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s for append: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if _, err := f.WriteString(prefix + text); err != nil {
		return "", fmt.Errorf("append to %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

// Remove deletes a single file from ns.
func (s *ContentStore) Remove(ns Namespace, name string) error {
	path, err := s.writablePath(ns, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	return nil
}

// RemoveAll deletes every file in ns except the placeholder and returns how
// many were removed.
func (s *ContentStore) RemoveAll(ns Namespace) (int, error) {
	dir, err := s.Dir(ns)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ensurePlaceholderDir(dir)
		}
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == PlaceholderName {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, ensurePlaceholderDir(dir)
}

// List returns the user-visible file names in ns, sorted.
func (s *ContentStore) List(ns Namespace) ([]string, error) {
	paths, err := s.ContentPaths(ns)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		if name := filepath.Base(p); name != PlaceholderName {
			names = append(names, name)
		}
	}
	return names, nil
}

// ContentPaths returns every ingestible file in ns, placeholder included.
// Sub-directories and hidden files are skipped.
func (s *ContentStore) ContentPaths(ns Namespace) ([]string, error) {
	dir, err := s.Dir(ns)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
