package gallery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore is the directory-backed working set of gallery entries. One regular
// file per key; hidden files and derived-cache artifacts are not entries.
type LocalStore struct {
	dir    string
	ignore func(name string) bool
}

// NewLocalStore creates a store rooted at dir. Names for which ignore returns
// true are never listed as entries (ignore may be nil).
func NewLocalStore(dir string, ignore func(name string) bool) *LocalStore {
	if ignore == nil {
		ignore = func(string) bool { return false }
	}
	return &LocalStore{dir: dir, ignore: ignore}
}

// Dir returns the gallery directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Ensure creates the gallery directory if needed.
func (s *LocalStore) Ensure() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating gallery directory: %w", err)
	}
	return nil
}

// Path returns the local file path for key.
func (s *LocalStore) Path(key string) string {
	return filepath.Join(s.dir, key)
}

// Add writes content under key. The write is atomic; an existing entry with the
// same key is replaced (last write wins).
func (s *LocalStore) Add(key string, content []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.Ensure(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, s.Path(key)); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

// Remove deletes the entry for key. Removing a missing key is not an error.
func (s *LocalStore) Remove(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// Read returns the content stored under key.
func (s *LocalStore) Read(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Contains reports whether key is a current entry.
func (s *LocalStore) Contains(key string) bool {
	if ValidateKey(key) != nil || s.ignore(key) {
		return false
	}
	info, err := os.Stat(s.Path(key))
	return err == nil && info.Mode().IsRegular()
}

// List returns all entries sorted by key. A missing directory is an empty gallery.
func (s *LocalStore) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing gallery directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if !de.Type().IsRegular() || strings.HasPrefix(name, ".") || s.ignore(name) {
			continue
		}
		entries = append(entries, NewEntry(name, s.Path(name)))
	}
	return entries, nil
}

// Keys returns the keys of all entries.
func (s *LocalStore) Keys() ([]string, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

// IsEmpty reports whether the gallery has no entries.
func (s *LocalStore) IsEmpty() (bool, error) {
	entries, err := s.List()
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// Fingerprint returns the fingerprint of the current key set.
func (s *LocalStore) Fingerprint() (string, error) {
	keys, err := s.Keys()
	if err != nil {
		return "", err
	}
	return Fingerprint(keys), nil
}
