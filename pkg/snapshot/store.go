// Package snapshot provides read-only access to the base snapshot: the
// frozen pristine tree that serves as the universal three-way-merge
// ancestor for every skill application.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store is a path-addressed, read-only view of the base snapshot tree.
type Store struct {
	root string
}

// Open opens the snapshot rooted at dir. The directory must exist; the
// snapshot is only created or replaced wholesale by an explicit rebase,
// which is outside normal operation.
func Open(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("base snapshot not found at %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base snapshot path %s is not a directory", dir)
	}
	return &Store{root: dir}, nil
}

// Root returns the snapshot root directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the absolute snapshot path for a repository-relative path.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Has reports whether the snapshot contains the given file.
func (s *Store) Has(rel string) bool {
	info, err := os.Stat(s.Path(rel))
	return err == nil && !info.IsDir()
}

// Read returns the pristine content of the given file.
func (s *Store) Read(rel string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read base file %s: %w", rel, err)
	}
	return data, nil
}

// Hash returns the SHA-256 of the pristine content, hex-encoded.
func (s *Store) Hash(rel string) (string, error) {
	f, err := os.Open(s.Path(rel))
	if err != nil {
		return "", fmt.Errorf("failed to open base file %s: %w", rel, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash base file %s: %w", rel, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Restore copies the pristine version of rel over dst, creating parent
// directories as needed and preserving the snapshot file's mode.
func (s *Store) Restore(rel, dst string) error {
	src := s.Path(rel)
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("base file %s missing: %w", rel, err)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read base file %s: %w", rel, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to restore %s: %w", rel, err)
	}
	return nil
}
