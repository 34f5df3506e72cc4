// Package backup provides the transactional scope around mutating
// operations: snapshot the touched files up front, then either Commit
// (discard the snapshot) or Rollback (restore every file exactly as it
// was, including re-deleting files that did not exist). The guarantee is
// that the end state is the old tree or the new tree, never a mix.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Backup is an open transactional scope.
type Backup struct {
	id      string
	root    string
	dir     string
	entries map[string]entry
	done    bool
}

type entry struct {
	existed bool
	mode    os.FileMode
}

// Begin snapshots the given repository-relative paths from root into a
// new backup directory under backupsDir.
func Begin(root, backupsDir string, paths []string) (*Backup, error) {
	id := uuid.New().String()
	dir := filepath.Join(backupsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	b := &Backup{
		id:      id,
		root:    root,
		dir:     dir,
		entries: make(map[string]entry, len(paths)),
	}

	for _, rel := range paths {
		src := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(src)
		if os.IsNotExist(err) {
			b.entries[rel] = entry{existed: false}
			continue
		}
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to stat %s: %w", rel, err)
		}
		if info.IsDir() {
			continue
		}

		dst := filepath.Join(dir, filepath.FromSlash(rel))
		if err := copyFile(src, dst, info.Mode().Perm()); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
		b.entries[rel] = entry{existed: true, mode: info.Mode().Perm()}
	}

	return b, nil
}

// ID returns the backup identifier.
func (b *Backup) ID() string {
	return b.id
}

// Rollback restores every snapshotted path: files that existed are
// restored byte-for-byte, files that did not exist are removed.
func (b *Backup) Rollback() error {
	if b.done {
		return nil
	}

	var firstErr error
	for rel, e := range b.entries {
		dst := filepath.Join(b.root, filepath.FromSlash(rel))
		if !e.existed {
			if err := os.Remove(dst); err != nil && !os.IsNotExist(err) && firstErr == nil {
				firstErr = fmt.Errorf("failed to remove %s during rollback: %w", rel, err)
			}
			continue
		}
		src := filepath.Join(b.dir, filepath.FromSlash(rel))
		if err := copyFile(src, dst, e.mode); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to restore %s: %w", rel, err)
		}
	}
	if firstErr != nil {
		return firstErr
	}

	b.done = true
	return os.RemoveAll(b.dir)
}

// Commit discards the backup after a fully successful operation.
func (b *Backup) Commit() error {
	if b.done {
		return nil
	}
	b.done = true
	return os.RemoveAll(b.dir)
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
