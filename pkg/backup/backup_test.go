package backup

import (
	"os"
	"path/filepath"
	"testing"
)

func setupTree(t *testing.T) (root, backupsDir string) {
	t.Helper()
	root = t.TempDir()
	backupsDir = filepath.Join(t.TempDir(), "backups")
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "app.js"), []byte("original\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root, backupsDir
}

func TestRollback_RestoresAndRemoves(t *testing.T) {
	root, backupsDir := setupTree(t)

	b, err := Begin(root, backupsDir, []string{"src/app.js", "src/new.js"})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	// Mutate: overwrite the existing file, create the new one.
	if err := os.WriteFile(filepath.Join(root, "src", "app.js"), []byte("mutated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "new.js"), []byte("added\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := b.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "src", "app.js"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original\n" {
		t.Errorf("restored content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(root, "src", "new.js")); !os.IsNotExist(err) {
		t.Errorf("created file should be removed on rollback, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(backupsDir, b.ID())); !os.IsNotExist(err) {
		t.Errorf("backup dir should be deleted after rollback, stat err = %v", err)
	}
}

func TestRollback_RestoresDeletedFile(t *testing.T) {
	root, backupsDir := setupTree(t)

	b, err := Begin(root, backupsDir, []string{"src/app.js"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "src", "app.js")); err != nil {
		t.Fatal(err)
	}

	if err := b.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "src", "app.js"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original\n" {
		t.Errorf("restored content = %q", data)
	}
}

func TestCommit_DiscardsBackup(t *testing.T) {
	root, backupsDir := setupTree(t)

	b, err := Begin(root, backupsDir, []string{"src/app.js"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "app.js"), []byte("mutated\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(backupsDir, b.ID())); !os.IsNotExist(err) {
		t.Errorf("backup dir should be deleted after commit, stat err = %v", err)
	}

	// Rollback after commit must be a no-op.
	if err := b.Rollback(); err != nil {
		t.Fatalf("Rollback() after Commit() error = %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "src", "app.js"))
	if string(data) != "mutated\n" {
		t.Errorf("rollback after commit must not touch the tree, got %q", data)
	}
}

func TestBegin_DistinctIDs(t *testing.T) {
	root, backupsDir := setupTree(t)

	b1, err := Begin(root, backupsDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := Begin(root, backupsDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b1.ID() == b2.ID() {
		t.Error("backup IDs must be unique")
	}
	_ = b1.Commit()
	_ = b2.Commit()
}
