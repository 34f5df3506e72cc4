package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "app.js"), []byte("console.log('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s, dir
}

func TestOpen_MissingDir(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected an error for a missing snapshot dir")
	}
	if !strings.Contains(err.Error(), "base snapshot not found") {
		t.Errorf("error = %v", err)
	}
}

func TestOpen_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected an error for a non-directory path")
	}
}

func TestStore_HasAndRead(t *testing.T) {
	s, _ := newStore(t)

	if !s.Has("src/app.js") {
		t.Error("Has(src/app.js) = false")
	}
	if s.Has("src/missing.js") {
		t.Error("Has(src/missing.js) = true")
	}
	if s.Has("src") {
		t.Error("Has must be false for directories")
	}

	data, err := s.Read("src/app.js")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "console.log('hi')\n" {
		t.Errorf("Read() = %q", data)
	}
}

func TestStore_Hash(t *testing.T) {
	s, _ := newStore(t)

	got, err := s.Hash("src/app.js")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	sum := sha256.Sum256([]byte("console.log('hi')\n"))
	if want := hex.EncodeToString(sum[:]); got != want {
		t.Errorf("Hash() = %s, want %s", got, want)
	}

	if _, err := s.Hash("src/missing.js"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestStore_Restore(t *testing.T) {
	s, _ := newStore(t)
	work := t.TempDir()
	dst := filepath.Join(work, "nested", "app.js")

	if err := s.Restore("src/app.js", dst); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "console.log('hi')\n" {
		t.Errorf("restored content = %q", data)
	}

	if err := s.Restore("src/missing.js", dst); err == nil {
		t.Error("expected an error restoring a missing base file")
	}
}
