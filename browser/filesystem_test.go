package browser

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSystemWriteCreatesParentsAndOverwrites(t *testing.T) {
	fs, err := NewFileSystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystem: %v", err)
	}
	name := filepath.Join("jules-scratch", "verification", "verification.png")
	path, err := fs.WriteFile(name, []byte("first"))
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := fs.WriteFile(name, []byte("second")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("expected overwrite, got %q", data)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestFileSystemRejectsEscapes(t *testing.T) {
	fs, err := NewFileSystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystem: %v", err)
	}
	for _, name := range []string{"", "../outside.png", "a/../../outside.png", "/tmp/abs.png"} {
		if _, err := fs.WriteFile(name, []byte("x")); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
	if _, err := fs.WriteFile("..hidden.png", []byte("x")); err != nil {
		t.Fatalf("dot-prefixed names are allowed: %v", err)
	}
}

func TestFileSystemRemoveMissingIsNoop(t *testing.T) {
	fs, err := NewFileSystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystem: %v", err)
	}
	if err := fs.Remove("nope/missing.png"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if _, err := fs.WriteFile("present.png", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := fs.Remove("present.png"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := fs.ReadFile("present.png"); !os.IsNotExist(err) {
		t.Fatalf("expected file gone, got %v", err)
	}
}
