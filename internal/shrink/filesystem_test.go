package shrink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckUsable_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valid.jpg")
	if err := os.WriteFile(path, []byte("test content"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if err := checkUsable(NewOSFileSystem(), path); err != nil {
		t.Errorf("Expected no error for valid file, got: %v", err)
	}
}

func TestCheckUsable_ZeroByteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jpg")
	if err := os.WriteFile(path, []byte{}, 0644); err != nil {
		t.Fatalf("Failed to create 0-byte file: %v", err)
	}

	err := checkUsable(NewOSFileSystem(), path)
	if err == nil || err.Error() != "file is 0 bytes (corrupted)" {
		t.Errorf("Expected 0 bytes error, got: %v", err)
	}
}

func TestCheckUsable_Directory(t *testing.T) {
	err := checkUsable(NewOSFileSystem(), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "not a regular file") {
		t.Errorf("Expected regular file error, got: %v", err)
	}
}

func TestCheckUsable_NotWritable(t *testing.T) {
	fsys := newFakeFS(map[string]int64{"/lib/a.jpg": 10})
	fsys.readOnly["/lib/a.jpg"] = true

	err := checkUsable(fsys, "/lib/a.jpg")
	if err == nil || !strings.Contains(err.Error(), "not writable") {
		t.Errorf("Expected not writable error, got: %v", err)
	}
}

func TestCheckUsable_Missing(t *testing.T) {
	err := checkUsable(NewOSFileSystem(), filepath.Join(t.TempDir(), "missing.jpg"))
	if err == nil || !strings.Contains(err.Error(), "cannot access file") {
		t.Errorf("Expected access error, got: %v", err)
	}
}

func TestUniqueFilename(t *testing.T) {
	fsys := newFakeFS(map[string]int64{
		"/lib/photo.jpg":   1,
		"/lib/photo-1.jpg": 1,
	})

	if got := uniqueFilename(fsys, "/lib", "other.jpg"); got != "other.jpg" {
		t.Errorf("Expected other.jpg, got: %s", got)
	}
	if got := uniqueFilename(fsys, "/lib", "photo.jpg"); got != "photo-2.jpg" {
		t.Errorf("Expected photo-2.jpg, got: %s", got)
	}
}

func TestCopyFile_RefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	dst := filepath.Join(dir, "dst.jpg")
	if err := os.WriteFile(src, []byte("source"), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	if err := copyFile(src, dst); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "source" {
		t.Errorf("Expected copied content, got: %q", data)
	}

	if err := copyFile(src, dst); err == nil {
		t.Error("Expected error when destination exists, got nil")
	}
}

func TestOSFileSystem_RenameReplaces(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	os.WriteFile(a, []byte("new"), 0644)
	os.WriteFile(b, []byte("old"), 0644)

	if err := NewOSFileSystem().Rename(a, b); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	data, _ := os.ReadFile(b)
	if string(data) != "new" {
		t.Errorf("Expected replaced content, got: %q", data)
	}
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Error("Expected source to be gone")
	}
}

func TestOSFileSystem_TempFile(t *testing.T) {
	dir := t.TempDir()
	name, err := NewOSFileSystem().TempFile(dir, ".shrink-*.jpg")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if filepath.Dir(name) != dir || filepath.Ext(name) != ".jpg" {
		t.Errorf("Unexpected temp file name: %s", name)
	}
	if _, err := os.Stat(name); err != nil {
		t.Errorf("Expected temp file to exist: %v", err)
	}
}
