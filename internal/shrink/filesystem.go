package shrink

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem is the set of file operations that mutate or inspect the library
// on disk.
type FileSystem interface {
	// Stat returns file information for name.
	Stat(name string) (fs.FileInfo, error)
	// Remove deletes name.
	Remove(name string) error
	// Rename moves oldpath to newpath, replacing newpath if it exists.
	Rename(oldpath, newpath string) error
	// Writable reports whether name can be opened for writing.
	Writable(name string) bool
	// Readable reports whether name can be opened for reading.
	Readable(name string) bool
	// TempFile reserves a new empty file in dir and returns its path. The
	// pattern follows os.CreateTemp.
	TempFile(dir, pattern string) (string, error)
}

// osFileSystem implements FileSystem on the local disk.
type osFileSystem struct{}

// NewOSFileSystem returns a FileSystem backed by the os package.
func NewOSFileSystem() FileSystem {
	return &osFileSystem{}
}

func (osFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (osFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// Rename falls back to remove-then-rename on platforms where rename does not
// replace an existing file.
func (osFileSystem) Rename(oldpath, newpath string) error {
	if err := os.Rename(oldpath, newpath); err == nil {
		return nil
	}
	if err := os.Remove(newpath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(oldpath, newpath)
}

func (osFileSystem) Writable(name string) bool {
	f, err := os.OpenFile(name, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func (osFileSystem) Readable(name string) bool {
	f, err := os.Open(name)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func (osFileSystem) TempFile(dir, pattern string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// checkUsable verifies that path is a regular, readable, writable, non-empty file.
func checkUsable(fsys FileSystem, path string) error {
	info, err := fsys.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", filepath.Base(path))
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is 0 bytes (corrupted)")
	}
	if !fsys.Readable(path) {
		return fmt.Errorf("%s is not readable", filepath.Base(path))
	}
	if !fsys.Writable(path) {
		return fmt.Errorf("%s is not writable", filepath.Base(path))
	}
	return nil
}

// uniqueFilename returns name, or name with a -N suffix before the extension,
// such that no file of that name exists in dir.
func uniqueFilename(fsys FileSystem, dir, name string) string {
	if _, err := fsys.Stat(filepath.Join(dir, name)); err != nil {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", base, i, ext)
		if _, err := fsys.Stat(filepath.Join(dir, candidate)); err != nil {
			return candidate
		}
	}
}

// copyFile copies src to dst, failing if dst exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
