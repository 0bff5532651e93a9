package shrink

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
)

// patternImage returns an image with enough detail that JPEG output size
// tracks pixel count.
func patternImage(width, height int) *image.NRGBA {
	img := imaging.New(width, height, color.White)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8((x ^ y) & 0xff)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: uint8(x), B: uint8(y), A: 0xff})
		}
	}
	return img
}

// writeImage encodes img into dir/name using the format implied by name.
func writeImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := imaging.Save(img, path, imaging.JPEGQuality(95)); err != nil {
		t.Fatalf("Failed to write test image %s: %v", name, err)
	}
	return path
}

func writeJPEG(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	return writeImage(t, dir, name, patternImage(width, height))
}

// writePNG writes a PNG. With alpha set, one pixel is made transparent so the
// encoder keeps the alpha channel.
func writePNG(t *testing.T, dir, name string, width, height int, alpha bool) string {
	t.Helper()
	img := patternImage(width, height)
	if alpha {
		img.SetNRGBA(0, 0, color.NRGBA{A: 0})
	}
	return writeImage(t, dir, name, img)
}

func writeBMP(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}
	defer f.Close()
	if err := bmp.Encode(f, patternImage(width, height)); err != nil {
		t.Fatalf("Failed to encode bmp: %v", err)
	}
	return path
}

// newTestLibrary opens an empty library rooted in a temporary directory.
func newTestLibrary(t *testing.T) (Library, string) {
	t.Helper()
	root := t.TempDir()
	lib, err := OpenFileLibrary(filepath.Join(t.TempDir(), "library.json"), root, "https://example.com/uploads")
	if err != nil {
		t.Fatalf("Failed to open library: %v", err)
	}
	return lib, root
}

// addImage registers the file at path in lib with its real dimensions.
func addImage(t *testing.T, lib Library, path string, source Source) Record {
	t.Helper()
	w, h, err := NewImagingCodec().Measure(path)
	if err != nil {
		t.Fatalf("Failed to measure %s: %v", path, err)
	}
	mime, _ := DetectMime(path)
	rec, err := lib.Add(context.Background(), Record{
		Path:   path,
		URL:    lib.URLFor(path),
		Mime:   mime,
		Width:  w,
		Height: h,
		Source: source,
	})
	if err != nil {
		t.Fatalf("Failed to add record: %v", err)
	}
	return rec
}

// testPolicy returns the default policy for posts.
func testPolicy() Policy {
	return Settings{}.Snapshot(SourcePost)
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// fakeFileInfo is a minimal fs.FileInfo.
type fakeFileInfo struct {
	name string
	size int64
	dir  bool
}

func (f fakeFileInfo) Name() string { return f.name }
func (f fakeFileInfo) Size() int64  { return f.size }
func (f fakeFileInfo) Mode() fs.FileMode {
	if f.dir {
		return fs.ModeDir
	}
	return 0644
}
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return f.dir }
func (f fakeFileInfo) Sys() any           { return nil }

// fakeFS is an in-memory FileSystem holding file sizes only.
type fakeFS struct {
	files     map[string]int64
	readOnly  map[string]bool
	renameErr error
	removed   []string
	tempCount int
}

func newFakeFS(files map[string]int64) *fakeFS {
	return &fakeFS{files: files, readOnly: map[string]bool{}}
}

func (f *fakeFS) Stat(name string) (fs.FileInfo, error) {
	size, ok := f.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return fakeFileInfo{name: filepath.Base(name), size: size}, nil
}

func (f *fakeFS) Remove(name string) error {
	if _, ok := f.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(f.files, name)
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeFS) Rename(oldpath, newpath string) error {
	if f.renameErr != nil {
		return f.renameErr
	}
	size, ok := f.files[oldpath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldpath, Err: fs.ErrNotExist}
	}
	delete(f.files, oldpath)
	f.files[newpath] = size
	return nil
}

func (f *fakeFS) Writable(name string) bool {
	_, ok := f.files[name]
	return ok && !f.readOnly[name]
}

func (f *fakeFS) Readable(name string) bool {
	_, ok := f.files[name]
	return ok
}

func (f *fakeFS) TempFile(dir, pattern string) (string, error) {
	f.tempCount++
	name := filepath.Join(dir, strings.Replace(pattern, "*", strconv.Itoa(f.tempCount), 1))
	f.files[name] = 0
	return name, nil
}

// fakeCodec writes outputs of a fixed size into a fakeFS.
type fakeCodec struct {
	fs         *fakeFS
	outputSize int64
	resizeErr  error
	calls      int
}

func (c *fakeCodec) Supports(mime string) bool { return true }

func (c *fakeCodec) Measure(path string) (int, int, error) {
	return 0, 0, errors.New("not measurable")
}

func (c *fakeCodec) Decode(path string) (image.Image, error) {
	return nil, errors.New("not decodable")
}

func (c *fakeCodec) Encode(img image.Image, dst string, quality int) error {
	return errors.New("not encodable")
}

func (c *fakeCodec) Resize(src, dst string, width, height int, crop bool, quality int) error {
	c.calls++
	if c.resizeErr != nil {
		return c.resizeErr
	}
	c.fs.files[dst] = c.outputSize
	return nil
}

// recordingVault remembers stored paths and can be told to fail.
type recordingVault struct {
	stored []string
	err    error
}

func (v *recordingVault) Store(ctx context.Context, path string) error {
	if v.err != nil {
		return v.err
	}
	v.stored = append(v.stored, path)
	return nil
}

// fixedOrientation reports the same orientation for every file.
type fixedOrientation Orientation

func (o fixedOrientation) Orientation(path string) (Orientation, error) {
	return Orientation(o), nil
}
