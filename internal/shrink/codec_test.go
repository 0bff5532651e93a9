package shrink

import (
	"os"
	"path/filepath"
	"testing"
)

func TestImagingCodec_Measure(t *testing.T) {
	dir := t.TempDir()
	codec := NewImagingCodec()

	tests := []struct {
		name string
		path string
	}{
		{"jpeg", writeJPEG(t, dir, "a.jpg", 120, 80)},
		{"png", writePNG(t, dir, "b.png", 120, 80, false)},
		{"bmp", writeBMP(t, dir, "c.bmp", 120, 80)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := codec.Measure(tt.path)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if w != 120 || h != 80 {
				t.Errorf("Expected 120x80, got: %dx%d", w, h)
			}
		})
	}

	if _, _, err := codec.Measure(filepath.Join(dir, "missing.jpg")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestImagingCodec_Resize(t *testing.T) {
	dir := t.TempDir()
	src := writeJPEG(t, dir, "src.jpg", 300, 200)
	codec := NewImagingCodec()

	tests := []struct {
		name   string
		width  int
		height int
		crop   bool
	}{
		{"fit", 150, 100, false},
		{"crop", 100, 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := filepath.Join(dir, tt.name+".jpg")
			if err := codec.Resize(src, dst, tt.width, tt.height, tt.crop, 80); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			w, h, err := codec.Measure(dst)
			if err != nil {
				t.Fatalf("Failed to measure output: %v", err)
			}
			if w != tt.width || h != tt.height {
				t.Errorf("Expected %dx%d, got: %dx%d", tt.width, tt.height, w, h)
			}
		})
	}
}

func TestImagingCodec_DecodeEncode(t *testing.T) {
	dir := t.TempDir()
	codec := NewImagingCodec()

	img, err := codec.Decode(writeBMP(t, dir, "scan.bmp", 30, 20))
	if err != nil {
		t.Fatalf("Unexpected error decoding bmp: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 30 || b.Dy() != 20 {
		t.Errorf("Expected 30x20, got: %v", b)
	}

	dst := filepath.Join(dir, "scan.jpg")
	if err := codec.Encode(img, dst, 80); err != nil {
		t.Fatalf("Unexpected error encoding: %v", err)
	}
	if mime, _ := DetectMime(dst); mime != MimeJPEG {
		t.Errorf("Expected jpeg output, got: %q", mime)
	}

	bad := filepath.Join(dir, "scan.xyz")
	if err := codec.Encode(img, bad, 80); err == nil {
		t.Error("Expected error for unknown extension")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Error("Expected no file to be left behind")
	}
}

func TestImagingCodec_Supports(t *testing.T) {
	codec := NewImagingCodec()
	for _, mime := range []string{MimeJPEG, MimePNG, MimeGIF, MimeBMP, MimeWebP, MimeTIFF} {
		if !codec.Supports(mime) {
			t.Errorf("Expected %s to be supported", mime)
		}
	}
	if codec.Supports("image/heic") {
		t.Error("Expected image/heic to be unsupported")
	}
}
