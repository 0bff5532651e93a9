package shrink

import (
	"path/filepath"
	"slices"
	"strings"
)

// Extensions defines the interface for file extension checks.
type Extensions interface {
	// IsImage returns true if the file extension is an indexable image format.
	IsImage(filePath string) bool
	// IsJPEG returns true if the file extension is JPEG (jpg or jpeg).
	IsJPEG(filePath string) bool
}

// extensions implements the Extensions interface.
type extensions struct {
	imageExts []string
}

// NewExtensions creates a new Extensions instance.
func NewExtensions() Extensions {
	return &extensions{
		imageExts: []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tif", ".tiff"},
	}
}

// IsImage returns true if the file extension is an indexable image format.
func (e *extensions) IsImage(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return slices.Contains(e.imageExts, ext)
}

// IsJPEG returns true if the file extension is JPEG (jpg or jpeg).
func (e *extensions) IsJPEG(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return ext == ".jpg" || ext == ".jpeg"
}
