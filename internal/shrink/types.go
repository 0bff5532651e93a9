package shrink

import (
	"fmt"
	"strings"
)

// Source identifies where an image entered the library. It selects which size
// limits apply.
type Source int

const (
	// SourcePost is an image embedded in a post.
	SourcePost Source = 1
	// SourceLibrary is an image uploaded directly to the library.
	SourceLibrary Source = 2
	// SourceOther is any other upload context.
	SourceOther Source = 4
)

// String returns the lowercase name of the source.
func (s Source) String() string {
	switch s {
	case SourcePost:
		return "post"
	case SourceLibrary:
		return "library"
	case SourceOther:
		return "other"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// ParseSource converts a name ("post", "library", "other") to a Source.
func ParseSource(name string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "post":
		return SourcePost, nil
	case "library", "":
		return SourceLibrary, nil
	case "other":
		return SourceOther, nil
	default:
		return 0, fmt.Errorf("unknown source %q (expected post, library or other)", name)
	}
}

// Orientation is an EXIF orientation value (1..8).
type Orientation int

const (
	// OrientationNormal is the default, unrotated orientation.
	OrientationNormal Orientation = 1
	// OrientationRotate90CW needs a 90 degree clockwise rotation to display.
	OrientationRotate90CW Orientation = 6
	// OrientationRotate270CW needs a 270 degree clockwise rotation to display.
	OrientationRotate270CW Orientation = 8
)

// Quarter reports whether displaying the image swaps its width and height.
func (o Orientation) Quarter() bool {
	return o == OrientationRotate90CW || o == OrientationRotate270CW
}

// OriginalImageKey is the size-metadata entry holding the retained full-size original.
const OriginalImageKey = "original_image"

// SizeEntry describes one stored resolution of an image.
type SizeEntry struct {
	File   string `json:"file"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Record is an image held by the library.
type Record struct {
	// ID is the stable, unique identifier of the image.
	ID uint64 `json:"id"`
	// Path is the absolute path of the image file.
	Path string `json:"path"`
	// URL is the public address of the image, if the library has one.
	URL string `json:"url,omitempty"`
	// Mime is the stored mime type.
	Mime string `json:"mime"`
	// Width and Height are the stored dimensions. They may be stale.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Source is the upload context the image came from.
	Source Source `json:"source"`
	// Sizes maps resolution names to generated files.
	Sizes map[string]SizeEntry `json:"sizes,omitempty"`
}

// Outcome is the result of a per-image operation. Message is always suitable
// for display.
type Outcome struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Unchanged bool   `json:"unchanged,omitempty"`
}

func succeeded(format string, args ...any) Outcome {
	return Outcome{Success: true, Message: fmt.Sprintf(format, args...)}
}

func unchanged(format string, args ...any) Outcome {
	return Outcome{Success: true, Unchanged: true, Message: fmt.Sprintf(format, args...)}
}

func failed(format string, args ...any) Outcome {
	return Outcome{Success: false, Message: fmt.Sprintf(format, args...)}
}

// ProgressEvent represents a progress update during a bulk run.
type ProgressEvent struct {
	// Stage is one of "checking", "skipped", "resized", "unchanged", "failed", "stopped" or "finished".
	Stage string
	// Current is the number of images checked so far.
	Current int
	// Total is the number of images to check.
	Total int
	// Message is a human-readable description of what happened.
	Message string
	// File is the path of the image involved.
	File string
	// ID is the identifier of the image involved.
	ID uint64
	// Width and Height are the measured dimensions, when known.
	Width  int
	Height int
	// BytesSaved is the size reduction achieved for this image.
	BytesSaved int64
}

// Progress stages.
const (
	StageChecking  = "checking"
	StageSkipped   = "skipped"
	StageResized   = "resized"
	StageUnchanged = "unchanged"
	StageFailed    = "failed"
	StageStopped   = "stopped"
	StageFinished  = "finished"
)
