package shrink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acm19/shrink/internal/logger"
	"github.com/barasher/go-exiftool"
	exif "github.com/dsoprea/go-exif/v3"
)

// ExifOrientation is the EXIF tag holding the orientation.
const ExifOrientation = "Orientation"

// OrientationReader reads the EXIF orientation of an image.
type OrientationReader interface {
	// Orientation returns the orientation of the image at path. Images
	// without orientation data report OrientationNormal.
	Orientation(path string) (Orientation, error)
}

// NewOrientationReader returns a reader backed by exiftool when et is not nil,
// and a pure Go EXIF parser otherwise.
func NewOrientationReader(et *exiftool.Exiftool) OrientationReader {
	if et != nil {
		return &exiftoolOrientation{et: et}
	}
	return &exifOrientation{}
}

// exiftoolOrientation implements OrientationReader with a running exiftool process.
type exiftoolOrientation struct {
	et *exiftool.Exiftool
}

// printedOrientations maps exiftool's printed values back to EXIF numbers.
var printedOrientations = map[string]Orientation{
	"horizontal (normal)":                 1,
	"mirror horizontal":                   2,
	"rotate 180":                          3,
	"mirror vertical":                     4,
	"mirror horizontal and rotate 270 cw": 5,
	"rotate 90 cw":                        6,
	"mirror horizontal and rotate 90 cw":  7,
	"rotate 270 cw":                       8,
}

// Orientation reads the Orientation tag, accepting numeric or printed values.
func (r *exiftoolOrientation) Orientation(path string) (Orientation, error) {
	fileInfos := r.et.ExtractMetadata(path)
	if len(fileInfos) == 0 {
		return OrientationNormal, nil
	}
	if fileInfos[0].Err != nil {
		return OrientationNormal, fmt.Errorf("exiftool failed for %s: %w", filepath.Base(path), fileInfos[0].Err)
	}

	if n, err := fileInfos[0].GetInt(ExifOrientation); err == nil {
		return validOrientation(int(n)), nil
	}
	printed, err := fileInfos[0].GetString(ExifOrientation)
	if err != nil {
		return OrientationNormal, nil
	}
	if o, ok := printedOrientations[strings.ToLower(strings.TrimSpace(printed))]; ok {
		return o, nil
	}
	logger.Debug("Unrecognised orientation", "file", filepath.Base(path), "value", printed)
	return OrientationNormal, nil
}

// exifOrientation implements OrientationReader with go-exif.
type exifOrientation struct{}

// Orientation searches the file for an EXIF block and reads its Orientation tag.
func (r *exifOrientation) Orientation(path string) (Orientation, error) {
	f, err := os.Open(path)
	if err != nil {
		return OrientationNormal, err
	}
	defer f.Close()

	tags, _, err := exif.GetFlatExifDataUniversalSearchWithReadSeeker(f, nil, true)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) || strings.Contains(strings.ToLower(err.Error()), "no exif") {
			return OrientationNormal, nil
		}
		return OrientationNormal, fmt.Errorf("failed to read exif of %s: %w", filepath.Base(path), err)
	}

	for _, tag := range tags {
		if tag.TagName != ExifOrientation {
			continue
		}
		if values, ok := tag.Value.([]uint16); ok && len(values) > 0 {
			return validOrientation(int(values[0])), nil
		}
	}
	return OrientationNormal, nil
}

func validOrientation(n int) Orientation {
	if n < 1 || n > 8 {
		return OrientationNormal
	}
	return Orientation(n)
}
