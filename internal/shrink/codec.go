package shrink

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"slices"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Codec performs the pixel work. Implementations decide which formats they
// can read and write.
type Codec interface {
	// Supports reports whether the codec can decode the given mime type.
	Supports(mime string) bool
	// Measure returns the pixel dimensions of the image at path.
	Measure(path string) (width, height int, err error)
	// Decode reads the image at path.
	Decode(path string) (image.Image, error)
	// Encode writes img to dst. The format follows the extension of dst.
	Encode(img image.Image, dst string, quality int) error
	// Resize scales the image at src to width x height and writes it to dst.
	// When crop is set the result fills the box exactly, cropping from the centre.
	Resize(src, dst string, width, height int, crop bool, quality int) error
}

// imagingCodec implements Codec with disintegration/imaging.
type imagingCodec struct {
	decodable []string
}

// NewImagingCodec creates a Codec backed by disintegration/imaging.
func NewImagingCodec() Codec {
	return &imagingCodec{
		decodable: []string{MimeJPEG, MimePNG, MimeGIF, MimeBMP, MimeTIFF, MimeWebP},
	}
}

// Supports reports whether mime can be decoded.
func (c *imagingCodec) Supports(mime string) bool {
	return slices.Contains(c.decodable, mime)
}

// Measure reads only the image header.
func (c *imagingCodec) Measure(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read dimensions of %s: %w", filepath.Base(path), err)
	}
	return cfg.Width, cfg.Height, nil
}

// Decode reads the image at path. BMP files go through the x/image decoder directly.
func (c *imagingCodec) Decode(path string) (image.Image, error) {
	mime, err := DetectMime(path)
	if err != nil {
		return nil, err
	}
	if mime == MimeBMP {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, err := bmp.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode bmp %s: %w", filepath.Base(path), err)
		}
		return img, nil
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Encode writes img to dst using the format implied by its extension.
func (c *imagingCodec) Encode(img image.Image, dst string, quality int) error {
	format, err := imaging.FormatFromFilename(dst)
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", filepath.Base(dst), err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	err = imaging.Encode(f, img, format,
		imaging.JPEGQuality(quality),
		imaging.PNGCompressionLevel(png.BestCompression),
	)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(dst), err)
	}
	return nil
}

// Resize applies the EXIF orientation before scaling.
func (c *imagingCodec) Resize(src, dst string, width, height int, crop bool, quality int) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(src), err)
	}

	var out *image.NRGBA
	if crop {
		out = imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
	} else {
		out = imaging.Resize(img, width, height, imaging.Lanczos)
	}
	return c.Encode(out, dst, quality)
}
