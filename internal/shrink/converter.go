package shrink

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/acm19/shrink/internal/logger"
	"github.com/disintegration/imaging"
)

// ErrPNGUnsupported is returned when PNG conversion is enabled but the codec
// cannot decode PNG files.
var ErrPNGUnsupported = errors.New("a PNG decoder is required to convert PNG images to JPG")

// Converter transcodes BMP and PNG originals to JPEG.
type Converter struct {
	fs       FileSystem
	codec    Codec
	executor *Executor
}

// NewConverter creates a Converter. Originals are deleted through executor so
// they reach the vault first.
func NewConverter(fsys FileSystem, codec Codec, executor *Executor) *Converter {
	return &Converter{fs: fsys, codec: codec, executor: executor}
}

// Wants reports whether p asks for images of the given mime type to be converted.
func (c *Converter) Wants(mime string, p Policy) bool {
	return (mime == MimeBMP && p.BMPToJPG) || (mime == MimePNG && p.PNGToJPG)
}

// Convert rewrites rec as a JPEG when p enables conversion for mime. It
// returns rec unchanged (and converted false) when no conversion applies.
func (c *Converter) Convert(ctx context.Context, rec Record, mime string, p Policy) (Record, bool, error) {
	if !c.Wants(mime, p) {
		return rec, false, nil
	}
	kind := "bmp"

	var img image.Image
	var decodeErr error
	switch mime {
	case MimeBMP:
		img, decodeErr = c.codec.Decode(rec.Path)
	case MimePNG:
		kind = "png"
		if p.SkipAlpha {
			alpha, err := pngHasAlpha(rec.Path)
			if err != nil {
				return rec, false, fmt.Errorf("failed to inspect png: %w", err)
			}
			if alpha {
				logger.Debug("Skipping PNG with alpha channel", "file", filepath.Base(rec.Path))
				return rec, false, nil
			}
		}
		if !c.codec.Supports(MimePNG) {
			return rec, false, ErrPNGUnsupported
		}
		var src image.Image
		src, decodeErr = c.codec.Decode(rec.Path)
		if decodeErr == nil {
			img = flatten(src)
		}
	}

	dir := filepath.Dir(rec.Path)
	oldName := filepath.Base(rec.Path)
	newName := uniqueFilename(c.fs, dir, jpgName(oldName))
	newPath := filepath.Join(dir, newName)

	err := decodeErr
	if err == nil {
		err = c.codec.Encode(img, newPath, p.Quality)
	}
	if err != nil {
		if cleanupErr := removeIfExists(c.fs, newPath); cleanupErr != nil {
			logger.Error("Failed to remove partial conversion", "file", newPath, "error", cleanupErr)
		}
		if delErr := c.executor.Delete(ctx, rec.Path); delErr != nil {
			logger.Error("Failed to remove unconvertible original", "file", rec.Path, "error", delErr)
		}
		logger.Warn("Conversion failed", "file", oldName, "type", kind, "error", err)
		return rec, false, fmt.Errorf("unable to process the %s file. If you continue to see this error you may need to disable the conversion option in the settings: %w", kind, err)
	}

	if err := c.executor.Delete(ctx, rec.Path); err != nil {
		// The original stays, so the copy goes.
		if cleanupErr := removeIfExists(c.fs, newPath); cleanupErr != nil {
			logger.Error("Failed to remove converted copy", "file", newPath, "error", cleanupErr)
		}
		return rec, false, fmt.Errorf("failed to remove original %s: %w", oldName, err)
	}

	logger.Info("Converted image to JPG", "from", oldName, "to", newName)
	rec.Path = newPath
	if rec.URL != "" {
		rec.URL = rec.URL[:strings.LastIndex(rec.URL, "/")+1] + newName
	}
	rec.Mime = MimeJPEG
	return rec, true, nil
}

// jpgName swaps the extension of name for .jpg.
func jpgName(name string) string {
	ext := filepath.Ext(name)
	switch strings.ToLower(ext) {
	case ".bmp", ".png":
		return strings.TrimSuffix(name, ext) + ".jpg"
	}
	return name + ".jpg"
}

// flatten composites img onto an opaque white background.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
