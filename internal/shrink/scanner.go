package shrink

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/acm19/shrink/internal/logger"
)

// DefaultScanLimit caps the number of candidates returned by one scan.
const DefaultScanLimit = 250

// NoResizeMarker in a filename excludes the image from all processing.
const NoResizeMarker = "noresize"

// Inspection is the scanner's verdict on one image.
type Inspection struct {
	ID     uint64 `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	File   string `json:"file"`
	// Needed is true when the image is a candidate.
	Needed bool `json:"-"`
	// Reason explains why an image is not a candidate.
	Reason string `json:"-"`
}

// Scanner discovers images that need resizing or conversion.
type Scanner struct {
	lib         Library
	settings    SettingsSource
	codec       Codec
	fs          FileSystem
	orientation OrientationReader
	limit       int
	pageSize    int
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithScanLimit sets the maximum number of candidates per scan.
func WithScanLimit(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithPageSize sets how many identifiers are fetched from the library at a time.
func WithPageSize(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithOrientation makes the scanner read EXIF orientation so quarter-turned
// images are judged by their displayed dimensions.
func WithOrientation(r OrientationReader) ScannerOption {
	return func(s *Scanner) {
		s.orientation = r
	}
}

// NewScanner creates a Scanner.
func NewScanner(lib Library, settings SettingsSource, codec Codec, fsys FileSystem, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		lib:      lib,
		settings: settings,
		codec:    codec,
		fs:       fsys,
		limit:    DefaultScanLimit,
		pageSize: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns up to the scan limit of candidate identifiers strictly below
// resumeBefore, in descending order. A resumeBefore of 0 scans from the top.
func (s *Scanner) Scan(ctx context.Context, resumeBefore uint64) ([]uint64, error) {
	found, err := s.ScanDetailed(ctx, resumeBefore)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(found))
	for i, c := range found {
		ids[i] = c.ID
	}
	return ids, nil
}

// ScanDetailed is Scan with dimensions and file names for display.
func (s *Scanner) ScanDetailed(ctx context.Context, resumeBefore uint64) ([]Inspection, error) {
	settings, err := s.settings.Settings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	var found []Inspection
	before := resumeBefore
	for len(found) < s.limit {
		ids, err := s.lib.IDsBefore(ctx, before, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to query library: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rec, err := s.lib.Get(ctx, id)
			if err != nil {
				logger.Warn("Skipping unreadable record", "id", id, "error", err)
				continue
			}
			ins := s.Inspect(rec, settings.Snapshot(rec.Source))
			if !ins.Needed {
				logger.Debug("Not a candidate", "id", id, "reason", ins.Reason)
				continue
			}
			found = append(found, ins)
			if len(found) >= s.limit {
				break
			}
		}
		before = ids[len(ids)-1]
		if before == 0 {
			break
		}
	}
	return found, nil
}

// Inspect decides whether rec is a candidate under p.
func (s *Scanner) Inspect(rec Record, p Policy) Inspection {
	ins := Inspection{ID: rec.ID, File: rec.Path, Width: rec.Width, Height: rec.Height}

	if strings.Contains(filepath.Base(rec.Path), NoResizeMarker) {
		ins.Reason = "noresize marker"
		return ins
	}
	if _, err := s.fs.Stat(rec.Path); err != nil {
		ins.Reason = "file missing"
		return ins
	}

	mime, err := DetectMime(rec.Path)
	if err != nil {
		ins.Reason = fmt.Sprintf("unreadable: %v", err)
		return ins
	}

	if p.DeepScan || rec.Width == 0 || rec.Height == 0 {
		if w, h, err := s.codec.Measure(rec.Path); err == nil {
			ins.Width, ins.Height = w, h
		} else {
			logger.Debug("Measurement failed, using stored dimensions", "id", rec.ID, "error", err)
		}
	}

	convert := (mime == MimeBMP && p.BMPToJPG) || (mime == MimePNG && p.PNGToJPG)
	if convert && mime == MimePNG && p.SkipAlpha {
		if alpha, err := pngHasAlpha(rec.Path); err != nil || alpha {
			logger.Debug("PNG will not be converted", "id", rec.ID, "alpha", alpha, "error", err)
			convert = false
		}
	}
	if convert {
		ins.Needed = true
		return ins
	}
	if !p.Allows(mime) {
		ins.Reason = fmt.Sprintf("type %q not allowed", mime)
		return ins
	}

	if ins.Width == 0 || ins.Height == 0 {
		ins.Reason = "unknown dimensions"
		return ins
	}
	orientation := OrientationNormal
	if s.orientation != nil {
		if o, err := s.orientation.Orientation(rec.Path); err == nil {
			orientation = o
		} else {
			logger.Debug("Could not read orientation", "id", rec.ID, "error", err)
		}
	}
	if !Evaluate(p, ins.Width, ins.Height, mime, orientation).NeedsResize {
		ins.Reason = "resize not required"
		return ins
	}
	ins.Needed = true
	return ins
}
