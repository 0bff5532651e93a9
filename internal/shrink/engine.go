package shrink

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/acm19/shrink/internal/logger"
)

// Engine runs the per-image pipeline: convert, evaluate, resize, record.
type Engine struct {
	lib         Library
	settings    SettingsSource
	fs          FileSystem
	codec       Codec
	orientation OrientationReader
	executor    *Executor
	converter   *Converter
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(lib Library, settings SettingsSource, fsys FileSystem, codec Codec, orientation OrientationReader, executor *Executor) *Engine {
	return &Engine{
		lib:         lib,
		settings:    settings,
		fs:          fsys,
		codec:       codec,
		orientation: orientation,
		executor:    executor,
		converter:   NewConverter(fsys, codec, executor),
	}
}

// ImageResult is the detailed outcome of processing one image.
type ImageResult struct {
	Outcome
	Record     Record
	Converted  bool
	Resized    bool
	BytesSaved int64
	OldWidth   int
	OldHeight  int
}

// ResizeByID processes image id. All per-image errors are reported in the
// returned Outcome.
func (e *Engine) ResizeByID(ctx context.Context, id uint64) Outcome {
	return e.Process(ctx, id).Outcome
}

// Process is ResizeByID with details about what happened.
func (e *Engine) Process(ctx context.Context, id uint64) ImageResult {
	if err := RequireID(id); err != nil {
		return ImageResult{Outcome: failed("%s", err.Error())}
	}
	rec, err := e.lib.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ImageResult{Outcome: failed("Image %d not found", id)}
		}
		return ImageResult{Outcome: failed("Could not load image %d: %v", id, err)}
	}
	result := e.process(ctx, rec)
	logger.Debug("Processed image", "id", id, "success", result.Success, "message", result.Message)
	return result
}

func (e *Engine) process(ctx context.Context, rec Record) ImageResult {
	res := ImageResult{Record: rec}
	name := filepath.Base(rec.Path)

	if strings.Contains(name, NoResizeMarker) {
		res.Outcome = unchanged("%s: skipped (%s in filename)", name, NoResizeMarker)
		return res
	}

	settings, err := e.settings.Settings()
	if err != nil {
		res.Outcome = failed("Could not load settings: %v", err)
		return res
	}
	policy := settings.Snapshot(rec.Source)

	if _, err := e.fs.Stat(rec.Path); err != nil {
		res.Outcome = failed("Could not retrieve file path for image %d", rec.ID)
		return res
	}
	mime, err := DetectMime(rec.Path)
	if err != nil {
		res.Outcome = failed("%s: %v", name, err)
		return res
	}

	converted, didConvert, err := e.converter.Convert(ctx, rec, mime, policy)
	if err != nil {
		res.Outcome = failed("%s: %v", name, err)
		return res
	}
	if didConvert {
		rec = converted
		name = filepath.Base(rec.Path)
		mime = MimeJPEG
		res.Converted = true
		res.Record = rec
		if err := e.lib.Save(ctx, rec); err != nil {
			res.Outcome = failed("%s: converted but failed to update the library: %v", name, err)
			return res
		}
	}

	if err := checkUsable(e.fs, rec.Path); err != nil {
		res.Outcome = failed("%s: %v", name, err)
		return res
	}
	if !policy.Allows(mime) {
		res.Outcome = unchanged("%s: type %q is not resizable", name, mime)
		if res.Converted {
			res.Outcome = succeeded("%s: converted to JPG", name)
		}
		return res
	}

	width, height, err := e.codec.Measure(rec.Path)
	if err != nil {
		width, height = rec.Width, rec.Height
		logger.Debug("Measurement failed, using stored dimensions", "id", rec.ID, "error", err)
	}
	res.OldWidth, res.OldHeight = width, height

	orientation := OrientationNormal
	if e.orientation != nil {
		if o, err := e.orientation.Orientation(rec.Path); err == nil {
			orientation = o
		} else {
			logger.Debug("Could not read orientation", "id", rec.ID, "error", err)
		}
	}

	eval := Evaluate(policy, width, height, mime, orientation)
	if !eval.NeedsResize {
		res.Outcome = unchanged("%s: no resize needed (%dw x %dh)", name, width, height)
		if res.Converted {
			res.Outcome = succeeded("%s: converted to JPG", name)
		}
		return e.record(ctx, res, width, height, orientation)
	}

	resized, err := e.executor.Resize(ctx, rec.Path, eval.Width, eval.Height, eval.Crop, policy.Quality)
	if err != nil {
		if IsCodecError(err) {
			res.Outcome = failed("%s: %v", name, err)
		} else {
			res.Outcome = failed("%s: resize failed: %v", name, err)
		}
		return res
	}

	if !resized.Replaced() {
		res.Outcome = unchanged("%s: resized image was not smaller, original kept", name)
		if res.Converted {
			res.Outcome = succeeded("%s: converted to JPG, resized image was not smaller", name)
		}
		return e.record(ctx, res, width, height, orientation)
	}

	res.Resized = true
	res.BytesSaved = resized.Saved()
	res.Outcome = succeeded("Resized %s: %dw x %dh -> %dw x %dh (saved %d bytes)",
		name, displayWidth(width, height, orientation), displayHeight(width, height, orientation),
		eval.Width, eval.Height, res.BytesSaved)
	return e.record(ctx, res, eval.Width, eval.Height, OrientationNormal)
}

// record refreshes the stored dimensions from disk and saves the record.
func (e *Engine) record(ctx context.Context, res ImageResult, width, height int, orientation Orientation) ImageResult {
	rec := res.Record
	if w, h, err := e.codec.Measure(rec.Path); err == nil {
		rec.Width, rec.Height = w, h
	} else {
		rec.Width, rec.Height = width, height
	}
	rec.Mime, _ = DetectMime(rec.Path)
	if rec.URL == "" {
		rec.URL = e.lib.URLFor(rec.Path)
	}
	res.Record = rec

	if err := e.lib.Save(ctx, rec); err != nil {
		res.Outcome = failed("%s: processed but failed to update the library: %v", filepath.Base(rec.Path), err)
	}
	return res
}

func displayWidth(w, h int, o Orientation) int {
	if o.Quarter() {
		return h
	}
	return w
}

func displayHeight(w, h int, o Orientation) int {
	if o.Quarter() {
		return w
	}
	return h
}

// Import copies the file at src into the library, registers it with the given
// source and runs the pipeline on it.
func (e *Engine) Import(ctx context.Context, src string, source Source) (Record, Outcome, error) {
	mime, err := DetectMime(src)
	if err != nil {
		return Record{}, Outcome{}, fmt.Errorf("cannot read %s: %w", src, err)
	}
	if mime == "" {
		return Record{}, Outcome{}, fmt.Errorf("%s is not a recognised image", filepath.Base(src))
	}

	root := e.lib.Root()
	name := uniqueFilename(e.fs, root, filepath.Base(src))
	dst := filepath.Join(root, name)
	if err := copyFile(src, dst); err != nil {
		return Record{}, Outcome{}, fmt.Errorf("failed to copy %s into the library: %w", src, err)
	}

	rec := Record{Path: dst, URL: e.lib.URLFor(dst), Mime: mime, Source: source}
	if w, h, err := e.codec.Measure(dst); err == nil {
		rec.Width, rec.Height = w, h
	}
	rec, err = e.lib.Add(ctx, rec)
	if err != nil {
		return Record{}, Outcome{}, err
	}
	logger.Info("Imported image", "id", rec.ID, "file", dst, "source", source.String())

	res := e.Process(ctx, rec.ID)
	return res.Record, res.Outcome, nil
}
