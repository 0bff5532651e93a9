package shrink

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/acm19/shrink/internal/logger"
)

// scaledSuffix marks a downscaled copy whose full-size original sits next to it.
const scaledSuffix = "-scaled"

// IndexStats summarises an indexing pass.
type IndexStats struct {
	Added   int
	Known   int
	Skipped int
}

// Indexer registers image files found on disk in a Library.
type Indexer struct {
	lib        Library
	codec      Codec
	extensions Extensions
}

// NewIndexer creates an Indexer.
func NewIndexer(lib Library, codec Codec) *Indexer {
	return &Indexer{lib: lib, codec: codec, extensions: NewExtensions()}
}

// Index walks dir and adds every image not already in the library, tagged
// with source. A file named "<name>-scaled.<ext>" whose "<name>.<ext>" also
// exists is registered once, with the full-size file as its retained original.
func (ix *Indexer) Index(ctx context.Context, dir string, source Source) (IndexStats, error) {
	var stats IndexStats

	known, err := ix.knownPaths(ctx)
	if err != nil {
		return stats, err
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Skip dot files and dot directories
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && ix.extensions.IsImage(path) {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			files = append(files, abs)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	originals := make(map[string]string)
	for _, path := range files {
		ext := filepath.Ext(path)
		base := strings.TrimSuffix(path, ext)
		if !strings.HasSuffix(base, scaledSuffix) {
			continue
		}
		full := strings.TrimSuffix(base, scaledSuffix) + ext
		if _, err := os.Stat(full); err == nil {
			originals[path] = full
		}
	}
	retained := make(map[string]bool, len(originals))
	for _, full := range originals {
		retained[full] = true
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if known[path] {
			stats.Known++
			continue
		}
		if retained[path] {
			continue
		}

		rec, err := ix.describe(path, source)
		if err != nil {
			logger.Warn("Skipping unreadable image", "file", path, "error", err)
			stats.Skipped++
			continue
		}
		if full, ok := originals[path]; ok {
			entry := SizeEntry{File: filepath.Base(full)}
			if w, h, err := ix.codec.Measure(full); err == nil {
				entry.Width, entry.Height = w, h
			}
			rec.Sizes = map[string]SizeEntry{OriginalImageKey: entry}
		}

		added, err := ix.lib.Add(ctx, rec)
		if err != nil {
			return stats, err
		}
		logger.Debug("Indexed image", "id", added.ID, "file", path, "width", rec.Width, "height", rec.Height)
		stats.Added++
	}
	return stats, nil
}

// describe builds a record for the file at path from its contents.
func (ix *Indexer) describe(path string, source Source) (Record, error) {
	mime, err := DetectMime(path)
	if err != nil {
		return Record{}, err
	}
	if mime == "" {
		return Record{}, fmt.Errorf("unrecognised image signature")
	}
	w, h, err := ix.codec.Measure(path)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Path:   path,
		URL:    ix.lib.URLFor(path),
		Mime:   mime,
		Width:  w,
		Height: h,
		Source: source,
	}, nil
}

func (ix *Indexer) knownPaths(ctx context.Context) (map[string]bool, error) {
	ids, err := ix.lib.IDsBefore(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		rec, err := ix.lib.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		known[rec.Path] = true
		if entry, ok := rec.Sizes[OriginalImageKey]; ok {
			known[filepath.Join(filepath.Dir(rec.Path), entry.File)] = true
		}
	}
	return known, nil
}
