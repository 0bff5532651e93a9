package shrink

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/acm19/shrink/internal/logger"
)

// ErrNoOriginal is returned when an image has no retained original.
var ErrNoOriginal = errors.New("no original image recorded")

// ErrOriginalsDisabled is returned when delete_originals is off for the image's source.
var ErrOriginalsDisabled = errors.New("removing originals is disabled by the delete_originals setting")

// Removal describes what RemoveOriginal did on disk.
type Removal int

const (
	// RemovalDeleted means the retained original was deleted.
	RemovalDeleted Removal = iota
	// RemovalLinkOnly means the file was missing or not writable and only
	// the metadata entry was dropped.
	RemovalLinkOnly
)

// String returns a display label for the removal.
func (r Removal) String() string {
	if r == RemovalLinkOnly {
		return "link removed only"
	}
	return "original removed"
}

// OriginalRemover deletes retained full-size originals.
type OriginalRemover struct {
	lib      Library
	settings SettingsSource
	fs       FileSystem
	executor *Executor
}

// NewOriginalRemover creates an OriginalRemover. Deletions go through executor
// so the vault sees them first.
func NewOriginalRemover(lib Library, settings SettingsSource, fsys FileSystem, executor *Executor) *OriginalRemover {
	return &OriginalRemover{lib: lib, settings: settings, fs: fsys, executor: executor}
}

// OriginalPath returns the location of rec's retained original, or "" when it has none.
func OriginalPath(rec Record) string {
	entry, ok := rec.Sizes[OriginalImageKey]
	if !ok || entry.File == "" {
		return ""
	}
	if filepath.IsAbs(entry.File) {
		return entry.File
	}
	return filepath.Join(filepath.Dir(rec.Path), entry.File)
}

// RemoveOriginal deletes the retained original of image id and drops its
// metadata entry. A missing or read-only file is not an error: the entry is
// dropped and RemovalLinkOnly is returned. No other size entry is touched.
// Nothing is removed unless delete_originals is on for the image's source.
func (r *OriginalRemover) RemoveOriginal(ctx context.Context, id uint64) (map[string]SizeEntry, Removal, error) {
	rec, err := r.lib.Get(ctx, id)
	if err != nil {
		return nil, RemovalLinkOnly, err
	}
	settings, err := r.settings.Settings()
	if err != nil {
		return nil, RemovalLinkOnly, fmt.Errorf("failed to load settings: %w", err)
	}
	if !settings.Snapshot(rec.Source).DeleteOriginals {
		return nil, RemovalLinkOnly, fmt.Errorf("image %d: %w", id, ErrOriginalsDisabled)
	}
	path := OriginalPath(rec)
	if path == "" {
		return nil, RemovalLinkOnly, fmt.Errorf("image %d: %w", id, ErrNoOriginal)
	}

	removal := RemovalLinkOnly
	if info, err := r.fs.Stat(path); err == nil && info.Mode().IsRegular() && r.fs.Writable(path) {
		if err := r.executor.Delete(ctx, path); err != nil {
			return nil, RemovalLinkOnly, fmt.Errorf("failed to delete original of image %d: %w", id, err)
		}
		removal = RemovalDeleted
	} else {
		logger.Info("Original missing or read-only, removing link only", "id", id, "file", path)
	}

	delete(rec.Sizes, OriginalImageKey)
	if err := r.lib.Save(ctx, rec); err != nil {
		return nil, removal, fmt.Errorf("failed to update metadata of image %d: %w", id, err)
	}
	logger.Info("Removed original", "id", id, "result", removal.String())
	return rec.Sizes, removal, nil
}
