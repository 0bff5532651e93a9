package shrink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acm19/shrink/internal/logger"
)

// ErrStopped is returned by BulkRunner.Run when the operator stopped the run.
var ErrStopped = errors.New("bulk run stopped")

// DefaultPause is the delay between images in resumable mode.
const DefaultPause = time.Second

// BulkOptions holds configuration options for a bulk run.
type BulkOptions struct {
	// Resumable advances the resume cursor after each image, starts from the
	// stored cursor and pauses between images.
	Resumable bool
	// Pause is the delay between images in resumable mode.
	Pause time.Duration
	// Confirm, when set, is asked before each candidate is processed.
	// Returning false skips the image.
	Confirm func(Inspection) bool
	// Report, when set, is called synchronously with every progress event.
	Report func(ProgressEvent)
	// Progress is an optional channel for receiving progress events.
	Progress chan<- ProgressEvent
}

// DefaultBulkOptions returns the default bulk options.
func DefaultBulkOptions() BulkOptions {
	return BulkOptions{
		Resumable: false,
		Pause:     DefaultPause,
	}
}

// BulkRunner walks the library in descending identifier order and processes
// each candidate in turn.
type BulkRunner struct {
	lib      Library
	settings SettingsSource
	scanner  *Scanner
	engine   *Engine
	tracker  Tracker
	pageSize int
}

// NewBulkRunner creates a BulkRunner.
func NewBulkRunner(lib Library, settings SettingsSource, scanner *Scanner, engine *Engine, tracker Tracker) *BulkRunner {
	return &BulkRunner{
		lib:      lib,
		settings: settings,
		scanner:  scanner,
		engine:   engine,
		tracker:  tracker,
		pageSize: DefaultScanLimit,
	}
}

// Total returns how many images a run with opts would check.
func (r *BulkRunner) Total(ctx context.Context, opts BulkOptions) (int, error) {
	start, err := r.start(ctx, opts)
	if err != nil {
		return 0, err
	}
	return r.lib.Count(ctx, start)
}

func (r *BulkRunner) start(ctx context.Context, opts BulkOptions) (uint64, error) {
	if !opts.Resumable {
		return 0, nil
	}
	return r.tracker.Current(ctx)
}

// Run processes images one at a time. A failing image never stops the run.
// The stop flag is checked before each image; an in-flight image always
// completes. A resumable run resets the cursor on completion; other runs
// leave it for a paused resumable run to pick up.
func (r *BulkRunner) Run(ctx context.Context, opts BulkOptions) (BulkStats, error) {
	var stats BulkStats

	if err := r.tracker.Resume(ctx); err != nil {
		return stats, fmt.Errorf("failed to clear stop flag: %w", err)
	}
	before, err := r.start(ctx, opts)
	if err != nil {
		return stats, fmt.Errorf("failed to read resume cursor: %w", err)
	}
	total, err := r.lib.Count(ctx, before)
	if err != nil {
		return stats, fmt.Errorf("failed to count images: %w", err)
	}
	logger.Info("Starting bulk run", "images", total, "resume_before", before, "resumable", opts.Resumable)

	for {
		ids, err := r.lib.IDsBefore(ctx, before, r.pageSize)
		if err != nil {
			return stats, fmt.Errorf("failed to query library: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			state, err := r.tracker.State(ctx)
			if err != nil {
				return stats, fmt.Errorf("failed to read stop flag: %w", err)
			}
			if state.Stopped {
				r.emit(ctx, opts, ProgressEvent{Stage: StageStopped, Current: stats.Checked, Total: total, Message: "Bulk run stopped"})
				return stats, ErrStopped
			}

			stats.Checked++
			processed := r.handle(ctx, opts, id, total, &stats)

			if opts.Resumable {
				if err := r.tracker.Advance(ctx, id); err != nil {
					logger.Error("Failed to advance resume cursor", "id", id, "error", err)
				}
				if processed && opts.Pause > 0 {
					select {
					case <-ctx.Done():
					case <-time.After(opts.Pause):
					}
				}
			}
		}
		before = ids[len(ids)-1]
	}

	if opts.Resumable {
		if err := r.tracker.Reset(ctx); err != nil {
			logger.Error("Failed to reset resume cursor", "error", err)
		}
	}
	r.emit(ctx, opts, ProgressEvent{Stage: StageFinished, Current: stats.Checked, Total: total, Message: "Finished Resizing!"})
	logger.Info("Bulk run finished", "checked", stats.Checked, "resized", stats.Resized, "failed", stats.Failed, "bytes_saved", stats.BytesSaved)
	return stats, nil
}

// handle inspects and, when needed, processes a single image. It reports
// whether the engine ran.
func (r *BulkRunner) handle(ctx context.Context, opts BulkOptions, id uint64, total int, stats *BulkStats) bool {
	event := ProgressEvent{Current: stats.Checked, Total: total, ID: id}

	rec, err := r.lib.Get(ctx, id)
	if err != nil {
		stats.Failed++
		event.Stage = StageFailed
		event.Message = fmt.Sprintf("Could not load image %d: %v", id, err)
		r.emit(ctx, opts, event)
		return false
	}
	event.File = rec.Path

	settings, err := r.settings.Settings()
	if err != nil {
		stats.Failed++
		event.Stage = StageFailed
		event.Message = fmt.Sprintf("Could not load settings: %v", err)
		r.emit(ctx, opts, event)
		return false
	}

	ins := r.scanner.Inspect(rec, settings.Snapshot(rec.Source))
	event.Width, event.Height = ins.Width, ins.Height
	if !ins.Needed {
		stats.Skipped++
		event.Stage = StageSkipped
		if ins.Reason == "resize not required" {
			event.Message = fmt.Sprintf("SKIPPED: %s (Resize not required) -- %d x %d", rec.Path, ins.Width, ins.Height)
		} else {
			event.Message = fmt.Sprintf("SKIPPED: %s (%s)", rec.Path, ins.Reason)
		}
		r.emit(ctx, opts, event)
		return false
	}

	if opts.Confirm != nil && !opts.Confirm(ins) {
		stats.Skipped++
		event.Stage = StageSkipped
		event.Message = fmt.Sprintf("SKIPPED: %s (declined)", rec.Path)
		r.emit(ctx, opts, event)
		return false
	}

	r.emit(ctx, opts, ProgressEvent{Stage: StageChecking, Current: stats.Checked, Total: total, ID: id, File: rec.Path, Width: ins.Width, Height: ins.Height})
	res := r.engine.Process(ctx, id)
	stats.Record(res)

	event.Message = res.Message
	event.BytesSaved = res.BytesSaved
	switch {
	case !res.Success:
		event.Stage = StageFailed
	case res.Resized:
		event.Stage = StageResized
	default:
		event.Stage = StageUnchanged
	}
	r.emit(ctx, opts, event)
	return true
}

// emit delivers event to the reporter and the channel. A channel send gives up
// when the context is cancelled.
func (r *BulkRunner) emit(ctx context.Context, opts BulkOptions, event ProgressEvent) {
	if opts.Report != nil {
		opts.Report(event)
	}
	if opts.Progress == nil {
		return
	}
	select {
	case opts.Progress <- event:
	case <-ctx.Done():
	}
}
