package main

import (
	"context"
	"fmt"
	"io"

	"github.com/barasher/go-exiftool"

	"github.com/acm19/shrink/internal/config"
	"github.com/acm19/shrink/internal/logger"
	"github.com/acm19/shrink/internal/shrink"
)

// app holds every collaborator a command may need.
type app struct {
	cfg      *config.Config
	settings *config.FileSettings
	lib      shrink.Library
	tracker  shrink.Tracker
	scanner  *shrink.Scanner
	engine   *shrink.Engine
	runner   *shrink.BulkRunner
	remover  *shrink.OriginalRemover
	indexer  *shrink.Indexer

	closers []io.Closer
}

// newApp loads the configuration at path and wires the pipeline from it.
func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, settings: config.NewFileSettings(path, cfg.Settings)}

	a.lib, err = shrink.OpenFileLibrary(cfg.Library.Manifest, cfg.Library.Root, cfg.Library.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}

	switch cfg.Progress.Backend {
	case config.BackendRedis:
		tracker, err := shrink.NewRedisTracker(ctx, cfg.RedisOptions())
		if err != nil {
			return nil, err
		}
		a.tracker = tracker
		if c, ok := tracker.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
	default:
		a.tracker = shrink.NewFileTracker(cfg.Progress.Path)
	}

	var et *exiftool.Exiftool
	if cfg.Tools.Exiftool {
		et, err = exiftool.NewExiftool()
		if err != nil {
			logger.Warn("exiftool not available, reading orientation in Go", "error", err)
			et = nil
		} else {
			a.closers = append(a.closers, et)
		}
	}

	var execOpts []shrink.ExecutorOption
	if cfg.Tools.Jpegoptim {
		optimizer, err := shrink.NewJPEGOptimizer()
		if err != nil {
			logger.Warn("jpegoptim not available, skipping JPEG optimisation", "error", err)
		} else {
			execOpts = append(execOpts, shrink.WithOptimizer(optimizer))
		}
	}

	vault, err := shrink.NewVault(ctx, cfg.VaultOptions())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialise vault: %w", err)
	}
	if vault != nil {
		execOpts = append(execOpts, shrink.WithVault(vault))
	}

	fsys := shrink.NewOSFileSystem()
	codec := shrink.NewImagingCodec()
	executor := shrink.NewExecutor(fsys, codec, execOpts...)

	orientation := shrink.NewOrientationReader(et)
	a.engine = shrink.NewEngine(a.lib, a.settings, fsys, codec, orientation, executor)
	a.scanner = shrink.NewScanner(a.lib, a.settings, codec, fsys, shrink.WithScanLimit(cfg.Bulk.Cap), shrink.WithOrientation(orientation))
	a.runner = shrink.NewBulkRunner(a.lib, a.settings, a.scanner, a.engine, a.tracker)
	a.remover = shrink.NewOriginalRemover(a.lib, a.settings, fsys, executor)
	a.indexer = shrink.NewIndexer(a.lib, codec)
	return a, nil
}

// Close releases external processes and connections.
func (a *app) Close() error {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.Debug("Close failed", "error", err)
		}
	}
	return nil
}
