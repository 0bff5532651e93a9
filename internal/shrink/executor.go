package shrink

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/acm19/shrink/internal/logger"
)

// SupportURL is where users are pointed when resizing fails.
const SupportURL = "https://github.com/acm19/shrink/issues"

// CodecError wraps a failure of the pixel codec. The original file has been
// removed by the time it is returned.
type CodecError struct {
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("Unable to resize this image for the following reason: %v. "+
		"If you continue to see this error message, you may need to install missing server components. "+
		"If you think you have discovered a bug, please report it at %s", e.Err, SupportURL)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// ResizeResult describes a completed resize.
type ResizeResult struct {
	Decision     Decision
	OriginalSize int64
	OutputSize   int64
}

// Replaced reports whether the original was swapped for the resized file.
func (r ResizeResult) Replaced() bool {
	return r.Decision.Action == ActionReplaceWith
}

// Saved returns the number of bytes saved by the resize.
func (r ResizeResult) Saved() int64 {
	if !r.Replaced() {
		return 0
	}
	return r.OriginalSize - r.OutputSize
}

// Executor runs the codec and commits the result.
type Executor struct {
	fs         FileSystem
	codec      Codec
	optimizer  Optimizer
	vault      Vault
	extensions Extensions
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithOptimizer runs o on JPEG output before the size comparison.
func WithOptimizer(o Optimizer) ExecutorOption {
	return func(e *Executor) {
		e.optimizer = o
	}
}

// WithVault stores originals in v before they are deleted.
func WithVault(v Vault) ExecutorOption {
	return func(e *Executor) {
		e.vault = v
	}
}

// NewExecutor creates an Executor.
func NewExecutor(fsys FileSystem, codec Codec, opts ...ExecutorOption) *Executor {
	e := &Executor{fs: fsys, codec: codec, extensions: NewExtensions()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resize scales the image at path to width x height. The resized file replaces
// the original only when it is strictly smaller. A codec failure deletes the
// original and returns a *CodecError.
func (e *Executor) Resize(ctx context.Context, path string, width, height int, crop bool, quality int) (ResizeResult, error) {
	origInfo, err := e.fs.Stat(path)
	if err != nil {
		return ResizeResult{}, fmt.Errorf("cannot access file: %w", err)
	}

	ext := filepath.Ext(path)
	tmp, err := e.fs.TempFile(filepath.Dir(path), ".shrink-*"+ext)
	if err != nil {
		return ResizeResult{}, fmt.Errorf("failed to create temporary file: %w", err)
	}

	logger.Debug("Resizing image", "file", filepath.Base(path), "width", width, "height", height, "crop", crop, "quality", quality)
	if err := e.codec.Resize(path, tmp, width, height, crop, quality); err != nil {
		decision := DeleteAndFail(path, tmp, err)
		if vaultErr := e.backup(ctx, path); vaultErr != nil {
			// Without a backup the original stays and only the output is discarded.
			decision = KeepOriginal(path, tmp)
			logger.Error("Vault backup failed, keeping original", "file", path, "error", vaultErr)
		}
		if commitErr := Commit(e.fs, decision); commitErr != nil {
			logger.Error("Failed to clean up after codec error", "file", path, "error", commitErr)
		}
		return ResizeResult{Decision: decision, OriginalSize: origInfo.Size()}, &CodecError{Err: err}
	}

	if e.optimizer != nil && e.extensions.IsJPEG(tmp) {
		if err := e.optimizer.Optimize(tmp, quality); err != nil {
			logger.Warn("Optimizer failed, using codec output as is", "file", filepath.Base(path), "error", err)
		}
	}

	result := ResizeResult{OriginalSize: origInfo.Size()}
	outInfo, err := e.fs.Stat(tmp)
	switch {
	case err == nil && outInfo.Size() > 0 && outInfo.Size() < origInfo.Size():
		result.OutputSize = outInfo.Size()
		result.Decision = ReplaceWith(path, tmp)
	case err == nil:
		result.OutputSize = outInfo.Size()
		result.Decision = KeepOriginal(path, tmp)
	default:
		result.Decision = KeepOriginal(path, "")
	}

	if err := Commit(e.fs, result.Decision); err != nil {
		return result, err
	}
	logger.Debug("Committed resize", "file", filepath.Base(path), "action", result.Decision.Action.String(),
		"original_bytes", result.OriginalSize, "output_bytes", result.OutputSize)
	return result, nil
}

// Delete removes path for good, storing it in the vault first when one is
// configured. The file is kept if the vault rejects it.
func (e *Executor) Delete(ctx context.Context, path string) error {
	if err := e.backup(ctx, path); err != nil {
		return fmt.Errorf("vault backup failed: %w", err)
	}
	return Commit(e.fs, DeleteAndFail(path, "", nil))
}

func (e *Executor) backup(ctx context.Context, path string) error {
	if e.vault == nil {
		return nil
	}
	if _, err := e.fs.Stat(path); err != nil {
		return nil
	}
	return e.vault.Store(ctx, path)
}

// IsCodecError reports whether err came from the codec.
func IsCodecError(err error) bool {
	var ce *CodecError
	return errors.As(err, &ce)
}
