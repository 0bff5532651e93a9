package shrink

import (
	"fmt"
	"os"
	"os/exec"
)

// Optimizer post-processes a freshly encoded file in place.
type Optimizer interface {
	// Optimize recompresses the JPEG at path, capping quality at the given level.
	Optimize(path string, quality int) error
}

// jpegOptimizer implements Optimizer with the jpegoptim binary.
type jpegOptimizer struct {
	bin string
}

// NewJPEGOptimizer locates jpegoptim on PATH and returns an Optimizer using it.
func NewJPEGOptimizer() (Optimizer, error) {
	bin, err := exec.LookPath("jpegoptim")
	if err != nil {
		return nil, fmt.Errorf("jpegoptim not found: %w", err)
	}
	return &jpegOptimizer{bin: bin}, nil
}

// Optimize runs jpegoptim on path, preserving EXIF and the modification time.
func (o *jpegOptimizer) Optimize(path string, quality int) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file does not exist: %w", err)
	}

	cmd := exec.Command(o.bin, fmt.Sprintf("-m%d", quality), "-p", "-q", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("jpegoptim failed for %s: %w, output: %s", path, err, output)
	}
	return nil
}
