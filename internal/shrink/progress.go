package shrink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Cursor is the persisted state of a bulk run.
type Cursor struct {
	// ResumeID is the last attempted identifier. Scans resume strictly below it.
	ResumeID uint64 `json:"resume_id"`
	// Stopped is set when the operator asked the run to halt.
	Stopped bool `json:"stopped"`
}

// Tracker persists bulk-run progress across invocations. It takes no locks:
// concurrent runs against the same tracker are not supported.
type Tracker interface {
	// Advance records id as the resume cursor. Last write wins.
	Advance(ctx context.Context, id uint64) error
	// Reset clears the cursor and the stop flag.
	Reset(ctx context.Context) error
	// Stop asks a running bulk job to halt before its next image.
	Stop(ctx context.Context) error
	// Resume clears the stop flag, keeping the cursor.
	Resume(ctx context.Context) error
	// Current returns the resume cursor (0 when unset).
	Current(ctx context.Context) (uint64, error)
	// State returns the full cursor state.
	State(ctx context.Context) (Cursor, error)
}

// fileTracker implements Tracker as a small JSON document on disk.
type fileTracker struct {
	mu   sync.Mutex
	path string
}

// NewFileTracker returns a Tracker stored at path.
func NewFileTracker(path string) Tracker {
	return &fileTracker{path: path}
}

func (t *fileTracker) load() (Cursor, error) {
	var c Cursor
	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to read cursor: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse cursor %s: %w", t.path, err)
	}
	return c, nil
}

func (t *fileTracker) update(fn func(*Cursor)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.load()
	if err != nil {
		return err
	}
	fn(&c)
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return writeFileAtomic(t.path, data)
}

func (t *fileTracker) Advance(ctx context.Context, id uint64) error {
	return t.update(func(c *Cursor) { c.ResumeID = id })
}

func (t *fileTracker) Reset(ctx context.Context) error {
	return t.update(func(c *Cursor) { *c = Cursor{} })
}

func (t *fileTracker) Stop(ctx context.Context) error {
	return t.update(func(c *Cursor) { c.Stopped = true })
}

func (t *fileTracker) Resume(ctx context.Context) error {
	return t.update(func(c *Cursor) { c.Stopped = false })
}

func (t *fileTracker) Current(ctx context.Context) (uint64, error) {
	c, err := t.State(ctx)
	return c.ResumeID, err
}

func (t *fileTracker) State(ctx context.Context) (Cursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}
