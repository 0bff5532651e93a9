package shrink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("image not found")

// Library is the collection of images the engine works on.
type Library interface {
	// IDsBefore returns up to limit identifiers strictly below before, in
	// descending order. A before of 0 means no upper bound.
	IDsBefore(ctx context.Context, before uint64, limit int) ([]uint64, error)
	// Count returns the number of records strictly below before (0 = all).
	Count(ctx context.Context, before uint64) (int, error)
	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id uint64) (Record, error)
	// Save updates an existing record.
	Save(ctx context.Context, rec Record) error
	// Add stores a new record and assigns its identifier.
	Add(ctx context.Context, rec Record) (Record, error)
	// Root is the directory holding the library's files.
	Root() string
	// URLFor returns the public URL for a file under Root, or "".
	URLFor(path string) string
}

type manifest struct {
	NextID  uint64   `json:"next_id"`
	BaseURL string   `json:"base_url,omitempty"`
	Records []Record `json:"records"`
}

// fileLibrary implements Library as a JSON manifest on disk.
type fileLibrary struct {
	mu      sync.Mutex
	path    string
	root    string
	baseURL string
	records map[uint64]Record
	nextID  uint64
}

// OpenFileLibrary loads the manifest at path, creating an empty library when
// the file does not exist yet.
func OpenFileLibrary(path, root, baseURL string) (Library, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid library root: %w", err)
	}
	lib := &fileLibrary{
		path:    path,
		root:    absRoot,
		baseURL: baseURL,
		records: make(map[uint64]Record),
		nextID:  1,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return lib, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read library manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse library manifest %s: %w", path, err)
	}
	for _, rec := range m.Records {
		lib.records[rec.ID] = rec
		if rec.ID >= lib.nextID {
			lib.nextID = rec.ID + 1
		}
	}
	if m.NextID > lib.nextID {
		lib.nextID = m.NextID
	}
	if lib.baseURL == "" {
		lib.baseURL = m.BaseURL
	}
	return lib, nil
}

func (l *fileLibrary) sortedIDs(before uint64) []uint64 {
	ids := make([]uint64, 0, len(l.records))
	for id := range l.records {
		if before == 0 || id < before {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	slices.Reverse(ids)
	return ids
}

func (l *fileLibrary) IDsBefore(ctx context.Context, before uint64, limit int) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.sortedIDs(before)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (l *fileLibrary) Count(ctx context.Context, before uint64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sortedIDs(before)), nil
}

func (l *fileLibrary) Get(ctx context.Context, id uint64) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[id]
	if !ok {
		return Record{}, fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	rec.Sizes = cloneSizes(rec.Sizes)
	return rec, nil
}

func (l *fileLibrary) Save(ctx context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[rec.ID]; !ok {
		return fmt.Errorf("image %d: %w", rec.ID, ErrNotFound)
	}
	rec.Sizes = cloneSizes(rec.Sizes)
	l.records[rec.ID] = rec
	return l.flush()
}

func (l *fileLibrary) Add(ctx context.Context, rec Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.ID = l.nextID
	l.nextID++
	rec.Sizes = cloneSizes(rec.Sizes)
	l.records[rec.ID] = rec
	if err := l.flush(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (l *fileLibrary) Root() string {
	return l.root
}

func (l *fileLibrary) URLFor(path string) string {
	if l.baseURL == "" {
		return ""
	}
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return ""
	}
	base := l.baseURL
	if base[len(base)-1] != '/' {
		base += "/"
	}
	return base + filepath.ToSlash(rel)
}

// flush writes the manifest atomically. Callers hold l.mu.
func (l *fileLibrary) flush() error {
	m := manifest{NextID: l.nextID, BaseURL: l.baseURL}
	for _, id := range l.sortedIDs(0) {
		m.Records = append(m.Records, l.records[id])
	}
	slices.Reverse(m.Records)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode library manifest: %w", err)
	}
	return writeFileAtomic(l.path, data)
}

// writeFileAtomic writes data to a temporary file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func cloneSizes(sizes map[string]SizeEntry) map[string]SizeEntry {
	if sizes == nil {
		return nil
	}
	out := make(map[string]SizeEntry, len(sizes))
	for k, v := range sizes {
		out[k] = v
	}
	return out
}
