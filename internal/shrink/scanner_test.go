package shrink

import (
	"context"
	"path/filepath"
	"testing"
)

// stubLibrary serves records from memory without touching disk.
type stubLibrary struct {
	records map[uint64]Record
}

func newStubLibrary(records ...Record) *stubLibrary {
	l := &stubLibrary{records: map[uint64]Record{}}
	for _, r := range records {
		l.records[r.ID] = r
	}
	return l
}

func (l *stubLibrary) IDsBefore(ctx context.Context, before uint64, limit int) ([]uint64, error) {
	var ids []uint64
	for id := uint64(len(l.records) + 1000); id > 0; id-- {
		if before != 0 && id >= before {
			continue
		}
		if _, ok := l.records[id]; ok {
			ids = append(ids, id)
			if limit > 0 && len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (l *stubLibrary) Count(ctx context.Context, before uint64) (int, error) {
	ids, _ := l.IDsBefore(ctx, before, 0)
	return len(ids), nil
}

func (l *stubLibrary) Get(ctx context.Context, id uint64) (Record, error) {
	rec, ok := l.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (l *stubLibrary) Save(ctx context.Context, rec Record) error {
	l.records[rec.ID] = rec
	return nil
}

func (l *stubLibrary) Add(ctx context.Context, rec Record) (Record, error) {
	rec.ID = uint64(len(l.records) + 1)
	l.records[rec.ID] = rec
	return rec, nil
}

func (l *stubLibrary) Root() string              { return "/" }
func (l *stubLibrary) URLFor(path string) string { return "" }

func noAlwaysJPG() StaticSettings {
	return StaticSettings{Site: Layer{AlwaysResizeJPG: boolPtr(false)}}
}

// A noresize filename is never a candidate.
func TestScanner_Scan_ExcludesNoResize(t *testing.T) {
	dir := t.TempDir()
	skip := writeJPEG(t, dir, "photo-noresize.jpg", 8, 8)
	big := writeJPEG(t, dir, "big.jpg", 8, 8)

	lib := newStubLibrary(
		Record{ID: 7, Path: skip, Width: 4000, Height: 3000, Mime: MimeJPEG},
		Record{ID: 8, Path: big, Width: 4000, Height: 3000, Mime: MimeJPEG},
	)

	ids, err := NewScanner(lib, noAlwaysJPG(), NewImagingCodec(), NewOSFileSystem()).Scan(context.Background(), 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != 8 {
		t.Errorf("Expected only image 8, got: %v", ids)
	}
}

func TestScanner_Inspect_Reasons(t *testing.T) {
	dir := t.TempDir()
	small := writeJPEG(t, dir, "small.jpg", 8, 8)
	gif := writeImage(t, dir, "anim.gif", patternImage(8, 8))
	missing := filepath.Join(dir, "missing.webp")

	s := NewScanner(newStubLibrary(), noAlwaysJPG(), NewImagingCodec(), NewOSFileSystem())
	policy := Settings(noAlwaysJPG()).Snapshot(SourcePost)

	tests := []struct {
		name   string
		rec    Record
		needed bool
		reason string
	}{
		{"within bounds", Record{Path: small, Width: 8, Height: 8}, false, "resize not required"},
		{"stored dimensions too big", Record{Path: small, Width: 5000, Height: 8}, true, ""},
		{"missing file", Record{Path: missing, Width: 5000, Height: 5000}, false, "file missing"},
		{"gif allowed", Record{Path: gif, Width: 4000, Height: 10}, true, ""},
		{"unknown dimensions are measured", Record{Path: small}, false, "resize not required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := s.Inspect(tt.rec, policy)
			if ins.Needed != tt.needed || ins.Reason != tt.reason {
				t.Errorf("Expected needed=%v reason=%q, got: needed=%v reason=%q", tt.needed, tt.reason, ins.Needed, ins.Reason)
			}
		})
	}
}

func TestScanner_Inspect_DisallowedMime(t *testing.T) {
	dir := t.TempDir()
	bmp := writeBMP(t, dir, "scan.bmp", 8, 8)

	s := NewScanner(newStubLibrary(), noAlwaysJPG(), NewImagingCodec(), NewOSFileSystem())
	p := testPolicy()
	p.BMPToJPG = false

	ins := s.Inspect(Record{Path: bmp, Width: 5000, Height: 5000}, p)
	if ins.Needed {
		t.Error("Expected BMP to be excluded by the allow-list")
	}

	p.BMPToJPG = true
	ins = s.Inspect(Record{Path: bmp, Width: 8, Height: 8}, p)
	if !ins.Needed {
		t.Error("Expected BMP to be a conversion candidate")
	}
}

func TestScanner_Inspect_DeepScanMeasures(t *testing.T) {
	dir := t.TempDir()
	path := writeJPEG(t, dir, "stale.jpg", 40, 20)

	s := NewScanner(newStubLibrary(), noAlwaysJPG(), NewImagingCodec(), NewOSFileSystem())
	p := testPolicy()
	p.AlwaysResizeJPG = false
	p.MaxWidth, p.MaxHeight = 30, 30

	// Stored metadata claims it is small.
	rec := Record{Path: path, Width: 10, Height: 5}
	if s.Inspect(rec, p).Needed {
		t.Error("Expected stored dimensions to be trusted without deep scan")
	}

	p.DeepScan = true
	ins := s.Inspect(rec, p)
	if !ins.Needed || ins.Width != 40 || ins.Height != 20 {
		t.Errorf("Expected deep scan to find 40x20, got: %+v", ins)
	}
}

func TestScanner_Scan_ResumeIsMonotonic(t *testing.T) {
	dir := t.TempDir()
	path := writeJPEG(t, dir, "big.jpg", 8, 8)
	var recs []Record
	for id := uint64(1); id <= 10; id++ {
		recs = append(recs, Record{ID: id, Path: path, Width: 4000, Height: 3000})
	}
	s := NewScanner(newStubLibrary(recs...), noAlwaysJPG(), NewImagingCodec(), NewOSFileSystem(), WithPageSize(3))

	ids, err := s.Scan(context.Background(), 6)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	expected := []uint64{5, 4, 3, 2, 1}
	if len(ids) != len(expected) {
		t.Fatalf("Expected %v, got: %v", expected, ids)
	}
	for i := range expected {
		if ids[i] != expected[i] {
			t.Errorf("Expected %v, got: %v", expected, ids)
			break
		}
	}
}

func TestScanner_Scan_Cap(t *testing.T) {
	dir := t.TempDir()
	path := writeJPEG(t, dir, "big.jpg", 8, 8)
	var recs []Record
	for id := uint64(1); id <= 300; id++ {
		recs = append(recs, Record{ID: id, Path: path, Width: 4000, Height: 3000})
	}
	lib := newStubLibrary(recs...)

	ids, err := NewScanner(lib, noAlwaysJPG(), NewImagingCodec(), NewOSFileSystem()).Scan(context.Background(), 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ids) != DefaultScanLimit {
		t.Errorf("Expected %d candidates, got: %d", DefaultScanLimit, len(ids))
	}
	if ids[0] != 300 || ids[len(ids)-1] != 51 {
		t.Errorf("Expected 300..51, got: %d..%d", ids[0], ids[len(ids)-1])
	}

	ids, _ = NewScanner(lib, noAlwaysJPG(), NewImagingCodec(), NewOSFileSystem(), WithScanLimit(5)).Scan(context.Background(), 0)
	if len(ids) != 5 {
		t.Errorf("Expected 5 candidates, got: %d", len(ids))
	}
}

// A landscape file stored sideways is judged by its displayed dimensions.
func TestScanner_Inspect_QuarterTurn(t *testing.T) {
	dir := t.TempDir()
	path := writeJPEG(t, dir, "sideways.jpg", 300, 150)

	p := testPolicy()
	p.AlwaysResizeJPG = false
	p.MaxWidth, p.MaxHeight = 400, 200
	rec := Record{Path: path, Width: 300, Height: 150}

	plain := NewScanner(newStubLibrary(), noAlwaysJPG(), NewImagingCodec(), NewOSFileSystem())
	if plain.Inspect(rec, p).Needed {
		t.Error("Expected upright image within bounds to be skipped")
	}

	rotated := NewScanner(newStubLibrary(), noAlwaysJPG(), NewImagingCodec(), NewOSFileSystem(), WithOrientation(fixedOrientation(OrientationRotate90CW)))
	if ins := rotated.Inspect(rec, p); !ins.Needed {
		t.Errorf("Expected rotated image to need a resize, got: %+v", ins)
	}
}

func TestScanner_Inspect_PNGAlpha(t *testing.T) {
	dir := t.TempDir()
	logo := writePNG(t, dir, "logo.png", 16, 16, true)
	chart := writePNG(t, dir, "chart.png", 16, 16, false)

	s := NewScanner(newStubLibrary(), noAlwaysJPG(), NewImagingCodec(), NewOSFileSystem())
	p := testPolicy()
	p.PNGToJPG = true

	if ins := s.Inspect(Record{Path: logo, Width: 16, Height: 16}, p); ins.Needed {
		t.Errorf("Expected PNG with alpha not to be listed, got: %+v", ins)
	}
	if ins := s.Inspect(Record{Path: chart, Width: 16, Height: 16}, p); !ins.Needed {
		t.Errorf("Expected opaque PNG to be a conversion candidate, got: %+v", ins)
	}
	if ins := s.Inspect(Record{Path: logo, Width: 5000, Height: 16}, p); !ins.Needed {
		t.Errorf("Expected oversized PNG with alpha to still need a resize, got: %+v", ins)
	}

	p.SkipAlpha = false
	if ins := s.Inspect(Record{Path: logo, Width: 16, Height: 16}, p); !ins.Needed {
		t.Errorf("Expected PNG with alpha to be converted when alpha is not skipped, got: %+v", ins)
	}
}
