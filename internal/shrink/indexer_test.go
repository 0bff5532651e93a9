package shrink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestIndexer_Index(t *testing.T) {
	ctx := context.Background()
	lib, root := newTestLibrary(t)
	sub := filepath.Join(root, "2024")
	os.MkdirAll(sub, 0755)
	os.MkdirAll(filepath.Join(root, ".cache"), 0755)

	writeJPEG(t, root, "a.jpg", 20, 10)
	writePNG(t, sub, "b.png", 8, 8, false)
	writeJPEG(t, sub, "c.jpg", 30, 30)
	writeJPEG(t, sub, "c-scaled.jpg", 15, 15)
	writeJPEG(t, filepath.Join(root, ".cache"), "hidden.jpg", 4, 4)
	os.WriteFile(filepath.Join(root, "notes.txt"), []byte("text"), 0644)
	os.WriteFile(filepath.Join(root, "fake.jpg"), []byte("not an image"), 0644)

	ix := NewIndexer(lib, NewImagingCodec())
	stats, err := ix.Index(ctx, root, SourceLibrary)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.Added != 3 || stats.Skipped != 1 {
		t.Errorf("Expected 3 added and 1 skipped, got: %+v", stats)
	}

	ids, _ := lib.IDsBefore(ctx, 0, 0)
	var scaled Record
	for _, id := range ids {
		rec, _ := lib.Get(ctx, id)
		if rec.Source != SourceLibrary {
			t.Errorf("Expected library source, got: %v", rec.Source)
		}
		if filepath.Base(rec.Path) == "c-scaled.jpg" {
			scaled = rec
		}
		if filepath.Base(rec.Path) == "c.jpg" {
			t.Error("Expected the retained original not to be registered on its own")
		}
	}
	if scaled.Sizes[OriginalImageKey].File != "c.jpg" || scaled.Sizes[OriginalImageKey].Width != 30 {
		t.Errorf("Expected c.jpg as retained original, got: %+v", scaled.Sizes)
	}
	if scaled.Width != 15 || scaled.Mime != MimeJPEG {
		t.Errorf("Expected measured record, got: %+v", scaled)
	}

	again, err := ix.Index(ctx, root, SourceLibrary)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if again.Added != 0 || again.Known != 4 {
		t.Errorf("Expected nothing new on a second pass, got: %+v", again)
	}
}
