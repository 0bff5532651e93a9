package shrink

import "testing"

func TestEvaluate_DefaultPolicyLandscape(t *testing.T) {
	p := testPolicy()
	p.AlwaysResizeJPG = false

	got := Evaluate(p, 3000, 2000, MimeJPEG, OrientationNormal)

	if !got.NeedsResize {
		t.Fatal("Expected resize to be needed")
	}
	if got.Width != 1920 || got.Height != 1280 {
		t.Errorf("Expected 1920x1280, got: %dx%d", got.Width, got.Height)
	}
	if got.Crop {
		t.Error("Expected no crop")
	}
}

func TestEvaluate_WithinBounds(t *testing.T) {
	p := testPolicy()
	p.AlwaysResizeJPG = false

	got := Evaluate(p, 1920, 1080, MimePNG, OrientationNormal)
	if got.NeedsResize {
		t.Error("Expected no resize for an image within bounds")
	}
}

func TestEvaluate_UnboundedAxis(t *testing.T) {
	p := testPolicy()
	p.MaxHeight = 0

	got := Evaluate(p, 1000, 50000, MimePNG, OrientationNormal)
	if got.NeedsResize {
		t.Error("Expected height to be unbounded")
	}

	got = Evaluate(p, 3840, 50000, MimePNG, OrientationNormal)
	if !got.NeedsResize || got.Width != 1920 || got.Height != 25000 {
		t.Errorf("Expected 1920x25000, got: %+v", got)
	}
}

func TestEvaluate_OrientationSwapsDimensions(t *testing.T) {
	p := testPolicy()
	p.MaxWidth, p.MaxHeight = 2000, 1000
	p.AlwaysResizeJPG = false

	// Stored as 1000x2000 but displayed rotated, so it is 2000x1000.
	for _, o := range []Orientation{6, 8} {
		got := Evaluate(p, 1000, 2000, MimeJPEG, o)
		if got.NeedsResize {
			t.Errorf("Orientation %d: expected no resize, got: %+v", o, got)
		}
	}

	got := Evaluate(p, 1000, 2000, MimeJPEG, OrientationNormal)
	if !got.NeedsResize || got.Width != 500 || got.Height != 1000 {
		t.Errorf("Expected 500x1000 without rotation, got: %+v", got)
	}
}

func TestEvaluate_Crop(t *testing.T) {
	p := testPolicy()
	p.MaxWidth, p.MaxHeight = 800, 600
	p.Crop = true

	got := Evaluate(p, 1600, 1000, MimePNG, OrientationNormal)
	if !got.Crop || got.Width != 800 || got.Height != 600 {
		t.Errorf("Expected 800x600 crop, got: %+v", got)
	}
}

func TestEvaluate_CropNeedsBothAxesAtLeastMax(t *testing.T) {
	p := testPolicy()
	p.MaxWidth, p.MaxHeight = 800, 600
	p.Crop = true

	got := Evaluate(p, 1600, 400, MimePNG, OrientationNormal)
	if got.Crop {
		t.Errorf("Expected fit when height is below max, got: %+v", got)
	}
	if got.Width != 800 || got.Height != 200 {
		t.Errorf("Expected 800x200, got: %dx%d", got.Width, got.Height)
	}
}

func TestEvaluate_CropEdgeCaseExactlyMax(t *testing.T) {
	p := testPolicy()
	p.MaxWidth, p.MaxHeight = 800, 600
	p.Crop = true

	got := Evaluate(p, 800, 600, MimeJPEG, OrientationNormal)
	if got.Crop {
		t.Error("Expected exact-max dimensions to take the fit path")
	}
	if !got.NeedsResize || got.Width != 800 || got.Height != 600 {
		t.Errorf("Expected forced JPEG re-encode at 800x600, got: %+v", got)
	}
}

func TestEvaluate_AlwaysResizeJPG(t *testing.T) {
	p := testPolicy()

	got := Evaluate(p, 640, 480, MimeJPEG, OrientationNormal)
	if !got.NeedsResize || got.Width != 640 || got.Height != 480 {
		t.Errorf("Expected forced re-encode at original size, got: %+v", got)
	}

	got = Evaluate(p, 640, 480, MimePNG, OrientationNormal)
	if got.NeedsResize {
		t.Error("Expected always_resize_jpg to apply to JPEG only")
	}
}

func TestConstrainDimensions(t *testing.T) {
	tests := []struct {
		name                 string
		w, h, maxw, maxh     int
		expectedW, expectedH int
	}{
		{"landscape", 3000, 2000, 1920, 1920, 1920, 1280},
		{"portrait", 2000, 3000, 1920, 1920, 1280, 1920},
		{"within bounds", 800, 600, 1920, 1920, 800, 600},
		{"never enlarges", 100, 100, 1920, 1920, 100, 100},
		{"width only", 4000, 100, 1000, 0, 1000, 25},
		{"tiny side stays at least 1", 10000, 1, 100, 100, 100, 1},
		{"unbounded", 5000, 5000, 0, 0, 5000, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := ConstrainDimensions(tt.w, tt.h, tt.maxw, tt.maxh)
			if w != tt.expectedW || h != tt.expectedH {
				t.Errorf("Expected %dx%d, got: %dx%d", tt.expectedW, tt.expectedH, w, h)
			}
			if tt.maxw > 0 && w > tt.maxw || tt.maxh > 0 && h > tt.maxh {
				t.Errorf("Result %dx%d exceeds box %dx%d", w, h, tt.maxw, tt.maxh)
			}
		})
	}
}
