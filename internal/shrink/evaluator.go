package shrink

import "math"

// Evaluation is the resize decision for one image.
type Evaluation struct {
	// NeedsResize is true when the image must be re-encoded.
	NeedsResize bool
	// Width and Height are the target dimensions.
	Width  int
	Height int
	// Crop is true when the target is an exact box that ignores aspect ratio.
	Crop bool
}

// Evaluate decides whether an image of the given dimensions needs resizing
// under p. Dimensions are swapped first when the orientation implies a quarter
// turn. A JPEG is always re-encoded when p.AlwaysResizeJPG is set.
func Evaluate(p Policy, width, height int, mime string, orientation Orientation) Evaluation {
	if orientation.Quarter() {
		width, height = height, width
	}
	maxw, maxh := p.MaxWidth, p.MaxHeight

	exceeds := (width > maxw && maxw > 0) || (height > maxh && maxh > 0)
	forced := p.AlwaysResizeJPG && mime == MimeJPEG
	if !exceeds && !forced {
		return Evaluation{Width: width, Height: height}
	}

	// Dimensions equal to the max on both axes fall through to the fit branch.
	if p.Crop && maxw > 0 && maxh > 0 && width >= maxw && height >= maxh && (height > maxh || width > maxw) {
		return Evaluation{NeedsResize: true, Width: maxw, Height: maxh, Crop: true}
	}

	w, h := ConstrainDimensions(width, height, maxw, maxh)
	return Evaluation{NeedsResize: true, Width: w, Height: h}
}

// ConstrainDimensions scales width and height down to fit inside maxw x maxh,
// preserving aspect ratio. A zero bound leaves that axis unconstrained.
func ConstrainDimensions(width, height, maxw, maxh int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}

	ratio := 1.0
	if maxw > 0 && width > maxw {
		ratio = math.Min(ratio, float64(maxw)/float64(width))
	}
	if maxh > 0 && height > maxh {
		ratio = math.Min(ratio, float64(maxh)/float64(height))
	}
	if ratio == 1.0 {
		return width, height
	}

	w := int(math.Round(float64(width) * ratio))
	h := int(math.Round(float64(height) * ratio))
	if maxw > 0 && w > maxw {
		w = maxw
	}
	if maxh > 0 && h > maxh {
		h = maxh
	}
	return max(w, 1), max(h, 1)
}
