// Package geometry provides the bounding-box math used throughout the
// analysis pipeline: overlap scoring, clamping to image bounds and the
// minimum-size gate applied before a region is handed to a tracker.
package geometry

// MinTrackableSide is the smallest width/height a region may have and
// still be worth tracking. Anything below this is detector noise.
const MinTrackableSide = 10

// Box is an axis-aligned bounding box in pixel coordinates.
// X1,Y1 is the top-left corner and X2,Y2 the bottom-right; X1 <= X2
// and Y1 <= Y2 for any box produced by this package.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Rect builds a box from two corners.
func Rect(x1, y1, x2, y2 int) Box {
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// FromXYWH converts the (x, y, width, height) form used by trackers and
// user-drawn selections into corner form.
func FromXYWH(x, y, w, h int) Box {
	return Box{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// Width returns X2-X1.
func (b Box) Width() int { return b.X2 - b.X1 }

// Height returns Y2-Y1.
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Area returns the box area, or 0 for a degenerate box.
func (b Box) Area() int {
	if b.Width() <= 0 || b.Height() <= 0 {
		return 0
	}
	return b.Width() * b.Height()
}

// Empty reports whether the box has no positive area.
func (b Box) Empty() bool { return b.Area() == 0 }

// Center returns the midpoint of the box.
func (b Box) Center() (x, y int) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Expand grows the box by margin pixels on every side.
func (b Box) Expand(margin int) Box {
	return Box{X1: b.X1 - margin, Y1: b.Y1 - margin, X2: b.X2 + margin, Y2: b.Y2 + margin}
}

// Clamp clips the box into [0,width) x [0,height), preserving corner
// ordering. A box entirely outside the image collapses to a degenerate
// box on the nearest edge.
func (b Box) Clamp(width, height int) Box {
	return Box{
		X1: clampInt(b.X1, 0, width-1),
		Y1: clampInt(b.Y1, 0, height-1),
		X2: clampInt(b.X2, 0, width-1),
		Y2: clampInt(b.Y2, 0, height-1),
	}
}

// Trackable reports whether the box meets the minimum size a visual
// tracker can be initialized with.
func (b Box) Trackable() bool {
	return b.Width() >= MinTrackableSide && b.Height() >= MinTrackableSide
}

// IoU computes intersection-over-union of two boxes. Disjoint or
// degenerate inputs score 0; identical valid boxes score 1.
func IoU(a, b Box) float64 {
	ix1 := maxInt(a.X1, b.X1)
	iy1 := maxInt(a.Y1, b.Y1)
	ix2 := minInt(a.X2, b.X2)
	iy2 := minInt(a.Y2, b.Y2)

	if ix2 < ix1 || iy2 < iy1 {
		return 0
	}

	intersection := (ix2 - ix1) * (iy2 - iy1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
