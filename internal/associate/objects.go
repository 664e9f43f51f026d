package associate

import (
	"github.com/classlens/classlens/internal/detect"
	"github.com/classlens/classlens/internal/geometry"
)

// Object association thresholds. OverlapThreshold is deliberately low:
// a laptop on the desk barely intersects the seated person's box.
// FrontMarginRatio widens the person's horizontal span when deciding
// whether an object sits "in front of" them.
const (
	OverlapThreshold = 0.1
	FrontMarginRatio = 0.3
)

// OverlapObjects returns the objects whose boxes overlap the person's
// box with IoU above minIoU, preserving detection order.
func OverlapObjects(person geometry.Box, objects []detect.DesktopObject, minIoU float64) []detect.DesktopObject {
	var out []detect.DesktopObject
	for _, obj := range objects {
		if geometry.IoU(person, obj.Box) > minIoU {
			out = append(out, obj)
		}
	}
	return out
}

// ObjectsInFront returns the objects positioned in front of the person:
// the object's center must sit below the person's nose and within the
// person's horizontal span widened by FrontMarginRatio on each side.
// noseY is the nose's image-space y coordinate.
func ObjectsInFront(person geometry.Box, noseY float64, objects []detect.DesktopObject) []detect.DesktopObject {
	margin := int(float64(person.Width()) * FrontMarginRatio)
	left := person.X1 - margin
	right := person.X2 + margin

	var out []detect.DesktopObject
	for _, obj := range objects {
		cx, cy := obj.Center()
		if float64(cy) > noseY && cx >= left && cx <= right {
			out = append(out, obj)
		}
	}
	return out
}
