// Package opencv adapts gocv single-object trackers to the cascade's
// Tracker interface. Frames arrive as encoded JPEG and are decoded per
// call; the Mats never outlive the call.
package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"github.com/classlens/classlens/internal/detect"
	"github.com/classlens/classlens/internal/geometry"
	"github.com/classlens/classlens/internal/track"
)

// Factories returns the tracker cascade in preference order: CSRT is
// the most accurate, KCF is faster but less robust to scale change,
// MIL is the last resort.
func Factories() []track.Factory {
	return []track.Factory{
		{Name: "csrt", New: func() (track.Tracker, error) { return newAdapter(contrib.NewTrackerCSRT()) }},
		{Name: "kcf", New: func() (track.Tracker, error) { return newAdapter(contrib.NewTrackerKCF()) }},
		{Name: "mil", New: func() (track.Tracker, error) { return newAdapter(gocv.NewTrackerMIL()) }},
	}
}

type adapter struct {
	tr gocv.Tracker
}

func newAdapter(tr gocv.Tracker) (track.Tracker, error) {
	if tr == nil {
		return nil, fmt.Errorf("opencv: tracker construction returned nil")
	}
	return &adapter{tr: tr}, nil
}

func (a *adapter) Init(frame *detect.Frame, box geometry.Box) bool {
	mat, err := decode(frame)
	if err != nil {
		return false
	}
	defer mat.Close()
	return a.tr.Init(mat, toRect(box))
}

func (a *adapter) Update(frame *detect.Frame) (geometry.Box, bool) {
	mat, err := decode(frame)
	if err != nil {
		return geometry.Box{}, false
	}
	defer mat.Close()

	rect, ok := a.tr.Update(mat)
	if !ok {
		return geometry.Box{}, false
	}
	return fromRect(rect), true
}

func (a *adapter) Close() error {
	return a.tr.Close()
}

func decode(frame *detect.Frame) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(frame.JPEG, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("opencv: decoding frame %d: %w", frame.Index, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("opencv: frame %d decoded empty", frame.Index)
	}
	return mat, nil
}

func toRect(b geometry.Box) image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func fromRect(r image.Rectangle) geometry.Box {
	return geometry.Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}
