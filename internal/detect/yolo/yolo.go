// Package yolo implements the detect interfaces on OpenCV's DNN
// module: YOLOv8 ONNX models for poses and desktop objects, and the
// YuNet/SFace pair for faces. One network serves all goroutines behind
// a mutex; OpenCV nets are not reentrant.
package yolo

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/classlens/classlens/internal/detect"
	"github.com/classlens/classlens/internal/geometry"
)

const (
	inputSize     = 640
	anchorCount   = 8400
	nmsThreshold  = 0.45
	poseThreshold = 0.25
)

// net wraps a gocv DNN with the pre/post-processing shared by the pose
// and object detectors.
type net struct {
	mu  sync.Mutex
	dnn gocv.Net
}

func loadONNX(modelPath string) (*net, error) {
	dnn := gocv.ReadNetFromONNX(modelPath)
	if dnn.Empty() {
		return nil, fmt.Errorf("yolo: could not load model %q", modelPath)
	}
	return &net{dnn: dnn}, nil
}

// forward decodes the frame, runs inference and returns the raw output
// tensor as a flat float32 slice in [channels][anchors] layout, plus
// the x/y scale from model space back to frame space.
func (n *net) forward(frame *detect.Frame) ([]float32, float64, float64, error) {
	img, err := gocv.IMDecode(frame.JPEG, gocv.IMReadColor)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("yolo: decoding frame %d: %w", frame.Index, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, 0, 0, fmt.Errorf("yolo: frame %d decoded empty", frame.Index)
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(inputSize, inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	n.mu.Lock()
	n.dnn.SetInput(blob, "")
	output := n.dnn.Forward("")
	n.mu.Unlock()
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("yolo: reading output tensor: %w", err)
	}
	out := make([]float32, len(data))
	copy(out, data)

	scaleX := float64(img.Cols()) / inputSize
	scaleY := float64(img.Rows()) / inputSize
	return out, scaleX, scaleY, nil
}

func (n *net) close() error {
	return n.dnn.Close()
}

// at indexes the [channels][anchors] output tensor.
func at(data []float32, channel, anchor int) float32 {
	return data[channel*anchorCount+anchor]
}

// boxAt converts the center-size box at an anchor to frame-space
// corners.
func boxAt(data []float32, anchor int, scaleX, scaleY float64) geometry.Box {
	cx := float64(at(data, 0, anchor)) * scaleX
	cy := float64(at(data, 1, anchor)) * scaleY
	w := float64(at(data, 2, anchor)) * scaleX
	h := float64(at(data, 3, anchor)) * scaleY
	return geometry.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2))
}

func toImageRect(b geometry.Box) image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func fromImageRect(r image.Rectangle) geometry.Box {
	return geometry.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
}
