package yolo

import (
	"context"
	"image"

	"gocv.io/x/gocv"

	"github.com/classlens/classlens/internal/detect"
)

// cocoClassCount is the number of classes a stock YOLOv8 detection
// model predicts; the output tensor is [1, 4+classes, anchors].
const cocoClassCount = 80

// ObjectDetector finds desktop objects with a YOLOv8 detection model.
type ObjectDetector struct {
	net *net
}

// NewObjectDetector loads a YOLOv8 ONNX detection model, typically
// yolov8n.onnx.
func NewObjectDetector(modelPath string) (*ObjectDetector, error) {
	n, err := loadONNX(modelPath)
	if err != nil {
		return nil, err
	}
	return &ObjectDetector{net: n}, nil
}

// DetectObjects runs the model and keeps classroom-relevant classes at
// or above minConfidence, after non-maximum suppression per class.
func (d *ObjectDetector) DetectObjects(ctx context.Context, frame *detect.Frame, minConfidence float64) ([]detect.DesktopObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, scaleX, scaleY, err := d.net.forward(frame)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		class detect.ObjectClass
		score float32
		rect  image.Rectangle
	}
	byClass := make(map[detect.ObjectClass][]candidate)

	for anchor := 0; anchor < anchorCount; anchor++ {
		bestClass := -1
		var bestScore float32
		for c := 0; c < cocoClassCount; c++ {
			if score := at(data, 4+c, anchor); score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if bestClass < 0 || float64(bestScore) < minConfidence {
			continue
		}
		class := detect.ObjectClassFromCOCO(bestClass)
		if class == detect.ClassUnknown {
			continue
		}
		box := boxAt(data, anchor, scaleX, scaleY).Clamp(frame.Width, frame.Height)
		byClass[class] = append(byClass[class], candidate{class: class, score: bestScore, rect: toImageRect(box)})
	}

	var objects []detect.DesktopObject
	for class, candidates := range byClass {
		rects := make([]image.Rectangle, len(candidates))
		scores := make([]float32, len(candidates))
		for i, c := range candidates {
			rects[i] = c.rect
			scores[i] = c.score
		}
		for _, idx := range gocv.NMSBoxes(rects, scores, float32(minConfidence), nmsThreshold) {
			c := candidates[idx]
			objects = append(objects, detect.DesktopObject{
				Class:      class,
				Confidence: float64(c.score),
				Box:        fromImageRect(c.rect),
			})
		}
	}
	return objects, nil
}

// Close releases the network.
func (d *ObjectDetector) Close() error {
	return d.net.close()
}
