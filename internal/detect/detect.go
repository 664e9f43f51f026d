// Package detect defines the data model for per-frame detections and
// the interfaces the analysis pipeline consumes them through. The
// actual inference engines (pose estimator, object detector, face
// recognizer) live behind these interfaces; the pipeline treats them
// as opaque, potentially slow collaborators.
package detect

import (
	"context"
	"time"

	"github.com/classlens/classlens/internal/geometry"
)

// Frame is one decoded-on-demand video frame. The pipeline itself only
// needs the index, timestamp and dimensions; the JPEG payload is passed
// through untouched to detectors and trackers.
type Frame struct {
	Index  int
	Time   time.Duration
	Width  int
	Height int
	JPEG   []byte
}

// PersonDetection is one subject found by the pose estimator.
type PersonDetection struct {
	Box        geometry.Box `json:"bbox"`
	Keypoints  Keypoints    `json:"keypoints"`
	Confidence float64      `json:"confidence"`
}

// ObjectClass is the label of a desktop object the classifier cares
// about. Anything outside the classroom-relevant COCO classes maps to
// ClassUnknown.
type ObjectClass string

const (
	ClassBook      ObjectClass = "book"
	ClassLaptop    ObjectClass = "laptop"
	ClassCellPhone ObjectClass = "cell_phone"
	ClassKeyboard  ObjectClass = "keyboard"
	ClassUnknown   ObjectClass = "unknown"
)

// COCO class indices for the desktop objects.
const (
	cocoLaptop    = 63
	cocoKeyboard  = 66
	cocoCellPhone = 67
	cocoBook      = 73
)

// ObjectClassFromCOCO maps a COCO class index to an ObjectClass.
func ObjectClassFromCOCO(id int) ObjectClass {
	switch id {
	case cocoLaptop:
		return ClassLaptop
	case cocoKeyboard:
		return ClassKeyboard
	case cocoCellPhone:
		return ClassCellPhone
	case cocoBook:
		return ClassBook
	default:
		return ClassUnknown
	}
}

// DesktopObject is one detected book/laptop/phone/keyboard instance.
type DesktopObject struct {
	Class      ObjectClass  `json:"label"`
	Confidence float64      `json:"confidence"`
	Box        geometry.Box `json:"bbox"`
}

// Center returns the midpoint of the object's bounding box.
func (o DesktopObject) Center() (x, y int) { return o.Box.Center() }

// Face is one detected face with its identity embedding. Embeddings
// are fixed-length vectors compared by cosine similarity against the
// enrolled registry.
type Face struct {
	Box       geometry.Box
	Embedding []float32
}

// PoseEstimator detects people and their keypoints in a frame.
type PoseEstimator interface {
	DetectPoses(ctx context.Context, frame *Frame) ([]PersonDetection, error)
}

// BatchPoseEstimator is an optional extension for backends that can
// amortize inference overhead across several frames. Results must be
// identical to calling DetectPoses frame by frame; the batch is an
// embarrassingly-parallel map, never a pipeline stage.
type BatchPoseEstimator interface {
	PoseEstimator
	DetectPoseBatch(ctx context.Context, frames []*Frame) ([][]PersonDetection, error)
}

// ObjectDetector detects desktop objects in a frame. Implementations
// filter to the classroom-relevant classes and drop detections below
// minConfidence.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, frame *Frame, minConfidence float64) ([]DesktopObject, error)
}

// FaceRecognizer detects faces and produces identity embeddings.
type FaceRecognizer interface {
	DetectFaces(ctx context.Context, frame *Frame) ([]Face, error)
}
