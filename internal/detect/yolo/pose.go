package yolo

import (
	"context"
	"image"

	"gocv.io/x/gocv"

	"github.com/classlens/classlens/internal/detect"
)

// PoseEstimator detects people and their keypoints with a YOLOv8 pose
// model. The output tensor is [1, 56, anchors]: 4 box channels, 1
// person confidence, then 17 keypoints as (x, y, confidence).
type PoseEstimator struct {
	net *net
}

// NewPoseEstimator loads a YOLOv8 pose ONNX model, typically
// yolov8n-pose.onnx.
func NewPoseEstimator(modelPath string) (*PoseEstimator, error) {
	n, err := loadONNX(modelPath)
	if err != nil {
		return nil, err
	}
	return &PoseEstimator{net: n}, nil
}

// DetectPoses runs the model over one frame.
func (p *PoseEstimator) DetectPoses(ctx context.Context, frame *detect.Frame) ([]detect.PersonDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, scaleX, scaleY, err := p.net.forward(frame)
	if err != nil {
		return nil, err
	}

	var rects []image.Rectangle
	var scores []float32
	var anchors []int
	for anchor := 0; anchor < anchorCount; anchor++ {
		score := at(data, 4, anchor)
		if score < poseThreshold {
			continue
		}
		box := boxAt(data, anchor, scaleX, scaleY).Clamp(frame.Width, frame.Height)
		rects = append(rects, toImageRect(box))
		scores = append(scores, score)
		anchors = append(anchors, anchor)
	}

	var people []detect.PersonDetection
	for _, idx := range gocv.NMSBoxes(rects, scores, poseThreshold, nmsThreshold) {
		anchor := anchors[idx]
		points := make([][3]float64, detect.NumKeypoints)
		for k := 0; k < detect.NumKeypoints; k++ {
			base := 5 + k*3
			points[k] = [3]float64{
				float64(at(data, base, anchor)) * scaleX,
				float64(at(data, base+1, anchor)) * scaleY,
				float64(at(data, base+2, anchor)),
			}
		}
		people = append(people, detect.PersonDetection{
			Box:        fromImageRect(rects[idx]),
			Keypoints:  detect.NewKeypoints(points),
			Confidence: float64(scores[idx]),
		})
	}
	return people, nil
}

// DetectPoseBatch runs the frames through the model one by one. The
// net is single-threaded, so the batch form exists for interface
// compatibility rather than speed.
func (p *PoseEstimator) DetectPoseBatch(ctx context.Context, frames []*detect.Frame) ([][]detect.PersonDetection, error) {
	out := make([][]detect.PersonDetection, len(frames))
	for i, frame := range frames {
		people, err := p.DetectPoses(ctx, frame)
		if err != nil {
			return nil, err
		}
		out[i] = people
	}
	return out, nil
}

// Close releases the network.
func (p *PoseEstimator) Close() error {
	return p.net.close()
}
