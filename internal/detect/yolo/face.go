package yolo

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/classlens/classlens/internal/detect"
	"github.com/classlens/classlens/internal/geometry"
)

const faceScoreThreshold = 0.7

// FaceRecognizer pairs a YuNet face detector with an SFace embedding
// model. Embeddings are 128-dimensional float vectors compared by
// cosine similarity.
type FaceRecognizer struct {
	mu         sync.Mutex
	detector   gocv.FaceDetectorYN
	recognizer gocv.FaceRecognizerSF
}

// NewFaceRecognizer loads the detector and recognizer ONNX models.
func NewFaceRecognizer(detectorPath, recognizerPath string) (*FaceRecognizer, error) {
	detector := gocv.NewFaceDetectorYN(detectorPath, "", image.Pt(inputSize, inputSize))
	recognizer := gocv.NewFaceRecognizerSF(recognizerPath, "")
	return &FaceRecognizer{detector: detector, recognizer: recognizer}, nil
}

// DetectFaces finds faces in the frame and computes their embeddings.
func (f *FaceRecognizer) DetectFaces(ctx context.Context, frame *detect.Frame) ([]detect.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := gocv.IMDecode(frame.JPEG, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("yolo: decoding frame %d: %w", frame.Index, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("yolo: frame %d decoded empty", frame.Index)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	detections := gocv.NewMat()
	defer detections.Close()
	f.detector.Detect(img, &detections)

	var faces []detect.Face
	for row := 0; row < detections.Rows(); row++ {
		// YuNet rows: x, y, w, h, 10 landmark values, score.
		score := detections.GetFloatAt(row, 14)
		if score < faceScoreThreshold {
			continue
		}

		faceRow := detections.RowRange(row, row+1)
		aligned := gocv.NewMat()
		f.recognizer.AlignCrop(img, faceRow, &aligned)

		feature := gocv.NewMat()
		f.recognizer.Feature(aligned, &feature)

		embedding, err := feature.DataPtrFloat32()
		if err != nil {
			faceRow.Close()
			aligned.Close()
			feature.Close()
			return nil, fmt.Errorf("yolo: reading face feature: %w", err)
		}
		out := make([]float32, len(embedding))
		copy(out, embedding)

		box := geometry.FromXYWH(
			int(detections.GetFloatAt(row, 0)),
			int(detections.GetFloatAt(row, 1)),
			int(detections.GetFloatAt(row, 2)),
			int(detections.GetFloatAt(row, 3)),
		).Clamp(img.Cols(), img.Rows())

		faces = append(faces, detect.Face{Box: box, Embedding: out})

		faceRow.Close()
		aligned.Close()
		feature.Close()
	}
	return faces, nil
}

// Close releases both models.
func (f *FaceRecognizer) Close() error {
	if err := f.detector.Close(); err != nil {
		return err
	}
	return f.recognizer.Close()
}
