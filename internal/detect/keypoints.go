package detect

// COCO keypoint indices. Every detected person carries exactly 17
// named points in this order.
const (
	KpNose = iota
	KpLeftEye
	KpRightEye
	KpLeftEar
	KpRightEar
	KpLeftShoulder
	KpRightShoulder
	KpLeftElbow
	KpRightElbow
	KpLeftWrist
	KpRightWrist
	KpLeftHip
	KpRightHip
	KpLeftKnee
	KpRightKnee
	KpLeftAnkle
	KpRightAnkle

	NumKeypoints = 17
)

// KeypointNames maps keypoint indices to their COCO names.
var KeypointNames = [NumKeypoints]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
}

// Keypoint is one 2D body landmark with its detection confidence.
type Keypoint struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Visible reports whether the keypoint confidence clears threshold.
func (k Keypoint) Visible(threshold float64) bool {
	return k.Confidence > threshold
}

// Keypoints is the full 17-point set for one person.
type Keypoints [NumKeypoints]Keypoint

// NewKeypoints builds a keypoint set from raw (x, y, confidence)
// triples in COCO order, filling in the point names. Missing trailing
// points are left at zero confidence.
func NewKeypoints(points [][3]float64) Keypoints {
	var kps Keypoints
	for i := range kps {
		kps[i].Name = KeypointNames[i]
		if i < len(points) {
			kps[i].X = points[i][0]
			kps[i].Y = points[i][1]
			kps[i].Confidence = points[i][2]
		}
	}
	return kps
}

func (k Keypoints) Nose() Keypoint          { return k[KpNose] }
func (k Keypoints) LeftEye() Keypoint       { return k[KpLeftEye] }
func (k Keypoints) RightEye() Keypoint      { return k[KpRightEye] }
func (k Keypoints) LeftEar() Keypoint       { return k[KpLeftEar] }
func (k Keypoints) RightEar() Keypoint      { return k[KpRightEar] }
func (k Keypoints) LeftShoulder() Keypoint  { return k[KpLeftShoulder] }
func (k Keypoints) RightShoulder() Keypoint { return k[KpRightShoulder] }
func (k Keypoints) LeftWrist() Keypoint     { return k[KpLeftWrist] }
func (k Keypoints) RightWrist() Keypoint    { return k[KpRightWrist] }

// VisibleCount returns how many points clear the visibility threshold.
func (k Keypoints) VisibleCount(threshold float64) int {
	n := 0
	for _, kp := range k {
		if kp.Visible(threshold) {
			n++
		}
	}
	return n
}

// MeanConfidence averages the confidence over all 17 points.
func (k Keypoints) MeanConfidence() float64 {
	sum := 0.0
	for _, kp := range k {
		sum += kp.Confidence
	}
	return sum / NumKeypoints
}
