// Package behavior classifies a subject's instantaneous behavior from
// pose keypoints. Everything here is a pure function of the keypoints
// and a Params snapshot; the only state is the Params store.
package behavior

import (
	"math"

	"github.com/classlens/classlens/internal/detect"
)

// HeadPose is the classified vertical head orientation.
type HeadPose string

const (
	LookingUp   HeadPose = "looking_up"
	LookingDown HeadPose = "looking_down"
	HeadNeutral HeadPose = "neutral"
	HeadUnknown HeadPose = "unknown"
)

// HandActivity is the classified hand state.
type HandActivity string

const (
	Writing     HandActivity = "writing"
	UsingPhone  HandActivity = "using_phone"
	Resting     HandActivity = "resting"
	HandNeutral HandActivity = "neutral"
	HandUnknown HandActivity = "unknown"
)

// Label is the composite behavior derived from head pose plus the
// objects in front of the subject.
type Label string

const (
	Listening      Label = "listening"
	UsingComputer  Label = "using_computer"
	PhoneUse       Label = "using_phone"
	ReadingWriting Label = "reading_writing"
	LabelNeutral   Label = "neutral"
	LabelUnknown   Label = "unknown"
)

// Scheme selects which pair of geometric rules classification uses.
// SchemeShoulder is the nose-vs-shoulder head rule with wrist-vs-nose
// hands; SchemeEarEye is the eye-line head rule with wrist-vs-shoulder
// hands.
type Scheme int

const (
	SchemeShoulder Scheme = iota
	SchemeEarEye
)

// Vertical-camera fallback thresholds for the eye/ear scheme, used
// when the two eyes share an x coordinate and no eye line can be fit.
const (
	earBelowEyesUpThreshold   = 15
	earAboveEyesDownThreshold = -5
)

// Result is one classification outcome.
type Result struct {
	HeadPose     HeadPose
	HandActivity HandActivity
	Behavior     Label
}

// Classify runs the selected scheme over one person's keypoints and
// derives the composite label from the objects in front of them.
// Missing required landmarks yield the explicit unknown sentinel,
// never a silently guessed neutral.
func Classify(kps detect.Keypoints, front []detect.DesktopObject, p Params, scheme Scheme) Result {
	var head HeadPose
	var hands HandActivity
	switch scheme {
	case SchemeEarEye:
		head = HeadPoseEarEye(kps, p)
		hands = HandActivityFromShoulders(kps, p)
	default:
		head = HeadPoseFromShoulders(kps, p)
		hands = HandActivityFromNose(kps, p)
	}
	return Result{
		HeadPose:     head,
		HandActivity: hands,
		Behavior:     Composite(head, front),
	}
}

// HeadPoseFromShoulders classifies head pose from the nose position
// relative to the shoulder midpoint. Requires a visible nose and both
// shoulders.
func HeadPoseFromShoulders(kps detect.Keypoints, p Params) HeadPose {
	nose := kps.Nose()
	ls := kps.LeftShoulder()
	rs := kps.RightShoulder()
	if !nose.Visible(p.VisibilityThreshold) || !ls.Visible(p.VisibilityThreshold) || !rs.Visible(p.VisibilityThreshold) {
		return HeadUnknown
	}

	shoulderY := (ls.Y + rs.Y) / 2
	diff := nose.Y - shoulderY

	switch {
	case diff < p.HeadUpThreshold:
		return LookingUp
	case diff > p.HeadDownThreshold:
		return LookingDown
	default:
		return HeadNeutral
	}
}

// HeadPoseEarEye classifies head pose from the signed offset of the
// ear relative to the line through both eyes. Requires both eyes and
// at least one ear; the left ear wins when both are visible because a
// corner-mounted camera usually sees the left side.
func HeadPoseEarEye(kps detect.Keypoints, p Params) HeadPose {
	le := kps.LeftEye()
	re := kps.RightEye()
	if !le.Visible(p.VisibilityThreshold) || !re.Visible(p.VisibilityThreshold) {
		return HeadUnknown
	}

	ear := kps.LeftEar()
	if !ear.Visible(p.VisibilityThreshold) {
		ear = kps.RightEar()
	}
	if !ear.Visible(p.VisibilityThreshold) {
		return HeadUnknown
	}

	if math.Abs(re.X-le.X) < 1e-6 {
		// Eyes horizontally coincident (head-on vertical camera):
		// fall back to comparing the ear against the eye midpoint.
		diff := ear.Y - (le.Y+re.Y)/2
		switch {
		case diff > earBelowEyesUpThreshold:
			return LookingUp
		case diff < earAboveEyesDownThreshold:
			return LookingDown
		default:
			return HeadNeutral
		}
	}

	// Eye line y = k*x + b; offset is positive when the ear sits above
	// the line (image y grows downward).
	k := (re.Y - le.Y) / (re.X - le.X)
	b := le.Y - k*le.X
	offset := (k*ear.X + b) - ear.Y

	switch {
	case offset < p.LookingUpThreshold:
		return LookingUp
	case offset > p.LookingDownThreshold:
		return LookingDown
	default:
		return HeadNeutral
	}
}

// HandActivityFromShoulders classifies hand activity from the mean
// visible wrist height relative to the mean visible shoulder height.
// Requires at least one visible wrist and one visible shoulder.
func HandActivityFromShoulders(kps detect.Keypoints, p Params) HandActivity {
	wristY, okW := meanVisibleY(p.VisibilityThreshold, kps.LeftWrist(), kps.RightWrist())
	shoulderY, okS := meanVisibleY(p.VisibilityThreshold, kps.LeftShoulder(), kps.RightShoulder())
	if !okW || !okS {
		return HandUnknown
	}

	diff := wristY - shoulderY
	switch {
	case diff > p.WritingThreshold:
		return Writing
	case diff < p.PhoneThreshold:
		return UsingPhone
	default:
		return HandNeutral
	}
}

// HandActivityFromNose classifies hand activity from one visible wrist
// relative to the nose. The left wrist is preferred when both are
// visible.
func HandActivityFromNose(kps detect.Keypoints, p Params) HandActivity {
	nose := kps.Nose()
	if !nose.Visible(p.VisibilityThreshold) {
		return HandUnknown
	}

	wrist := kps.LeftWrist()
	if !wrist.Visible(p.VisibilityThreshold) {
		wrist = kps.RightWrist()
	}
	if !wrist.Visible(p.VisibilityThreshold) {
		return HandUnknown
	}

	diff := wrist.Y - nose.Y
	switch {
	case diff > p.WritingThreshold:
		return Writing
	case diff < p.PhoneThreshold:
		return UsingPhone
	default:
		return Resting
	}
}

// Composite maps a head pose and the objects in front of the subject
// to a single behavior label: looking up means listening; looking down
// is disambiguated by whether a laptop or a phone sits on the desk.
// An unknown head pose stays unknown rather than inflating the neutral
// bucket.
func Composite(head HeadPose, front []detect.DesktopObject) Label {
	switch head {
	case LookingUp:
		return Listening
	case LookingDown:
		hasLaptop := false
		hasPhone := false
		for _, obj := range front {
			switch obj.Class {
			case detect.ClassLaptop:
				hasLaptop = true
			case detect.ClassCellPhone:
				hasPhone = true
			}
		}
		switch {
		case hasLaptop:
			return UsingComputer
		case hasPhone:
			return PhoneUse
		default:
			return ReadingWriting
		}
	case HeadUnknown:
		return LabelUnknown
	default:
		return LabelNeutral
	}
}

func meanVisibleY(threshold float64, kps ...detect.Keypoint) (float64, bool) {
	sum := 0.0
	n := 0
	for _, kp := range kps {
		if kp.Visible(threshold) {
			sum += kp.Y
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
