package behavior

import "sync/atomic"

// Params holds the geometric thresholds the classifier reads on every
// call. All vertical thresholds are in pixels, positive y pointing
// down (image coordinates).
type Params struct {
	// Shoulder-relative head pose: nose.y minus the shoulder midpoint y.
	HeadUpThreshold   float64 `json:"head_up_threshold"`
	HeadDownThreshold float64 `json:"head_down_threshold"`

	// Hand activity: wrist y relative to the shoulder mean (or nose).
	WritingThreshold float64 `json:"writing_threshold"`
	PhoneThreshold   float64 `json:"phone_threshold"`

	// Eye/ear-line head pose: signed ear offset from the eye line.
	LookingUpThreshold   float64 `json:"looking_up_threshold"`
	LookingDownThreshold float64 `json:"looking_down_threshold"`

	// Minimum object-detection confidence for desktop objects.
	ObjectMinConfidence float64 `json:"object_min_confidence"`

	// Minimum keypoint confidence to count a landmark as visible.
	VisibilityThreshold float64 `json:"visibility_threshold"`
}

// DefaultParams returns the tuned classroom defaults: a normal seated
// posture counts as looking up, only a pronounced drop of the nose
// counts as looking down.
func DefaultParams() Params {
	return Params{
		HeadUpThreshold:      2,
		HeadDownThreshold:    8,
		WritingThreshold:     30,
		PhoneThreshold:       -10,
		LookingUpThreshold:   -2,
		LookingDownThreshold: 0,
		ObjectMinConfidence:  0.2,
		VisibilityThreshold:  0.3,
	}
}

// Store holds the process-wide parameter snapshot. Updates replace the
// whole struct atomically; readers always see a complete, consistent
// set. Already-recorded results are never reclassified.
type Store struct {
	current atomic.Pointer[Params]
}

// NewStore creates a store seeded with p.
func NewStore(p Params) *Store {
	s := &Store{}
	s.current.Store(&p)
	return s
}

// Load returns the current parameter snapshot by value.
func (s *Store) Load() Params {
	return *s.current.Load()
}

// Update swaps in a new parameter set. It affects subsequent
// classification calls only.
func (s *Store) Update(p Params) {
	s.current.Store(&p)
}
