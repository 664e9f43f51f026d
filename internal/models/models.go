// Package models holds the result types shared by the analyzer, the
// aggregators and the storage backends. Field names follow the JSON
// the report consumers already parse.
package models

import (
	"time"

	"github.com/classlens/classlens/internal/behavior"
	"github.com/classlens/classlens/internal/detect"
	"github.com/classlens/classlens/internal/geometry"
)

// BehaviorResult is one classified person in one frame.
type BehaviorResult struct {
	HeadPose       behavior.HeadPose      `json:"head_pose"`
	HandActivity   behavior.HandActivity  `json:"hand_activity"`
	Behavior       behavior.Label         `json:"behavior"`
	DesktopObjects []detect.DesktopObject `json:"desktop_objects,omitempty"`
	Box            geometry.Box           `json:"bbox"`
	Confidence     float64                `json:"confidence"`
	FaceSimilarity float64                `json:"face_similarity,omitempty"`
}

// FrameResult is the per-frame outcome of a single-subject analysis.
// StudentFound reports that the subject was located (tracked box or
// matched face); PoseFound additionally requires a pose detection
// overlapping that location.
type FrameResult struct {
	FrameIndex   int             `json:"frame_index"`
	Timestamp    float64         `json:"timestamp"`
	StudentFound bool            `json:"student_found"`
	PoseFound    bool            `json:"pose_found"`
	Behavior     *BehaviorResult `json:"behavior,omitempty"`
}

// ClassFrameResult is the per-frame outcome of a class-wide analysis:
// every detected person, classified.
type ClassFrameResult struct {
	FrameIndex int              `json:"frame_index"`
	Timestamp  float64          `json:"timestamp"`
	Behaviors  []BehaviorResult `json:"behaviors"`
}

// TrackStats summarizes how the subject tracker behaved over a run.
type TrackStats struct {
	TotalFrames   int    `json:"total_frames"`
	SampledFrames int    `json:"sampled_frames"`
	FramesTracked int    `json:"frames_tracked"`
	FramesLost    int    `json:"frames_lost"`
	TrackerKind   string `json:"tracker_kind"`
}

// Summary is the aggregated outcome of a full analysis run.
type Summary struct {
	// Counts of composite behavior labels over all classified instances.
	BehaviorStats map[string]int `json:"behavior_stats"`

	// Percentage views of the same distributions. Class-wide summaries
	// divide by classified instances; per-subject summaries divide by
	// frames where the subject was found.
	BehaviorPercentages  map[string]float64 `json:"behavior_percentages"`
	HeadPercentages      map[string]float64 `json:"head_pose_percentages"`
	HandPercentages      map[string]float64 `json:"hand_activity_percentages"`
	CompositePercentages map[string]float64 `json:"composite_percentages"`
	ObjectPercentages    map[string]float64 `json:"object_percentages"`

	AttentionScore      float64 `json:"attention_score"`
	RecognitionAccuracy float64 `json:"recognition_accuracy,omitempty"`
	AvgStudentCount     float64 `json:"avg_student_count,omitempty"`
	TotalFrames         int     `json:"total_frames"`

	// Estimated minutes of video each composite label accounts for.
	BehaviorMinutes map[string]float64 `json:"behavior_minutes,omitempty"`

	Conclusions []string `json:"conclusions"`
}

// SubjectReport bundles everything a single-subject run produces.
type SubjectReport struct {
	Student  string        `json:"student,omitempty"`
	Video    string        `json:"video"`
	Duration time.Duration `json:"duration"`
	Frames   []FrameResult `json:"frames"`
	Track    TrackStats    `json:"track_stats"`
	Summary  Summary       `json:"summary"`
}

// ClassReport bundles everything a class-wide run produces.
type ClassReport struct {
	Video    string             `json:"video"`
	Duration time.Duration      `json:"duration"`
	Frames   []ClassFrameResult `json:"frames"`
	Summary  Summary            `json:"summary"`
}
