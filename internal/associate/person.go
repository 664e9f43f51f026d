// Package associate links detections across modalities: a tracked
// region to the pose that belongs to it, a person to the desktop
// objects around them, and a face embedding to an enrolled identity.
// Matching is greedy IoU/similarity maximization; no global assignment
// is attempted because a frame rarely holds more than a few dozen
// subjects.
package associate

import (
	"github.com/classlens/classlens/internal/detect"
	"github.com/classlens/classlens/internal/geometry"
)

// Association thresholds. A tracked region accepts a loose match since
// the tracker box drifts; a face-anchored match is stricter because
// the face box is a small, precise region inside the person box.
const (
	RegionMatchThreshold = 0.1
	FaceMatchThreshold   = 0.3
)

// MatchPose returns the index of the detection whose box best overlaps
// region, or -1 when no detection reaches minIoU. Ties keep the
// earlier detection; the comparison is strict so the result is
// deterministic for any input order.
func MatchPose(region geometry.Box, detections []detect.PersonDetection, minIoU float64) int {
	best := -1
	bestIoU := 0.0
	for i, d := range detections {
		if iou := geometry.IoU(region, d.Box); iou > bestIoU {
			best = i
			bestIoU = iou
		}
	}
	if bestIoU < minIoU {
		return -1
	}
	return best
}
