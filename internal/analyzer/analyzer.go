// Package analyzer drives the analysis pipeline: it pulls frames from
// a source, runs the detectors, associates detections and classifies
// behavior, then hands per-frame results to the aggregators.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/classlens/classlens/internal/aggregate"
	"github.com/classlens/classlens/internal/associate"
	"github.com/classlens/classlens/internal/behavior"
	"github.com/classlens/classlens/internal/detect"
	"github.com/classlens/classlens/internal/models"
	"github.com/classlens/classlens/internal/sampling"
	"github.com/classlens/classlens/internal/track"
)

const defaultWorkers = 4

// FrameSource provides random access to a video's frames. The
// extractor's Video satisfies it; tests substitute synthetic sources.
type FrameSource interface {
	FrameCount() int
	FPS() float64
	Size() (width, height int)
	Timestamp(index int) time.Duration
	ReadFrame(index int) (*detect.Frame, error)
}

// Config tunes an Analyzer. Zero values fall back to the defaults.
type Config struct {
	Strategy sampling.Strategy
	Workers  int
	Weights  aggregate.Weights

	// Trackers is the backend cascade for subject runs, tried in order.
	// Empty means pure region search.
	Trackers []track.Factory

	// Progress, when set, is called after every analyzed frame.
	Progress func(done, total int)
}

// Analyzer is the pipeline entry point. It is safe for concurrent use
// as long as the detectors behind it are.
type Analyzer struct {
	pose    detect.PoseEstimator
	objects detect.ObjectDetector
	faces   detect.FaceRecognizer
	params  *behavior.Store
	cfg     Config
	log     *slog.Logger
}

// New builds an Analyzer. The face recognizer may be nil when no
// face-matched runs are needed.
func New(pose detect.PoseEstimator, objects detect.ObjectDetector, faces detect.FaceRecognizer, params *behavior.Store, cfg Config, log *slog.Logger) *Analyzer {
	if params == nil {
		params = behavior.NewStore(behavior.DefaultParams())
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Strategy == (sampling.Strategy{}) {
		cfg.Strategy = sampling.Default()
	}
	if cfg.Weights == nil {
		cfg.Weights = aggregate.DefaultWeights()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		pose:    pose,
		objects: objects,
		faces:   faces,
		params:  params,
		cfg:     cfg,
		log:     log,
	}
}

// Params returns the live parameter store.
func (a *Analyzer) Params() *behavior.Store { return a.params }

// AnalyzeFrame runs the class-wide analysis on one frame: every
// detected person is classified against the objects in front of them.
func (a *Analyzer) AnalyzeFrame(ctx context.Context, frame *detect.Frame) (models.ClassFrameResult, error) {
	result := models.ClassFrameResult{
		FrameIndex: frame.Index,
		Timestamp:  frame.Time.Seconds(),
	}
	p := a.params.Load()

	people, err := a.pose.DetectPoses(ctx, frame)
	if err != nil {
		return result, fmt.Errorf("detecting poses in frame %d: %w", frame.Index, err)
	}
	if len(people) == 0 {
		return result, nil
	}

	objects, err := a.objects.DetectObjects(ctx, frame, p.ObjectMinConfidence)
	if err != nil {
		return result, fmt.Errorf("detecting objects in frame %d: %w", frame.Index, err)
	}

	for _, person := range people {
		front := frontObjects(person, objects, p)
		cls := behavior.Classify(person.Keypoints, front, p, behavior.SchemeShoulder)
		result.Behaviors = append(result.Behaviors, models.BehaviorResult{
			HeadPose:       cls.HeadPose,
			HandActivity:   cls.HandActivity,
			Behavior:       cls.Behavior,
			DesktopObjects: front,
			Box:            person.Box,
			Confidence:     person.Confidence,
		})
	}
	return result, nil
}

// frontObjects returns the objects in front of the person, or nil when
// the nose is not visible and the spatial test cannot be anchored.
func frontObjects(person detect.PersonDetection, objects []detect.DesktopObject, p behavior.Params) []detect.DesktopObject {
	nose := person.Keypoints.Nose()
	if !nose.Visible(p.VisibilityThreshold) {
		return nil
	}
	return associate.ObjectsInFront(person.Box, nose.Y, objects)
}

func (a *Analyzer) reportProgress(done, total int) {
	if a.cfg.Progress != nil {
		a.cfg.Progress(done, total)
	}
}
