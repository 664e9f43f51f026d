package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/classlens/classlens/internal/aggregate"
	"github.com/classlens/classlens/internal/associate"
	"github.com/classlens/classlens/internal/behavior"
	"github.com/classlens/classlens/internal/detect"
	"github.com/classlens/classlens/internal/geometry"
	"github.com/classlens/classlens/internal/models"
	"github.com/classlens/classlens/internal/track"
)

// AnalyzeSubject follows one person, selected by an initial bounding
// box on the first sampled frame, through the video. Frames run
// strictly in order because each tracker update depends on the
// previous one. An initial box too small to track yields an empty
// report, not an error.
func (a *Analyzer) AnalyzeSubject(ctx context.Context, src FrameSource, initial geometry.Box, name string) (models.SubjectReport, error) {
	report := models.SubjectReport{
		Student:  name,
		Duration: src.Timestamp(src.FrameCount()),
	}
	summarizer := aggregate.SubjectSummarizer{Weights: a.cfg.Weights, Name: name}

	plan := a.cfg.Strategy.Plan(src.FrameCount())
	report.Track = models.TrackStats{
		TotalFrames:   src.FrameCount(),
		SampledFrames: len(plan),
	}
	if len(plan) == 0 {
		report.Summary = summarizer.Summarize(nil)
		return report, nil
	}

	first, err := src.ReadFrame(plan[0])
	if err != nil {
		return report, fmt.Errorf("reading frame %d: %w", plan[0], err)
	}

	cascade := track.NewCascade(a.cfg.Trackers, a.log)
	defer cascade.Close()

	if err := cascade.Start(first, initial); err != nil {
		if errors.Is(err, track.ErrUntrackableRegion) {
			a.log.Warn("subject region untrackable", "region", initial)
			report.Summary = summarizer.Summarize(nil)
			return report, nil
		}
		return report, err
	}
	report.Track.TrackerKind = trackerKind(cascade)

	results := make([]models.FrameResult, 0, len(plan))
	for i, frameIndex := range plan {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		frame := first
		if i > 0 {
			frame, err = src.ReadFrame(frameIndex)
			if err != nil {
				a.log.Warn("skipping unreadable frame", "frame", frameIndex, "error", err)
				results = append(results, models.FrameResult{
					FrameIndex: frameIndex,
					Timestamp:  src.Timestamp(frameIndex).Seconds(),
				})
				report.Track.FramesLost++
				a.reportProgress(i+1, len(plan))
				continue
			}
		}

		result, err := a.analyzeSubjectFrame(ctx, frame, cascade, i == 0, initial)
		if err != nil {
			return report, err
		}
		results = append(results, result)

		if result.StudentFound {
			report.Track.FramesTracked++
		} else {
			report.Track.FramesLost++
		}
		a.reportProgress(i+1, len(plan))
	}

	report.Frames = results
	report.Track.TrackerKind = trackerKind(cascade)
	report.Summary = summarizer.Summarize(results)
	return report, nil
}

// analyzeSubjectFrame advances the track one frame and classifies the
// subject if a pose overlaps the tracked or searched region.
func (a *Analyzer) analyzeSubjectFrame(ctx context.Context, frame *detect.Frame, cascade *track.Cascade, isFirst bool, initial geometry.Box) (models.FrameResult, error) {
	result := models.FrameResult{
		FrameIndex: frame.Index,
		Timestamp:  frame.Time.Seconds(),
	}
	p := a.params.Load()

	var region geometry.Box
	var tracked bool
	switch {
	case isFirst:
		// The caller vouches for the initial box on the first frame.
		region = initial.Clamp(frame.Width, frame.Height)
		tracked = true
	default:
		region, tracked = cascade.Step(frame)
	}

	people, err := a.pose.DetectPoses(ctx, frame)
	if err != nil {
		return result, fmt.Errorf("detecting poses in frame %d: %w", frame.Index, err)
	}

	matched := -1
	if tracked {
		matched = associate.MatchPose(region, people, associate.RegionMatchThreshold)
	} else {
		// Tracker miss: look for the subject near the last known box.
		search := cascade.SearchRegion(frame.Width, frame.Height)
		matched = associate.MatchPose(search, people, associate.RegionMatchThreshold)
		if matched >= 0 {
			cascade.Reacquire(frame, people[matched].Box)
		}
	}

	result.StudentFound = tracked || matched >= 0
	if matched < 0 {
		return result, nil
	}
	result.PoseFound = true

	person := people[matched]
	objects, err := a.objects.DetectObjects(ctx, frame, p.ObjectMinConfidence)
	if err != nil {
		return result, fmt.Errorf("detecting objects in frame %d: %w", frame.Index, err)
	}

	nearby := associate.OverlapObjects(person.Box, objects, associate.OverlapThreshold)
	front := frontObjects(person, objects, p)
	cls := behavior.Classify(person.Keypoints, front, p, behavior.SchemeEarEye)

	result.Behavior = &models.BehaviorResult{
		HeadPose:       cls.HeadPose,
		HandActivity:   cls.HandActivity,
		Behavior:       cls.Behavior,
		DesktopObjects: nearby,
		Box:            person.Box,
		Confidence:     person.Confidence,
	}
	return result, nil
}

// AnalyzeFaceSubject follows one person selected by enrolled face
// descriptors instead of a bounding box: each sampled frame is scanned
// for the best-matching face, then the pose overlapping that face is
// classified. A frame with a matched face but no overlapping pose
// still counts as the subject being present.
func (a *Analyzer) AnalyzeFaceSubject(ctx context.Context, src FrameSource, descriptors [][]float32, name string) (models.SubjectReport, error) {
	if a.faces == nil {
		return models.SubjectReport{}, errors.New("face recognizer not configured")
	}
	if len(descriptors) == 0 {
		return models.SubjectReport{}, errors.New("no face descriptors enrolled")
	}

	report := models.SubjectReport{
		Student:  name,
		Duration: src.Timestamp(src.FrameCount()),
	}
	summarizer := aggregate.SubjectSummarizer{Weights: a.cfg.Weights, Name: name}

	plan := a.cfg.Strategy.Plan(src.FrameCount())
	report.Track = models.TrackStats{
		TotalFrames:   src.FrameCount(),
		SampledFrames: len(plan),
		TrackerKind:   "face_match",
	}

	results := make([]models.FrameResult, 0, len(plan))
	for i, frameIndex := range plan {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		frame, err := src.ReadFrame(frameIndex)
		if err != nil {
			a.log.Warn("skipping unreadable frame", "frame", frameIndex, "error", err)
			results = append(results, models.FrameResult{
				FrameIndex: frameIndex,
				Timestamp:  src.Timestamp(frameIndex).Seconds(),
			})
			report.Track.FramesLost++
			a.reportProgress(i+1, len(plan))
			continue
		}

		result, err := a.analyzeFaceFrame(ctx, frame, descriptors)
		if err != nil {
			return report, err
		}
		results = append(results, result)

		if result.StudentFound {
			report.Track.FramesTracked++
		} else {
			report.Track.FramesLost++
		}
		a.reportProgress(i+1, len(plan))
	}

	report.Frames = results
	report.Summary = summarizer.Summarize(results)
	return report, nil
}

func (a *Analyzer) analyzeFaceFrame(ctx context.Context, frame *detect.Frame, descriptors [][]float32) (models.FrameResult, error) {
	result := models.FrameResult{
		FrameIndex: frame.Index,
		Timestamp:  frame.Time.Seconds(),
	}
	p := a.params.Load()

	faces, err := a.faces.DetectFaces(ctx, frame)
	if err != nil {
		return result, fmt.Errorf("detecting faces in frame %d: %w", frame.Index, err)
	}

	faceIdx, similarity := associate.MatchFace(faces, descriptors, associate.SimilarityThreshold)
	if faceIdx < 0 {
		return result, nil
	}
	result.StudentFound = true
	face := faces[faceIdx]

	people, err := a.pose.DetectPoses(ctx, frame)
	if err != nil {
		return result, fmt.Errorf("detecting poses in frame %d: %w", frame.Index, err)
	}

	matched := associate.MatchPose(face.Box, people, associate.FaceMatchThreshold)
	if matched < 0 {
		return result, nil
	}
	result.PoseFound = true

	person := people[matched]
	objects, err := a.objects.DetectObjects(ctx, frame, p.ObjectMinConfidence)
	if err != nil {
		return result, fmt.Errorf("detecting objects in frame %d: %w", frame.Index, err)
	}

	nearby := associate.OverlapObjects(person.Box, objects, associate.OverlapThreshold)
	front := frontObjects(person, objects, p)
	cls := behavior.Classify(person.Keypoints, front, p, behavior.SchemeEarEye)

	result.Behavior = &models.BehaviorResult{
		HeadPose:       cls.HeadPose,
		HandActivity:   cls.HandActivity,
		Behavior:       cls.Behavior,
		DesktopObjects: nearby,
		Box:            person.Box,
		Confidence:     person.Confidence,
		FaceSimilarity: similarity,
	}
	return result, nil
}

func trackerKind(c *track.Cascade) string {
	if name := c.ActiveName(); name != "" {
		return name
	}
	return track.StateFallbackSearch.String()
}
