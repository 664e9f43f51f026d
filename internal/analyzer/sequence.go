package analyzer

import (
	"context"
	"fmt"
	"sync"

	"github.com/classlens/classlens/internal/aggregate"
	"github.com/classlens/classlens/internal/behavior"
	"github.com/classlens/classlens/internal/detect"
	"github.com/classlens/classlens/internal/models"
)

// AnalyzeSequence runs the class-wide analysis over a whole video:
// frames are chosen by the sampling strategy, analyzed on a worker
// pool, and aggregated into a class report. Frame order is preserved
// in the report regardless of worker scheduling. Frames that cannot be
// read are recorded as empty results and counted against nothing.
func (a *Analyzer) AnalyzeSequence(ctx context.Context, src FrameSource) (models.ClassReport, error) {
	report := models.ClassReport{Duration: src.Timestamp(src.FrameCount())}

	plan := a.cfg.Strategy.Plan(src.FrameCount())
	if len(plan) == 0 {
		report.Summary = aggregate.ClassSummarizer{Weights: a.cfg.Weights}.Summarize(nil)
		return report, nil
	}
	a.log.Info("analyzing sequence",
		"total_frames", src.FrameCount(),
		"sampled_frames", len(plan),
		"workers", a.cfg.Workers)

	results := make([]models.ClassFrameResult, len(plan))
	done := 0

	for _, batch := range a.cfg.Strategy.Batches(plan) {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		// Unreadable frames keep their (empty) slot so results stay
		// aligned with the plan.
		var frames []*detect.Frame
		var slots []int
		for _, frameIndex := range batch {
			slot := planIndex(plan, frameIndex)
			results[slot] = models.ClassFrameResult{
				FrameIndex: frameIndex,
				Timestamp:  src.Timestamp(frameIndex).Seconds(),
			}
			frame, err := src.ReadFrame(frameIndex)
			if err != nil {
				a.log.Warn("skipping unreadable frame", "frame", frameIndex, "error", err)
				continue
			}
			frames = append(frames, frame)
			slots = append(slots, slot)
		}

		if batcher, ok := a.pose.(detect.BatchPoseEstimator); ok && len(frames) > 1 {
			if err := a.analyzeBatch(ctx, batcher, frames, slots, results); err != nil {
				return report, err
			}
		} else if err := a.analyzePooled(ctx, frames, slots, results); err != nil {
			return report, err
		}

		done += len(batch)
		a.reportProgress(done, len(plan))
	}

	report.Frames = results
	report.Summary = aggregate.ClassSummarizer{Weights: a.cfg.Weights}.Summarize(results)
	return report, nil
}

// analyzePooled fans frames out to the worker pool, writing each
// result into its plan slot so output order matches the plan.
func (a *Analyzer) analyzePooled(ctx context.Context, frames []*detect.Frame, slots []int, results []models.ClassFrameResult) error {
	if len(frames) == 0 {
		return nil
	}

	type workItem struct {
		slot  int
		frame *detect.Frame
	}

	workChan := make(chan workItem, len(frames))
	errChan := make(chan error, len(frames))

	var wg sync.WaitGroup
	workers := a.cfg.Workers
	if workers > len(frames) {
		workers = len(frames)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				result, err := a.AnalyzeFrame(ctx, work.frame)
				if err != nil {
					errChan <- err
					continue
				}
				results[work.slot] = result
			}
		}()
	}

	for i, frame := range frames {
		workChan <- workItem{slot: slots[i], frame: frame}
	}
	close(workChan)
	wg.Wait()
	close(errChan)

	for err := range errChan {
		return err
	}
	return nil
}

// analyzeBatch sends the readable frames to a batch-capable pose
// estimator in one call, then classifies per frame.
func (a *Analyzer) analyzeBatch(ctx context.Context, batcher detect.BatchPoseEstimator, frames []*detect.Frame, slots []int, results []models.ClassFrameResult) error {
	poses, err := batcher.DetectPoseBatch(ctx, frames)
	if err != nil {
		return fmt.Errorf("batch pose detection: %w", err)
	}
	if len(poses) != len(frames) {
		return fmt.Errorf("batch pose detection returned %d results for %d frames", len(poses), len(frames))
	}

	p := a.params.Load()
	for i, frame := range frames {
		result := models.ClassFrameResult{
			FrameIndex: frame.Index,
			Timestamp:  frame.Time.Seconds(),
		}
		if len(poses[i]) > 0 {
			objects, err := a.objects.DetectObjects(ctx, frame, p.ObjectMinConfidence)
			if err != nil {
				return fmt.Errorf("detecting objects in frame %d: %w", frame.Index, err)
			}
			for _, person := range poses[i] {
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
		}
		results[slots[i]] = result
	}
	return nil
}

// planIndex locates a frame index's position in the (strictly
// ascending) plan by binary search.
func planIndex(plan []int, frameIndex int) int {
	lo, hi := 0, len(plan)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if plan[mid] < frameIndex {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
