// Package sampling decides which frames of a video the pipeline
// analyzes. Short clips are processed exhaustively; longer videos are
// sampled at a fixed wall-clock interval so analysis cost grows with
// duration, not frame rate.
package sampling

import "time"

// Defaults. A clip at or under ShortSequenceLimit frames is analyzed
// frame by frame.
const (
	DefaultFPS                = 30
	DefaultInterval           = 10 * time.Second
	DefaultShortSequenceLimit = 300
	DefaultBatchSize          = 1
)

// Strategy controls frame selection and batch grouping.
type Strategy struct {
	// FPS is the video frame rate used to convert Interval to a frame
	// stride. Zero or negative falls back to DefaultFPS.
	FPS float64

	// Interval is the wall-clock spacing between sampled frames for
	// long videos.
	Interval time.Duration

	// ShortSequenceLimit is the frame count at or below which every
	// frame is sampled.
	ShortSequenceLimit int

	// BatchSize groups sampled frames for detectors that support batch
	// inference. Zero or negative means one frame per batch.
	BatchSize int
}

// Default returns the standard classroom strategy: every frame for
// clips up to 300 frames, one frame every 10 seconds beyond that.
func Default() Strategy {
	return Strategy{
		FPS:                DefaultFPS,
		Interval:           DefaultInterval,
		ShortSequenceLimit: DefaultShortSequenceLimit,
		BatchSize:          DefaultBatchSize,
	}
}

// Stride returns the frame step between samples for a long video,
// never less than 1.
func (s Strategy) Stride() int {
	fps := s.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	stride := int(fps * s.Interval.Seconds())
	if stride < 1 {
		stride = 1
	}
	return stride
}

// Plan returns the ascending frame indices to analyze out of total
// frames. Frame 0 is always included for a non-empty video.
func (s Strategy) Plan(total int) []int {
	if total <= 0 {
		return nil
	}

	limit := s.ShortSequenceLimit
	if limit <= 0 {
		limit = DefaultShortSequenceLimit
	}
	if total <= limit {
		indices := make([]int, total)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}

	stride := s.Stride()
	indices := make([]int, 0, total/stride+1)
	for i := 0; i < total; i += stride {
		indices = append(indices, i)
	}
	return indices
}

// Batches splits sampled indices into groups of the strategy's batch
// size, preserving order. The final batch may be short.
func (s Strategy) Batches(indices []int) [][]int {
	size := s.BatchSize
	if size < 1 {
		size = 1
	}
	var batches [][]int
	for start := 0; start < len(indices); start += size {
		end := start + size
		if end > len(indices) {
			end = len(indices)
		}
		batches = append(batches, indices[start:end])
	}
	return batches
}
