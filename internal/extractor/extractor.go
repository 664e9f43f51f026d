// Package extractor reads video files and hands individual frames to
// the pipeline as encoded JPEG. Decoding happens through OpenCV, so
// any container ffmpeg can read works here too.
package extractor

import (
	"fmt"
	"os"
	"time"

	"gocv.io/x/gocv"

	"github.com/classlens/classlens/internal/detect"
)

// Video is an open video file with random frame access. Not safe for
// concurrent use; readers share one decoder position.
type Video struct {
	path   string
	cap    *gocv.VideoCapture
	fps    float64
	total  int
	width  int
	height int
}

// Open opens a video file and reads its stream properties.
func Open(path string) (*Video, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file %q: %w", path, err)
	}

	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening video %q: %w", path, err)
	}

	v := &Video{
		path:   path,
		cap:    cap,
		fps:    cap.Get(gocv.VideoCaptureFPS),
		total:  int(cap.Get(gocv.VideoCaptureFrameCount)),
		width:  int(cap.Get(gocv.VideoCaptureFrameWidth)),
		height: int(cap.Get(gocv.VideoCaptureFrameHeight)),
	}
	if v.total <= 0 {
		cap.Close()
		return nil, fmt.Errorf("video %q reports no frames", path)
	}
	if v.fps <= 0 {
		// Some containers omit the rate; assume the common default so
		// timestamps stay monotonic.
		v.fps = 30
	}
	return v, nil
}

// Path returns the video file path.
func (v *Video) Path() string { return v.path }

// FPS returns the stream frame rate.
func (v *Video) FPS() float64 { return v.fps }

// FrameCount returns the number of frames in the stream.
func (v *Video) FrameCount() int { return v.total }

// Size returns the frame dimensions in pixels.
func (v *Video) Size() (width, height int) { return v.width, v.height }

// Duration returns the video length derived from frame count and rate.
func (v *Video) Duration() time.Duration {
	return time.Duration(float64(v.total) / v.fps * float64(time.Second))
}

// Timestamp converts a frame index to its position in the video.
func (v *Video) Timestamp(index int) time.Duration {
	return time.Duration(float64(index) / v.fps * float64(time.Second))
}

// ReadFrame seeks to index and returns that frame as JPEG.
func (v *Video) ReadFrame(index int) (*detect.Frame, error) {
	if index < 0 || index >= v.total {
		return nil, fmt.Errorf("frame index %d out of range [0,%d)", index, v.total)
	}
	if !v.cap.Set(gocv.VideoCapturePosFrames, float64(index)) {
		return nil, fmt.Errorf("seeking to frame %d in %q", index, v.path)
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if !v.cap.Read(&mat) || mat.Empty() {
		return nil, fmt.Errorf("reading frame %d from %q", index, v.path)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encoding frame %d: %w", index, err)
	}
	defer buf.Close()

	jpeg := make([]byte, len(buf.GetBytes()))
	copy(jpeg, buf.GetBytes())

	return &detect.Frame{
		Index:  index,
		Time:   v.Timestamp(index),
		Width:  v.width,
		Height: v.height,
		JPEG:   jpeg,
	}, nil
}

// ReadFrames reads the given frame indices in order.
func (v *Video) ReadFrames(indices []int) ([]*detect.Frame, error) {
	frames := make([]*detect.Frame, 0, len(indices))
	for _, idx := range indices {
		frame, err := v.ReadFrame(idx)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// Close releases the underlying decoder.
func (v *Video) Close() error {
	return v.cap.Close()
}
