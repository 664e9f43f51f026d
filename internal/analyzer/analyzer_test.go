package analyzer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/classlens/classlens/internal/behavior"
	"github.com/classlens/classlens/internal/detect"
	"github.com/classlens/classlens/internal/geometry"
	"github.com/classlens/classlens/internal/sampling"
)

// fakeSource serves synthetic 640x480 frames at 30fps.
type fakeSource struct {
	total int
	reads int
}

func (f *fakeSource) FrameCount() int        { return f.total }
func (f *fakeSource) FPS() float64           { return 30 }
func (f *fakeSource) Size() (int, int)       { return 640, 480 }
func (f *fakeSource) Timestamp(i int) time.Duration {
	return time.Duration(float64(i) / 30 * float64(time.Second))
}

func (f *fakeSource) ReadFrame(index int) (*detect.Frame, error) {
	f.reads++
	return &detect.Frame{
		Index:  index,
		Time:   f.Timestamp(index),
		Width:  640,
		Height: 480,
	}, nil
}

// fakePose returns the scripted detections for each frame index.
type fakePose struct {
	byFrame map[int][]detect.PersonDetection
	batches int
}

func (f *fakePose) DetectPoses(_ context.Context, frame *detect.Frame) ([]detect.PersonDetection, error) {
	return f.byFrame[frame.Index], nil
}

func (f *fakePose) DetectPoseBatch(ctx context.Context, frames []*detect.Frame) ([][]detect.PersonDetection, error) {
	f.batches++
	out := make([][]detect.PersonDetection, len(frames))
	for i, frame := range frames {
		out[i] = f.byFrame[frame.Index]
	}
	return out, nil
}

type fakeObjects struct {
	objects []detect.DesktopObject
}

func (f *fakeObjects) DetectObjects(_ context.Context, _ *detect.Frame, minConfidence float64) ([]detect.DesktopObject, error) {
	var out []detect.DesktopObject
	for _, obj := range f.objects {
		if obj.Confidence >= minConfidence {
			out = append(out, obj)
		}
	}
	return out, nil
}

type fakeFaces struct {
	byFrame map[int][]detect.Face
}

func (f *fakeFaces) DetectFaces(_ context.Context, frame *detect.Frame) ([]detect.Face, error) {
	return f.byFrame[frame.Index], nil
}

// personAt builds a seated person in the given box, looking down with
// visible shoulders, eyes, ears and a writing-height left wrist.
func personAt(box geometry.Box) detect.PersonDetection {
	cx := float64(box.X1+box.X2) / 2
	top := float64(box.Y1)
	points := make([][3]float64, detect.NumKeypoints)
	points[detect.KpNose] = [3]float64{cx, top + 40, 0.9}
	points[detect.KpLeftEye] = [3]float64{cx - 10, top + 30, 0.9}
	points[detect.KpRightEye] = [3]float64{cx + 10, top + 30, 0.9}
	points[detect.KpLeftEar] = [3]float64{cx - 20, top + 25, 0.9}
	points[detect.KpLeftShoulder] = [3]float64{cx - 30, top + 30, 0.9}
	points[detect.KpRightShoulder] = [3]float64{cx + 30, top + 30, 0.9}
	points[detect.KpLeftWrist] = [3]float64{cx - 20, top + 80, 0.9}
	return detect.PersonDetection{
		Box:        box,
		Keypoints:  detect.NewKeypoints(points),
		Confidence: 0.85,
	}
}

func laptopBelow(person geometry.Box) detect.DesktopObject {
	cx, _ := person.Center()
	return detect.DesktopObject{
		Class:      detect.ClassLaptop,
		Confidence: 0.8,
		Box:        geometry.Rect(cx-40, person.Y2-60, cx+40, person.Y2+20),
	}
}

func newTestAnalyzer(pose detect.PoseEstimator, objects detect.ObjectDetector, faces detect.FaceRecognizer) *Analyzer {
	cfg := Config{
		Strategy: sampling.Strategy{FPS: 30, Interval: time.Second, ShortSequenceLimit: 300, BatchSize: 1},
		Workers:  2,
	}
	return New(pose, objects, faces, nil, cfg, nil)
}

func TestAnalyzeFrame_ClassifiesEveryPerson(t *testing.T) {
	boxA := geometry.Rect(100, 100, 220, 400)
	boxB := geometry.Rect(400, 100, 520, 400)
	pose := &fakePose{byFrame: map[int][]detect.PersonDetection{
		0: {personAt(boxA), personAt(boxB)},
	}}
	objects := &fakeObjects{objects: []detect.DesktopObject{laptopBelow(boxA)}}
	a := newTestAnalyzer(pose, objects, nil)

	frame := &detect.Frame{Index: 0, Width: 640, Height: 480}
	result, err := a.AnalyzeFrame(context.Background(), frame)
	if err != nil {
		t.Fatalf("AnalyzeFrame: %v", err)
	}
	if len(result.Behaviors) != 2 {
		t.Fatalf("got %d behaviors, want 2", len(result.Behaviors))
	}

	// Person A looks down at a laptop, person B at an empty desk.
	if got := result.Behaviors[0].Behavior; got != behavior.UsingComputer {
		t.Errorf("person A behavior = %v, want using_computer", got)
	}
	if got := result.Behaviors[1].Behavior; got != behavior.ReadingWriting {
		t.Errorf("person B behavior = %v, want reading_writing", got)
	}
}

func TestAnalyzeFrame_LowConfidenceObjectsDropped(t *testing.T) {
	box := geometry.Rect(100, 100, 220, 400)
	weak := laptopBelow(box)
	weak.Confidence = 0.1 // below the 0.2 default floor
	pose := &fakePose{byFrame: map[int][]detect.PersonDetection{0: {personAt(box)}}}
	a := newTestAnalyzer(pose, &fakeObjects{objects: []detect.DesktopObject{weak}}, nil)

	result, err := a.AnalyzeFrame(context.Background(), &detect.Frame{Index: 0, Width: 640, Height: 480})
	if err != nil {
		t.Fatalf("AnalyzeFrame: %v", err)
	}
	if got := result.Behaviors[0].Behavior; got != behavior.ReadingWriting {
		t.Errorf("behavior = %v, want reading_writing without the weak laptop", got)
	}
}

func TestAnalyzeSequence_PreservesFrameOrder(t *testing.T) {
	src := &fakeSource{total: 20}
	box := geometry.Rect(100, 100, 220, 400)
	byFrame := make(map[int][]detect.PersonDetection)
	for i := 0; i < 20; i++ {
		byFrame[i] = []detect.PersonDetection{personAt(box)}
	}
	a := newTestAnalyzer(&fakePose{byFrame: byFrame}, &fakeObjects{}, nil)

	report, err := a.AnalyzeSequence(context.Background(), src)
	if err != nil {
		t.Fatalf("AnalyzeSequence: %v", err)
	}
	if len(report.Frames) != 20 {
		t.Fatalf("got %d frames, want 20", len(report.Frames))
	}
	for i, fr := range report.Frames {
		if fr.FrameIndex != i {
			t.Fatalf("frame %d has index %d, out of order", i, fr.FrameIndex)
		}
	}
	if report.Summary.TotalFrames != 20 {
		t.Errorf("summary total frames = %d, want 20", report.Summary.TotalFrames)
	}
	if report.Summary.AvgStudentCount != 1 {
		t.Errorf("avg student count = %v, want 1", report.Summary.AvgStudentCount)
	}
}

func TestAnalyzeSequence_BatchMatchesPerFrame(t *testing.T) {
	box := geometry.Rect(100, 100, 220, 400)
	byFrame := make(map[int][]detect.PersonDetection)
	for i := 0; i < 12; i++ {
		byFrame[i] = []detect.PersonDetection{personAt(box)}
	}

	perFrame := newTestAnalyzer(&fakePose{byFrame: byFrame}, &fakeObjects{}, nil)
	single, err := perFrame.AnalyzeSequence(context.Background(), &fakeSource{total: 12})
	if err != nil {
		t.Fatalf("per-frame run: %v", err)
	}

	batchPose := &fakePose{byFrame: byFrame}
	cfg := Config{
		Strategy: sampling.Strategy{FPS: 30, Interval: time.Second, ShortSequenceLimit: 300, BatchSize: 4},
		Workers:  2,
	}
	batched := New(batchPose, &fakeObjects{}, nil, nil, cfg, nil)
	multi, err := batched.AnalyzeSequence(context.Background(), &fakeSource{total: 12})
	if err != nil {
		t.Fatalf("batched run: %v", err)
	}

	if batchPose.batches == 0 {
		t.Fatal("batch estimator was never used")
	}
	if len(single.Frames) != len(multi.Frames) {
		t.Fatalf("frame counts differ: %d vs %d", len(single.Frames), len(multi.Frames))
	}
	for i := range single.Frames {
		a, b := single.Frames[i], multi.Frames[i]
		if a.FrameIndex != b.FrameIndex || len(a.Behaviors) != len(b.Behaviors) {
			t.Fatalf("frame %d differs between batch and per-frame runs", i)
		}
		if a.Behaviors[0].Behavior != b.Behaviors[0].Behavior {
			t.Fatalf("frame %d behavior differs: %v vs %v", i, a.Behaviors[0].Behavior, b.Behaviors[0].Behavior)
		}
	}
}

func TestAnalyzeSequence_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := newTestAnalyzer(&fakePose{}, &fakeObjects{}, nil)
	if _, err := a.AnalyzeSequence(ctx, &fakeSource{total: 50}); err == nil {
		t.Error("expected error from canceled context")
	}
}

func TestAnalyzeSubject_FallbackSearchFollowsSubject(t *testing.T) {
	// No tracker backends: the subject must be followed purely by pose
	// matching inside the search region as they drift right.
	byFrame := map[int][]detect.PersonDetection{
		0: {personAt(geometry.Rect(100, 100, 220, 400))},
		1: {personAt(geometry.Rect(130, 100, 250, 400))},
		2: {personAt(geometry.Rect(160, 100, 280, 400))},
		3: {},
		4: {personAt(geometry.Rect(180, 100, 300, 400))},
	}
	src := &fakeSource{total: 5}
	a := newTestAnalyzer(&fakePose{byFrame: byFrame}, &fakeObjects{}, nil)

	report, err := a.AnalyzeSubject(context.Background(), src, geometry.Rect(100, 100, 220, 400), "Alex")
	if err != nil {
		t.Fatalf("AnalyzeSubject: %v", err)
	}
	if len(report.Frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(report.Frames))
	}

	for _, i := range []int{0, 1, 2, 4} {
		if !report.Frames[i].PoseFound {
			t.Errorf("frame %d: pose not found", i)
		}
	}
	if report.Frames[3].PoseFound {
		t.Error("frame 3 has no detections but reported a pose")
	}
	if report.Track.TrackerKind != "fallback_search" {
		t.Errorf("tracker kind = %q, want fallback_search", report.Track.TrackerKind)
	}
	if report.Track.SampledFrames != 5 {
		t.Errorf("sampled frames = %d, want 5", report.Track.SampledFrames)
	}
}

func TestAnalyzeSubject_UntrackableRegionYieldsEmptyReport(t *testing.T) {
	src := &fakeSource{total: 5}
	a := newTestAnalyzer(&fakePose{}, &fakeObjects{}, nil)

	report, err := a.AnalyzeSubject(context.Background(), src, geometry.Rect(10, 10, 15, 15), "Alex")
	if err != nil {
		t.Fatalf("tiny region should not error: %v", err)
	}
	if len(report.Frames) != 0 {
		t.Errorf("got %d frames, want 0", len(report.Frames))
	}
	if report.Track.FramesTracked != 0 {
		t.Errorf("frames tracked = %d, want 0", report.Track.FramesTracked)
	}
	if len(report.Summary.Conclusions) == 0 {
		t.Error("expected a not-found conclusion")
	}
}

func TestAnalyzeSubject_IgnoresOtherPeople(t *testing.T) {
	subject := geometry.Rect(100, 100, 220, 400)
	other := geometry.Rect(500, 100, 620, 400)
	byFrame := map[int][]detect.PersonDetection{
		0: {personAt(other), personAt(subject)},
		1: {personAt(other), personAt(subject)},
	}
	src := &fakeSource{total: 2}
	a := newTestAnalyzer(&fakePose{byFrame: byFrame}, &fakeObjects{}, nil)

	report, err := a.AnalyzeSubject(context.Background(), src, subject, "")
	if err != nil {
		t.Fatalf("AnalyzeSubject: %v", err)
	}
	for i, fr := range report.Frames {
		if !fr.PoseFound {
			t.Fatalf("frame %d: subject pose not found", i)
		}
		if fr.Behavior.Box.X1 > 300 {
			t.Errorf("frame %d matched the wrong person: %v", i, fr.Behavior.Box)
		}
	}
}

func TestAnalyzeFaceSubject(t *testing.T) {
	box := geometry.Rect(100, 100, 220, 400)
	// 110x120 inside the 120x300 person box: IoU 13200/36000 = 0.37,
	// clear of the 0.3 face-to-pose gate.
	faceBox := geometry.Rect(105, 110, 215, 230)
	enrolled := []float32{1, 0, 0, 0}

	pose := &fakePose{byFrame: map[int][]detect.PersonDetection{
		0: {personAt(box)},
		1: {personAt(box)},
		2: {personAt(box)},
	}}
	faces := &fakeFaces{byFrame: map[int][]detect.Face{
		0: {{Box: faceBox, Embedding: []float32{0.9, 0.1, 0, 0}}},
		1: {}, // no face this frame
		2: {{Box: faceBox, Embedding: []float32{0.95, 0, 0, 0}}},
	}}
	src := &fakeSource{total: 3}
	a := newTestAnalyzer(pose, &fakeObjects{}, faces)

	report, err := a.AnalyzeFaceSubject(context.Background(), src, [][]float32{enrolled}, "Sam")
	if err != nil {
		t.Fatalf("AnalyzeFaceSubject: %v", err)
	}

	if !report.Frames[0].StudentFound || !report.Frames[0].PoseFound {
		t.Fatalf("frame 0 = %+v, want found with pose", report.Frames[0])
	}
	if report.Frames[1].StudentFound {
		t.Error("frame 1 has no face but reported the subject")
	}
	if report.Frames[0].Behavior == nil || report.Frames[0].Behavior.FaceSimilarity <= 0 {
		t.Error("face similarity not recorded")
	}
	if report.Summary.RecognitionAccuracy <= 0 {
		t.Error("recognition accuracy not computed")
	}
	if report.Track.TrackerKind != "face_match" {
		t.Errorf("tracker kind = %q, want face_match", report.Track.TrackerKind)
	}
}

func TestAnalyzeFaceSubject_RequiresRecognizer(t *testing.T) {
	a := newTestAnalyzer(&fakePose{}, &fakeObjects{}, nil)
	if _, err := a.AnalyzeFaceSubject(context.Background(), &fakeSource{total: 1}, [][]float32{{1}}, ""); err == nil {
		t.Error("expected error without a face recognizer")
	}
}

func TestAnalyzeSubject_FaceWithoutPoseStillCountsFound(t *testing.T) {
	faceBox := geometry.Rect(130, 110, 190, 170)
	faces := &fakeFaces{byFrame: map[int][]detect.Face{
		0: {{Box: faceBox, Embedding: []float32{1, 0, 0, 0}}},
	}}
	src := &fakeSource{total: 1}
	a := newTestAnalyzer(&fakePose{}, &fakeObjects{}, faces)

	report, err := a.AnalyzeFaceSubject(context.Background(), src, [][]float32{{1, 0, 0, 0}}, "")
	if err != nil {
		t.Fatalf("AnalyzeFaceSubject: %v", err)
	}
	fr := report.Frames[0]
	if !fr.StudentFound || fr.PoseFound || fr.Behavior != nil {
		t.Errorf("frame = %+v, want found without pose", fr)
	}
}

func TestAnalyzeSubject_StationarySubjectLooksDownThroughout(t *testing.T) {
	box := geometry.Rect(100, 100, 220, 400)
	byFrame := make(map[int][]detect.PersonDetection)
	for i := 0; i < 10; i++ {
		byFrame[i] = []detect.PersonDetection{personAt(box)}
	}
	src := &fakeSource{total: 10}
	a := newTestAnalyzer(&fakePose{byFrame: byFrame}, &fakeObjects{}, nil)

	report, err := a.AnalyzeSubject(context.Background(), src, box, "Alex")
	if err != nil {
		t.Fatalf("AnalyzeSubject: %v", err)
	}
	if report.Track.FramesTracked != 10 {
		t.Fatalf("frames tracked = %d, want 10", report.Track.FramesTracked)
	}
	for i, fr := range report.Frames {
		if !fr.PoseFound || fr.Behavior.HeadPose != behavior.LookingDown {
			t.Fatalf("frame %d = %+v, want looking_down pose", i, fr)
		}
	}
	if got := report.Summary.HeadPercentages[string(behavior.LookingDown)]; got != 100 {
		t.Errorf("looking_down percentage = %v, want 100", got)
	}
	var sum float64
	for _, pct := range report.Summary.HeadPercentages {
		sum += pct
	}
	if sum != 100 {
		t.Errorf("head percentages sum = %v, want 100", sum)
	}
}

// failSource errors on the listed frame indices.
type failSource struct {
	fakeSource
	failing map[int]bool
}

func (f *failSource) ReadFrame(index int) (*detect.Frame, error) {
	if f.failing[index] {
		return nil, fmt.Errorf("decode error at frame %d", index)
	}
	return f.fakeSource.ReadFrame(index)
}

func TestAnalyzeSequence_UnreadableFrameKeepsSlot(t *testing.T) {
	box := geometry.Rect(100, 100, 220, 400)
	byFrame := make(map[int][]detect.PersonDetection)
	for i := 0; i < 5; i++ {
		byFrame[i] = []detect.PersonDetection{personAt(box)}
	}
	src := &failSource{fakeSource: fakeSource{total: 5}, failing: map[int]bool{2: true}}
	a := newTestAnalyzer(&fakePose{byFrame: byFrame}, &fakeObjects{}, nil)

	report, err := a.AnalyzeSequence(context.Background(), src)
	if err != nil {
		t.Fatalf("AnalyzeSequence: %v", err)
	}
	if len(report.Frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(report.Frames))
	}
	if got := report.Frames[2]; got.FrameIndex != 2 || len(got.Behaviors) != 0 {
		t.Errorf("unreadable frame slot = %+v, want empty result at index 2", got)
	}
	if len(report.Frames[3].Behaviors) != 1 {
		t.Error("analysis did not continue past the unreadable frame")
	}
}

func TestAnalyzeSubject_UnreadableFrameCountsLost(t *testing.T) {
	box := geometry.Rect(100, 100, 220, 400)
	byFrame := make(map[int][]detect.PersonDetection)
	for i := 0; i < 4; i++ {
		byFrame[i] = []detect.PersonDetection{personAt(box)}
	}
	src := &failSource{fakeSource: fakeSource{total: 4}, failing: map[int]bool{1: true}}
	a := newTestAnalyzer(&fakePose{byFrame: byFrame}, &fakeObjects{}, nil)

	report, err := a.AnalyzeSubject(context.Background(), src, box, "")
	if err != nil {
		t.Fatalf("AnalyzeSubject: %v", err)
	}
	if len(report.Frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(report.Frames))
	}
	if report.Frames[1].StudentFound {
		t.Error("unreadable frame reported the subject as found")
	}
	if report.Track.FramesLost != 1 {
		t.Errorf("frames lost = %d, want 1", report.Track.FramesLost)
	}
	if !report.Frames[2].StudentFound {
		t.Error("tracking did not resume after the unreadable frame")
	}
}

func TestAnalyzeSequence_ProgressReported(t *testing.T) {
	var calls []int
	cfg := Config{
		Strategy: sampling.Strategy{FPS: 30, Interval: time.Second, ShortSequenceLimit: 300, BatchSize: 1},
		Workers:  1,
		Progress: func(done, total int) { calls = append(calls, done) },
	}
	a := New(&fakePose{}, &fakeObjects{}, nil, nil, cfg, nil)
	if _, err := a.AnalyzeSequence(context.Background(), &fakeSource{total: 3}); err != nil {
		t.Fatalf("AnalyzeSequence: %v", err)
	}
	if len(calls) != 3 || calls[2] != 3 {
		t.Errorf("progress calls = %v, want 1..3", calls)
	}
}
