package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/lmittmann/tint"

	"github.com/classlens/classlens/internal/aggregate"
	"github.com/classlens/classlens/internal/analyzer"
	"github.com/classlens/classlens/internal/behavior"
	"github.com/classlens/classlens/internal/config"
	"github.com/classlens/classlens/internal/detect/yolo"
	"github.com/classlens/classlens/internal/embeddings"
	"github.com/classlens/classlens/internal/extractor"
	"github.com/classlens/classlens/internal/geometry"
	"github.com/classlens/classlens/internal/models"
	"github.com/classlens/classlens/internal/report"
	"github.com/classlens/classlens/internal/sampling"
	"github.com/classlens/classlens/internal/storage"
	"github.com/classlens/classlens/internal/track/opencv"
)

type options struct {
	videoPath      string
	outputDir      string
	mode           string
	box            string
	interval       string
	student        string
	enrollPhotos   string
	poseModel      string
	objectModel    string
	faceDetector   string
	faceRecognizer string
	usePostgres    bool
	narrative      bool
	initSchema     bool
}

func main() {
	ctx := context.Background()

	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: "15:04:05",
		}),
	)

	opts := parseArgs()
	cfg := config.Load(logger)
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.interval != "" {
		d, err := time.ParseDuration(opts.interval)
		if err != nil {
			logger.Error("invalid --interval", "value", opts.interval, "error", err)
			os.Exit(1)
		}
		cfg.SampleInterval = d
	}

	if opts.initSchema {
		if err := storage.InitSchema(ctx, cfg.Postgres); err != nil {
			logger.Error("schema initialization failed", "error", err)
			os.Exit(1)
		}
		fmt.Println("Database schema initialized.")
		return
	}

	if opts.enrollPhotos != "" {
		if err := enroll(ctx, cfg, opts, logger); err != nil {
			logger.Error("enrollment failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if opts.videoPath == "" {
		usage()
		os.Exit(1)
	}

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("analysis failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Analysis completed successfully!")
}

func parseArgs() options {
	opts := options{
		mode:           "class",
		poseModel:      "models/yolov8n-pose.onnx",
		objectModel:    "models/yolov8n.onnx",
		faceDetector:   "models/face_detection_yunet.onnx",
		faceRecognizer: "models/face_recognition_sface.onnx",
	}

	args := os.Args
	next := func(i int) string {
		if i+1 < len(args) {
			return args[i+1]
		}
		return ""
	}

	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--video":
			opts.videoPath = next(i)
			i++
		case "--output":
			opts.outputDir = next(i)
			i++
		case "--mode":
			opts.mode = next(i)
			i++
		case "--box":
			opts.box = next(i)
			i++
		case "--interval":
			opts.interval = next(i)
			i++
		case "--student":
			opts.student = next(i)
			i++
		case "--enroll":
			opts.enrollPhotos = next(i)
			i++
		case "--pose-model":
			opts.poseModel = next(i)
			i++
		case "--object-model":
			opts.objectModel = next(i)
			i++
		case "--face-detector":
			opts.faceDetector = next(i)
			i++
		case "--face-recognizer":
			opts.faceRecognizer = next(i)
			i++
		case "--postgres":
			opts.usePostgres = true
		case "--narrative":
			opts.narrative = true
		case "--init-schema":
			opts.initSchema = true
		case "--help", "-h":
			usage()
			os.Exit(0)
		}
	}
	return opts
}

func usage() {
	fmt.Println(`Usage: classlens --video path/to/video.mp4 [options]

Modes:
  --mode class                    analyze every visible student (default)
  --mode subject --box x,y,w,h    follow one student from an initial box
  --mode face --student NAME      follow one student by enrolled face

Options:
  --output DIR        results directory (default: output)
  --interval DUR      sampling interval for long videos (default: 10s)
  --postgres          store results in PostgreSQL instead of JSON files
  --narrative         generate a prose report via local Ollama
  --init-schema       create the database schema and exit
  --student NAME      student name for subject and face modes
  --enroll PHOTOS     comma-separated photos; enroll --student and exit
  --pose-model PATH   YOLOv8 pose ONNX model
  --object-model PATH YOLOv8 detection ONNX model
  --face-detector PATH   YuNet face detection ONNX model
  --face-recognizer PATH SFace face recognition ONNX model`)
}

func run(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) error {
	video, err := extractor.Open(opts.videoPath)
	if err != nil {
		return err
	}
	defer video.Close()
	videoName := strings.TrimSuffix(filepath.Base(opts.videoPath), filepath.Ext(opts.videoPath))

	logger.Info("video opened",
		"path", opts.videoPath,
		"frames", video.FrameCount(),
		"fps", video.FPS(),
		"duration", video.Duration())

	pose, err := yolo.NewPoseEstimator(opts.poseModel)
	if err != nil {
		return err
	}
	defer pose.Close()

	objects, err := yolo.NewObjectDetector(opts.objectModel)
	if err != nil {
		return err
	}
	defer objects.Close()

	var faces *yolo.FaceRecognizer
	if opts.mode == "face" {
		faces, err = yolo.NewFaceRecognizer(opts.faceDetector, opts.faceRecognizer)
		if err != nil {
			return err
		}
		defer faces.Close()
	}

	store, pgStore, err := openStore(ctx, cfg, opts, videoName)
	if err != nil {
		return err
	}
	defer store.Close()

	a := analyzer.New(pose, objects, faces, behavior.NewStore(cfg.Params), analyzer.Config{
		Strategy: sampling.Strategy{
			FPS:                video.FPS(),
			Interval:           cfg.SampleInterval,
			ShortSequenceLimit: sampling.DefaultShortSequenceLimit,
			BatchSize:          cfg.BatchSize,
		},
		Workers:  cfg.Workers,
		Weights:  aggregate.DefaultWeights(),
		Trackers: opencv.Factories(),
		Progress: func(done, total int) {
			fmt.Printf("\rAnalyzed frames: %d/%d", done, total)
		},
	}, logger)

	summary, err := runMode(ctx, a, video, store, pgStore, opts)
	if err != nil {
		return err
	}
	fmt.Println()

	if err := store.SaveSummary(ctx, summary); err != nil {
		return err
	}
	for _, c := range summary.Conclusions {
		fmt.Println("-", c)
	}

	if opts.narrative {
		if err := printNarrative(ctx, cfg, opts, summary, logger); err != nil {
			// The numbers are already saved; a missing model should not
			// fail the run.
			logger.Warn("narrative generation failed", "error", err)
		}
	}
	return nil
}

func runMode(ctx context.Context, a *analyzer.Analyzer, video *extractor.Video, store storage.Store, pgStore *storage.PostgresStore, opts options) (models.Summary, error) {
	switch opts.mode {
	case "class":
		rep, err := a.AnalyzeSequence(ctx, video)
		if err != nil {
			return models.Summary{}, err
		}
		for _, fr := range rep.Frames {
			if err := store.AddClassFrame(ctx, fr); err != nil {
				return models.Summary{}, err
			}
		}
		return rep.Summary, store.Flush()

	case "subject":
		box, err := parseBox(opts.box)
		if err != nil {
			return models.Summary{}, err
		}
		rep, err := a.AnalyzeSubject(ctx, video, box, opts.student)
		if err != nil {
			return models.Summary{}, err
		}
		for _, fr := range rep.Frames {
			if err := store.AddSubjectFrame(ctx, fr); err != nil {
				return models.Summary{}, err
			}
		}
		rep.Summary.BehaviorMinutes = aggregate.BehaviorMinutes(
			rep.Summary.BehaviorStats, rep.Track.SampledFrames, video.Duration())
		return rep.Summary, store.Flush()

	case "face":
		if pgStore == nil {
			return models.Summary{}, fmt.Errorf("face mode needs --postgres for the descriptor registry")
		}
		if opts.student == "" {
			return models.Summary{}, fmt.Errorf("face mode needs --student")
		}
		descriptors, err := pgStore.StudentDescriptors(ctx, opts.student)
		if err != nil {
			return models.Summary{}, err
		}
		rep, err := a.AnalyzeFaceSubject(ctx, video, descriptors, opts.student)
		if err != nil {
			return models.Summary{}, err
		}
		for _, fr := range rep.Frames {
			if err := store.AddSubjectFrame(ctx, fr); err != nil {
				return models.Summary{}, err
			}
		}
		rep.Summary.BehaviorMinutes = aggregate.BehaviorMinutes(
			rep.Summary.BehaviorStats, rep.Track.SampledFrames, video.Duration())
		return rep.Summary, store.Flush()

	default:
		return models.Summary{}, fmt.Errorf("unknown mode %q", opts.mode)
	}
}

func openStore(ctx context.Context, cfg config.Config, opts options, videoName string) (storage.Store, *storage.PostgresStore, error) {
	if !opts.usePostgres {
		return storage.NewFileStore(cfg.OutputDir, videoName), nil, nil
	}
	pg, err := storage.NewPostgresStore(ctx, cfg.Postgres, videoName, opts.mode, opts.student)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg, nil
}

func enroll(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) error {
	if opts.student == "" {
		return fmt.Errorf("--enroll needs --student")
	}

	faces, err := yolo.NewFaceRecognizer(opts.faceDetector, opts.faceRecognizer)
	if err != nil {
		return err
	}
	defer faces.Close()

	service := embeddings.NewService(faces, cfg.Workers)
	defer service.Close()

	descriptors, err := service.ExtractAll(strings.Split(opts.enrollPhotos, ","))
	if err != nil {
		return err
	}

	pg, err := storage.NewPostgresStore(ctx, cfg.Postgres, "enrollment", "enroll", opts.student)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.EnrollStudent(ctx, opts.student, descriptors); err != nil {
		return err
	}
	logger.Info("student enrolled", "student", opts.student, "descriptors", len(descriptors))
	return nil
}

func printNarrative(ctx context.Context, cfg config.Config, opts options, summary models.Summary, logger *slog.Logger) error {
	agent, err := report.NewAgent(ctx, cfg.OllamaModel, logger)
	if err != nil {
		return err
	}
	text, err := report.Narrative(ctx, agent, opts.student, summary)
	if err != nil {
		return err
	}
	fmt.Println("\n" + text)
	return nil
}

// parseBox parses the --box argument as x,y,w,h in pixels.
func parseBox(s string) (geometry.Box, error) {
	var x, y, w, h int
	if _, err := fmt.Sscanf(s, "%d,%d,%d,%d", &x, &y, &w, &h); err != nil {
		return geometry.Box{}, fmt.Errorf("invalid --box %q, expected x,y,w,h: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return geometry.Box{}, fmt.Errorf("invalid --box %q, width and height must be positive", s)
	}
	return geometry.FromXYWH(x, y, w, h), nil
}
