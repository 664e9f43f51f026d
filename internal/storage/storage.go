// Package storage persists analysis output. The file store writes
// plain JSON next to the video for ad-hoc runs; the Postgres store
// keeps sessions queryable and holds the enrolled face descriptors.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/classlens/classlens/internal/models"
)

const batchSize = 10 // frame results buffered before a disk write

// Store receives results as the pipeline produces them.
type Store interface {
	AddSubjectFrame(ctx context.Context, result models.FrameResult) error
	AddClassFrame(ctx context.Context, result models.ClassFrameResult) error
	SaveSummary(ctx context.Context, summary models.Summary) error
	Flush() error
	Close() error
}

// FileStore batches frame results and appends them to JSON files under
// <outputDir>/<videoName>/.
type FileStore struct {
	mu        sync.Mutex
	outputDir string
	videoName string

	subjectFrames []models.FrameResult
	classFrames   []models.ClassFrameResult
}

// NewFileStore creates a file-backed store for one video's results.
func NewFileStore(outputDir, videoName string) *FileStore {
	return &FileStore{outputDir: outputDir, videoName: videoName}
}

// AddSubjectFrame buffers a subject-run frame result, flushing to disk
// when the batch is full.
func (s *FileStore) AddSubjectFrame(_ context.Context, result models.FrameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjectFrames = append(s.subjectFrames, result)
	if len(s.subjectFrames) >= batchSize {
		return s.flushLocked()
	}
	return nil
}

// AddClassFrame buffers a class-run frame result, flushing to disk
// when the batch is full.
func (s *FileStore) AddClassFrame(_ context.Context, result models.ClassFrameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classFrames = append(s.classFrames, result)
	if len(s.classFrames) >= batchSize {
		return s.flushLocked()
	}
	return nil
}

// SaveSummary writes the run summary, replacing any previous one.
func (s *FileStore) SaveSummary(_ context.Context, summary models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON("summary.json", summary)
}

// Flush writes all buffered frame results to disk.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Close flushes outstanding results.
func (s *FileStore) Close() error {
	return s.Flush()
}

func (s *FileStore) flushLocked() error {
	if len(s.subjectFrames) > 0 {
		if err := appendJSON(s.resultPath("frame_results.json"), s.subjectFrames); err != nil {
			return err
		}
		s.subjectFrames = nil
	}
	if len(s.classFrames) > 0 {
		if err := appendJSON(s.resultPath("class_frames.json"), s.classFrames); err != nil {
			return err
		}
		s.classFrames = nil
	}
	return nil
}

func (s *FileStore) resultPath(name string) string {
	return filepath.Join(s.outputDir, s.videoName, name)
}

func (s *FileStore) writeJSON(name string, v any) error {
	path := s.resultPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	return nil
}

// appendJSON merges new entries into an existing JSON array file.
func appendJSON[T any](path string, pending []T) error {
	var existing []T
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("reading existing results %s: %w", path, err)
		}
	}
	all := append(existing, pending...)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(all); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}
