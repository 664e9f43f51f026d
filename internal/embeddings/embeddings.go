// Package embeddings extracts face descriptors from enrollment photos
// on a small worker pool. Photos are independent, so extraction is a
// parallel map with a cache keyed by file path; re-enrolling the same
// photo set costs nothing.
package embeddings

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/classlens/classlens/internal/detect"
)

// Result is the outcome of one photo's descriptor extraction.
type Result struct {
	Path      string
	Embedding []float32
	Error     error
}

type work struct {
	path   string
	result chan<- Result
}

// Service turns enrollment photos into face descriptors using the
// configured recognizer.
type Service struct {
	recognizer detect.FaceRecognizer
	workQueue  chan work
	cache      sync.Map
	wg         sync.WaitGroup
}

// NewService starts a descriptor service with the given number of
// workers.
func NewService(recognizer detect.FaceRecognizer, numWorkers int) *Service {
	if numWorkers <= 0 {
		numWorkers = 4
	}

	s := &Service{
		recognizer: recognizer,
		workQueue:  make(chan work, 100),
	}
	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *Service) worker() {
	defer s.wg.Done()
	for w := range s.workQueue {
		if cached, ok := s.cache.Load(w.path); ok {
			w.result <- Result{Path: w.path, Embedding: cached.([]float32)}
			continue
		}

		embedding, err := s.extract(context.Background(), w.path)
		if err == nil {
			s.cache.Store(w.path, embedding)
		}
		w.result <- Result{Path: w.path, Embedding: embedding, Error: err}
	}
}

// Extract requests descriptor extraction for one photo. The result
// arrives on the returned channel.
func (s *Service) Extract(path string) <-chan Result {
	resultChan := make(chan Result, 1)
	select {
	case s.workQueue <- work{path: path, result: resultChan}:
	default:
		resultChan <- Result{
			Path:  path,
			Error: fmt.Errorf("extraction queue is full, try again later"),
		}
		close(resultChan)
	}
	return resultChan
}

// ExtractAll runs every photo through the pool and collects the
// descriptors. Photos in which no face is found are reported as
// errors, not skipped silently.
func (s *Service) ExtractAll(paths []string) ([][]float32, error) {
	channels := make([]<-chan Result, len(paths))
	for i, path := range paths {
		channels[i] = s.Extract(path)
	}

	descriptors := make([][]float32, 0, len(paths))
	for _, ch := range channels {
		r := <-ch
		if r.Error != nil {
			return nil, fmt.Errorf("extracting descriptor from %q: %w", r.Path, r.Error)
		}
		descriptors = append(descriptors, r.Embedding)
	}
	return descriptors, nil
}

// extract loads a photo and returns the descriptor of the single face
// it should contain. Multiple faces are an enrollment mistake.
func (s *Service) extract(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	faces, err := s.recognizer.DetectFaces(ctx, &detect.Frame{JPEG: data})
	if err != nil {
		return nil, err
	}
	switch len(faces) {
	case 0:
		return nil, fmt.Errorf("no face found")
	case 1:
		return faces[0].Embedding, nil
	default:
		return nil, fmt.Errorf("%d faces found, enrollment photos must contain one", len(faces))
	}
}

// Close shuts the pool down and waits for in-flight work.
func (s *Service) Close() {
	close(s.workQueue)
	s.wg.Wait()
}
