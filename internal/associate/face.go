package associate

import (
	"math"

	"github.com/classlens/classlens/internal/detect"
)

// SimilarityThreshold is the minimum cosine similarity for a face
// embedding to count as the enrolled subject.
const SimilarityThreshold = 0.5

// CosineSimilarity returns the cosine of the angle between two
// embeddings, or 0 when either is empty, zero-length in norm, or the
// dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// BestDescriptorMatch returns the highest cosine similarity between
// embedding and any enrolled descriptor.
func BestDescriptorMatch(embedding []float32, descriptors [][]float32) float64 {
	best := 0.0
	for _, d := range descriptors {
		if sim := CosineSimilarity(embedding, d); sim > best {
			best = sim
		}
	}
	return best
}

// MatchFace finds the detected face most similar to the enrolled
// descriptors. It returns the face index and its similarity, or -1
// when no face reaches minSimilarity.
func MatchFace(faces []detect.Face, descriptors [][]float32, minSimilarity float64) (int, float64) {
	best := -1
	bestSim := 0.0
	for i, f := range faces {
		if sim := BestDescriptorMatch(f.Embedding, descriptors); sim > bestSim {
			best = i
			bestSim = sim
		}
	}
	if bestSim < minSimilarity {
		return -1, bestSim
	}
	return best, bestSim
}
