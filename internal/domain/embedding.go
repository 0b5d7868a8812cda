package domain

import (
	"fmt"
	"math"
)

// EmbeddingDim is the fixed embedding dimensionality. Every embedding that
// enters the matching pipeline has exactly this length; backbones with a
// different native dimensionality are padded or truncated by the extractor
// before an Embedding is constructed.
const EmbeddingDim = 512

// Embedding is a fixed-length, L2-normalized face feature vector.
// Construct via NewEmbedding so the invariants hold.
type Embedding []float32

// NewEmbedding validates the dimensionality, rejects zero vectors and
// returns an L2-normalized copy of v.
func NewEmbedding(v []float32) (Embedding, error) {
	if len(v) != EmbeddingDim {
		return nil, ErrInvalidEmbedding.WithError(
			fmt.Errorf("expected %d dimensions, got %d", EmbeddingDim, len(v)))
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, ErrInvalidEmbedding.WithError(
			fmt.Errorf("zero vector cannot be normalized"))
	}

	norm := math.Sqrt(sum)
	out := make(Embedding, EmbeddingDim)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// Norm returns the L2 norm. A normalized embedding reports ~1.0.
func (e Embedding) Norm() float64 {
	var sum float64
	for _, x := range e {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine computes cosine similarity between two vectors. Zero-magnitude
// input yields 0, never NaN. The result is clamped to [-1, 1] to absorb
// floating point drift.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}
