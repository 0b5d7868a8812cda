// Package matcher scores reference embeddings against corpus indexes.
// Matching is exhaustive: every face of every index entry is compared, so
// the threshold contract holds exactly with no recall loss from an
// approximate neighbour structure.
package matcher

import (
	"sort"

	"github.com/eventsnap/facefinder/internal/domain"
	"github.com/eventsnap/facefinder/internal/index"
)

// Match compares one reference embedding against every face of the index
// and returns the photos with at least one face scoring >= threshold.
// Each result carries every matching face of the photo plus the photo's
// best similarity. Results are ordered best-first, photo id ascending on
// equal scores so repeated runs paginate identically.
func Match(ref domain.Embedding, idx *index.Index, threshold float64) ([]domain.MatchResult, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}
	if len(ref) != domain.EmbeddingDim {
		return nil, domain.ErrInvalidEmbedding
	}
	return match(func(face index.IndexedFace) float64 {
		return domain.Cosine(ref, face.Embedding)
	}, idx, threshold), nil
}

// MatchAll merges several reference embeddings of the same person: a face
// scores the maximum similarity over all references, so a profile-shot
// reference can recover photos a frontal reference misses.
func MatchAll(refs []domain.Embedding, idx *index.Index, threshold float64) ([]domain.MatchResult, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, domain.ErrInvalidEmbedding
	}
	for _, ref := range refs {
		if len(ref) != domain.EmbeddingDim {
			return nil, domain.ErrInvalidEmbedding
		}
	}
	return match(func(face index.IndexedFace) float64 {
		best := -1.0
		for _, ref := range refs {
			if sim := domain.Cosine(ref, face.Embedding); sim > best {
				best = sim
			}
		}
		return best
	}, idx, threshold), nil
}

func match(score func(index.IndexedFace) float64, idx *index.Index, threshold float64) []domain.MatchResult {
	var results []domain.MatchResult
	for _, entry := range idx.Entries() {
		var (
			faces []domain.FaceMatch
			best  float64
		)
		for _, face := range entry.Faces {
			sim := score(face)
			if sim < threshold {
				continue
			}
			faces = append(faces, domain.FaceMatch{Box: face.Box, Similarity: sim})
			if sim > best || len(faces) == 1 {
				best = sim
			}
		}
		if len(faces) == 0 {
			continue
		}
		results = append(results, domain.MatchResult{
			PhotoID:        entry.PhotoID,
			BestSimilarity: best,
			Faces:          faces,
		})
	}

	// Entries() iterates in photo id order, so a stable sort by score
	// keeps that order as the tie-break.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].BestSimilarity > results[j].BestSimilarity
	})
	return results
}

func validateThreshold(threshold float64) error {
	if threshold < -1 || threshold > 1 {
		return domain.ErrInvalidThreshold
	}
	return nil
}
