package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventsnap/facefinder/internal/domain"
	"github.com/eventsnap/facefinder/internal/index"
)

// axisEmbedding points along a single dimension, so cosine similarity
// between two of them is 1 for the same axis and 0 otherwise.
func axisEmbedding(t *testing.T, axis int) domain.Embedding {
	t.Helper()
	vec := make([]float32, domain.EmbeddingDim)
	vec[axis] = 1
	emb, err := domain.NewEmbedding(vec)
	require.NoError(t, err)
	return emb
}

// blendEmbedding mixes two axes; cosine against axisEmbedding(a) equals
// wa / sqrt(wa²+wb²).
func blendEmbedding(t *testing.T, axisA int, wa float32, axisB int, wb float32) domain.Embedding {
	t.Helper()
	vec := make([]float32, domain.EmbeddingDim)
	vec[axisA] = wa
	vec[axisB] = wb
	emb, err := domain.NewEmbedding(vec)
	require.NoError(t, err)
	return emb
}

func box(x float64) domain.BoundingBox {
	return domain.BoundingBox{X: x, Y: 10, Width: 50, Height: 50}
}

func buildIndex(t *testing.T, entries ...index.Entry) *index.Index {
	t.Helper()
	idx := index.New("test", "/photos/test")
	for _, e := range entries {
		idx.ByPhoto[e.PhotoID] = e
	}
	return idx
}

func TestMatchThresholdInclusive(t *testing.T) {
	ref := axisEmbedding(t, 0)
	// cos = 0.8 exactly: (0.8, 0.6) is already unit length.
	onEdge := blendEmbedding(t, 0, 0.8, 1, 0.6)
	below := blendEmbedding(t, 0, 0.6, 1, 0.8)

	idx := buildIndex(t,
		index.Entry{PhotoID: "edge.jpg", Faces: []index.IndexedFace{{Box: box(0), Embedding: onEdge}}},
		index.Entry{PhotoID: "below.jpg", Faces: []index.IndexedFace{{Box: box(0), Embedding: below}}},
	)

	results, err := Match(ref, idx, 0.8)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "edge.jpg", results[0].PhotoID)
	assert.InDelta(t, 0.8, results[0].BestSimilarity, 1e-6)
}

func TestMatchCollectsAllMatchingFacesPerPhoto(t *testing.T) {
	ref := axisEmbedding(t, 0)
	// Similarities against ref: 0.8, 1.0, 0.0, 0.6.
	idx := buildIndex(t, index.Entry{
		PhotoID: "group.jpg",
		Faces: []index.IndexedFace{
			{Box: box(0), Embedding: blendEmbedding(t, 0, 0.8, 1, 0.6)},
			{Box: box(100), Embedding: axisEmbedding(t, 0)},
			{Box: box(200), Embedding: axisEmbedding(t, 1)},
			{Box: box(300), Embedding: blendEmbedding(t, 0, 0.6, 1, 0.8)},
		},
	})

	results, err := Match(ref, idx, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.InDelta(t, 1.0, got.BestSimilarity, 1e-6)
	require.Len(t, got.Faces, 3)
	for _, f := range got.Faces {
		assert.GreaterOrEqual(t, f.Similarity, 0.5)
	}
}

func TestMatchOrderingAndTieBreak(t *testing.T) {
	ref := axisEmbedding(t, 0)
	strong := axisEmbedding(t, 0)
	weak := blendEmbedding(t, 0, 0.8, 1, 0.6)

	idx := buildIndex(t,
		index.Entry{PhotoID: "z-tie.jpg", Faces: []index.IndexedFace{{Box: box(0), Embedding: strong}}},
		index.Entry{PhotoID: "a-tie.jpg", Faces: []index.IndexedFace{{Box: box(0), Embedding: strong}}},
		index.Entry{PhotoID: "weak.jpg", Faces: []index.IndexedFace{{Box: box(0), Embedding: weak}}},
	)

	results, err := Match(ref, idx, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a-tie.jpg", results[0].PhotoID)
	assert.Equal(t, "z-tie.jpg", results[1].PhotoID)
	assert.Equal(t, "weak.jpg", results[2].PhotoID)
}

func TestMatchSkipsPhotosWithoutMatches(t *testing.T) {
	ref := axisEmbedding(t, 0)
	idx := buildIndex(t,
		index.Entry{PhotoID: "other.jpg", Faces: []index.IndexedFace{{Box: box(0), Embedding: axisEmbedding(t, 2)}}},
		index.Entry{PhotoID: "empty.jpg", Faces: []index.IndexedFace{}},
	)

	results, err := Match(ref, idx, 0.5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMatchValidation(t *testing.T) {
	ref := axisEmbedding(t, 0)
	idx := buildIndex(t)

	_, err := Match(ref, idx, 1.5)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)

	_, err = Match(ref, idx, -1.5)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)

	_, err = Match(domain.Embedding{0.5, 0.5}, idx, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidEmbedding)

	// Boundary thresholds are legal.
	_, err = Match(ref, idx, 1)
	assert.NoError(t, err)
	_, err = Match(ref, idx, -1)
	assert.NoError(t, err)
}

func TestMatchAllTakesBestAcrossReferences(t *testing.T) {
	frontal := axisEmbedding(t, 0)
	profile := axisEmbedding(t, 1)

	idx := buildIndex(t,
		index.Entry{PhotoID: "frontal.jpg", Faces: []index.IndexedFace{{Box: box(0), Embedding: axisEmbedding(t, 0)}}},
		index.Entry{PhotoID: "profile.jpg", Faces: []index.IndexedFace{{Box: box(0), Embedding: axisEmbedding(t, 1)}}},
		index.Entry{PhotoID: "neither.jpg", Faces: []index.IndexedFace{{Box: box(0), Embedding: axisEmbedding(t, 2)}}},
	)

	results, err := MatchAll([]domain.Embedding{frontal, profile}, idx, 0.9)
	require.NoError(t, err)
	require.Len(t, results, 2)

	ids := []string{results[0].PhotoID, results[1].PhotoID}
	assert.ElementsMatch(t, []string{"frontal.jpg", "profile.jpg"}, ids)
	assert.InDelta(t, 1.0, results[0].BestSimilarity, 1e-6)
	assert.InDelta(t, 1.0, results[1].BestSimilarity, 1e-6)
}

func TestMatchAllValidation(t *testing.T) {
	idx := buildIndex(t)

	_, err := MatchAll(nil, idx, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidEmbedding)

	_, err = MatchAll([]domain.Embedding{axisEmbedding(t, 0), {0.1}}, idx, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidEmbedding)

	_, err = MatchAll([]domain.Embedding{axisEmbedding(t, 0)}, idx, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)
}

func TestMatchSingleEqualsMatchAllSingle(t *testing.T) {
	ref := axisEmbedding(t, 0)
	idx := buildIndex(t,
		index.Entry{PhotoID: "a.jpg", Faces: []index.IndexedFace{{Box: box(0), Embedding: blendEmbedding(t, 0, 0.8, 1, 0.6)}}},
	)

	single, err := Match(ref, idx, 0.5)
	require.NoError(t, err)
	merged, err := MatchAll([]domain.Embedding{ref}, idx, 0.5)
	require.NoError(t, err)
	assert.Equal(t, single, merged)
}
