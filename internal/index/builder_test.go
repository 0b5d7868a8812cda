package index

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventsnap/facefinder/internal/domain"
	"github.com/eventsnap/facefinder/internal/face"
	"github.com/eventsnap/facefinder/internal/provider"
	"github.com/eventsnap/facefinder/internal/provider/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func writePNG(t *testing.T, path string, size int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func rawFace(x, y, w, h float64) provider.RawFace {
	return provider.RawFace{Box: [4]float64{x, y, w, h}, Confidence: 0.9}
}

func newTestBuilder(det *mock.DetectionBackend, emb *mock.EmbeddingBackend) *Builder {
	detector := face.NewDetector([]provider.DetectionBackend{det}, testLogger(), 0)
	extractor := face.NewExtractor(emb, testLogger(), 0)
	return NewBuilder(detector, extractor, testLogger())
}

func countingEmbedFn() func(crop []byte) ([]float32, error) {
	var n int
	return func(crop []byte) ([]float32, error) {
		n++
		vec := make([]float32, domain.EmbeddingDim)
		vec[0] = float32(n)
		return vec, nil
	}
}

func TestBuilderBuildIndexesCorpus(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 200)
	writePNG(t, filepath.Join(dir, "b.png"), 200)
	writePNG(t, filepath.Join(dir, "sub", "c.png"), 200)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	// Scripted per file in walk order: a.png, b.png, sub/c.png.
	det := mock.NewDetectionBackend("scripted")
	det.QueueFaces(rawFace(20, 20, 60, 60))
	det.QueueFaces()
	det.QueueFaces(rawFace(10, 10, 50, 50), rawFace(120, 30, 50, 50))

	emb := mock.NewEmbeddingBackend("scripted")
	emb.EmbedFn = countingEmbedFn()

	var progress []Progress
	idx, err := newTestBuilder(det, emb).Build(context.Background(), "corpus", dir, func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, "corpus", idx.ModelID)
	assert.Equal(t, dir, idx.PhotoDir)
	assert.Empty(t, idx.Errors)
	require.Len(t, idx.ByPhoto, 3)
	assert.Equal(t, 3, idx.FaceCount())

	// A photo without faces still gets a processed entry.
	empty, ok := idx.Get("b.png")
	require.True(t, ok)
	assert.Empty(t, empty.Faces)

	// Nested photos are keyed by corpus-relative slash paths.
	nested, ok := idx.Get("sub/c.png")
	require.True(t, ok)
	assert.Len(t, nested.Faces, 2)
	for _, f := range nested.Faces {
		assert.Len(t, f.Embedding, domain.EmbeddingDim)
	}

	require.Len(t, progress, 3)
	assert.Equal(t, Progress{Processed: 1, Total: 3, Current: "a.png"}, progress[0])
	assert.Equal(t, Progress{Processed: 3, Total: 3, Current: "sub/c.png"}, progress[2])
}

func TestBuilderRecordsBadFilesAndContinues(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "good.png"), 200)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not an image"), 0o644))

	det := mock.NewDetectionBackend("scripted")
	det.Always([]provider.RawFace{rawFace(20, 20, 60, 60)}, nil)

	emb := mock.NewEmbeddingBackend("scripted")
	emb.EmbedFn = countingEmbedFn()

	idx, err := newTestBuilder(det, emb).Build(context.Background(), "corpus", dir, nil)
	require.NoError(t, err)

	require.Len(t, idx.Errors, 1)
	assert.Equal(t, "broken.jpg", idx.Errors[0].Path)
	assert.NotEmpty(t, idx.Errors[0].Error)

	_, broken := idx.Get("broken.jpg")
	assert.False(t, broken)
	_, good := idx.Get("good.png")
	assert.True(t, good)
}

func TestBuilderAbortsOnBackendOutage(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 200)

	det := mock.NewDetectionBackend("down")
	det.Always(nil, provider.ErrBackendUnavailable)

	emb := mock.NewEmbeddingBackend("idle")

	_, err := newTestBuilder(det, emb).Build(context.Background(), "corpus", dir, nil)
	assert.ErrorIs(t, err, domain.ErrDetectionUnavailable)
}

func TestBuilderAbortsOnEmbeddingOutage(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 200)

	det := mock.NewDetectionBackend("scripted")
	det.Always([]provider.RawFace{rawFace(20, 20, 60, 60)}, nil)

	emb := mock.NewEmbeddingBackend("down")
	emb.Err = provider.ErrBackendUnavailable

	_, err := newTestBuilder(det, emb).Build(context.Background(), "corpus", dir, nil)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
}

func TestBuilderRespectsCancellation(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 200)

	det := mock.NewDetectionBackend("scripted")
	det.Always([]provider.RawFace{rawFace(20, 20, 60, 60)}, nil)
	emb := mock.NewEmbeddingBackend("scripted")
	emb.EmbedFn = countingEmbedFn()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestBuilder(det, emb).Build(ctx, "corpus", dir, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuilderEmptyCorpus(t *testing.T) {
	idx, err := newTestBuilder(mock.NewDetectionBackend("idle"), mock.NewEmbeddingBackend("idle")).
		Build(context.Background(), "corpus", t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, idx.ByPhoto)
	assert.Empty(t, idx.Errors)
}
