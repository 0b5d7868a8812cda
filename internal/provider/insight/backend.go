package insight

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/eventsnap/facefinder/internal/provider"
)

// Backend exposes the InsightFace serving process as both a detection and
// an embedding backend. This is the primary backbone: all index and
// reference embeddings must come from the same recognition model to be
// comparable.
type Backend struct {
	client *Client
}

var (
	_ provider.DetectionBackend = (*Backend)(nil)
	_ provider.EmbeddingBackend = (*Backend)(nil)
)

// NewBackend creates a backend talking to an InsightFace serving instance.
func NewBackend(config Config) *Backend {
	return &Backend{client: NewClient(config)}
}

func (b *Backend) Name() string { return "insightface" }

// Detect finds faces in an encoded image. An image without faces yields an
// empty slice; a dead serving process yields ErrBackendUnavailable.
func (b *Backend) Detect(ctx context.Context, image []byte) ([]provider.RawFace, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", provider.ErrInvalidImage)
	}

	resp, err := b.client.Detect(ctx, base64.StdEncoding.EncodeToString(image))
	if err != nil {
		if errors.Is(err, ErrServingUnavailable) {
			return nil, fmt.Errorf("%w: %v", provider.ErrBackendUnavailable, err)
		}
		return nil, fmt.Errorf("insightface detect: %w", err)
	}

	faces := make([]provider.RawFace, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		faces = append(faces, provider.RawFace{
			// InsightFace reports corner coordinates; the pipeline wants x/y/w/h.
			Box: [4]float64{
				f.BBox[0],
				f.BBox[1],
				f.BBox[2] - f.BBox[0],
				f.BBox[3] - f.BBox[1],
			},
			Landmarks:  f.KPS,
			Confidence: f.Score,
		})
	}

	return faces, nil
}

// Embed computes the recognition embedding of an aligned face crop.
func (b *Backend) Embed(ctx context.Context, crop []byte) ([]float32, error) {
	if len(crop) == 0 {
		return nil, fmt.Errorf("%w: empty crop", provider.ErrInvalidImage)
	}

	resp, err := b.client.Embed(ctx, base64.StdEncoding.EncodeToString(crop))
	if err != nil {
		if errors.Is(err, ErrServingUnavailable) {
			return nil, fmt.Errorf("%w: %v", provider.ErrBackendUnavailable, err)
		}
		return nil, fmt.Errorf("insightface embed: %w", err)
	}

	if len(resp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return resp.Embedding, nil
}
