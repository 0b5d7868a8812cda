package face

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/eventsnap/facefinder/internal/domain"
	"github.com/eventsnap/facefinder/internal/provider"
)

// modelInputSize is the square geometry the recognition backbone expects.
const modelInputSize = 112

// cropPadding widens the detector box before cropping so the backbone sees
// the full face including chin and forehead, matching how it was trained.
const cropPadding = 0.2

// Extractor turns a face region of a source image into a fixed-512,
// L2-normalized embedding. The backbone's native dimensionality is padded
// or truncated deterministically; a failing backbone is always reported as
// ExtractionFailed, never papered over with a synthetic vector.
type Extractor struct {
	backend   provider.EmbeddingBackend
	logger    *slog.Logger
	opTimeout time.Duration
}

// NewExtractor creates an extractor over the given embedding backend.
func NewExtractor(backend provider.EmbeddingBackend, logger *slog.Logger, opTimeout time.Duration) *Extractor {
	return &Extractor{
		backend:   backend,
		logger:    logger,
		opTimeout: opTimeout,
	}
}

// Extract crops the box out of the encoded source image, normalizes the
// crop to the model geometry and returns the embedding.
func (e *Extractor) Extract(ctx context.Context, img []byte, box domain.BoundingBox) (domain.Embedding, error) {
	crop, err := CropFace(img, box)
	if err != nil {
		return nil, err
	}
	return e.ExtractCrop(ctx, crop)
}

// ExtractCrop embeds an already-cropped face image.
func (e *Extractor) ExtractCrop(ctx context.Context, crop []byte) (domain.Embedding, error) {
	if e.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opTimeout)
		defer cancel()
	}

	vec, err := e.backend.Embed(ctx, crop)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidImage) {
			return nil, domain.ErrInvalidImage.WithError(err)
		}
		e.logger.Error("embedding backbone failed",
			slog.String("backend", e.backend.Name()),
			slog.Any("error", err),
		)
		return nil, domain.ErrExtractionFailed.WithError(err)
	}

	emb, err := domain.NewEmbedding(fitDimensions(vec))
	if err != nil {
		return nil, domain.ErrExtractionFailed.WithError(err)
	}
	return emb, nil
}

// fitDimensions maps a native backbone vector onto the fixed 512-d
// contract: shorter vectors are zero-padded, longer ones truncated. Both
// operations are deterministic so repeated extraction stays reproducible.
func fitDimensions(vec []float32) []float32 {
	if len(vec) == domain.EmbeddingDim {
		return vec
	}
	out := make([]float32, domain.EmbeddingDim)
	copy(out, vec)
	return out
}

// CropFace cuts the padded, squared face region out of an encoded image
// and rescales it to the backbone's input geometry. The result is encoded
// as PNG so repeated crops of the same region are byte-identical.
func CropFace(img []byte, box domain.BoundingBox) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("decode source image: %w", err))
	}

	bounds := src.Bounds()
	region := squareRegion(box, bounds)
	if region.Empty() {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("face box outside image bounds"))
	}

	dst := image.NewRGBA(image.Rect(0, 0, modelInputSize, modelInputSize))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, region, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("encode crop: %w", err))
	}
	return buf.Bytes(), nil
}

// squareRegion pads the detector box and squares it around its center so
// the rescale does not distort facial proportions.
func squareRegion(box domain.BoundingBox, bounds image.Rectangle) image.Rectangle {
	side := max(box.Width, box.Height) * (1 + cropPadding)
	cx := box.X + box.Width/2
	cy := box.Y + box.Height/2

	region := image.Rect(
		int(cx-side/2),
		int(cy-side/2),
		int(cx+side/2),
		int(cy+side/2),
	)
	return region.Intersect(bounds)
}
