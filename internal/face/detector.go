// Package face implements the matching pipeline stages that sit between
// the raw model backends and the session orchestration: detection with
// non-max suppression, quality assessment and fixed-512 feature
// extraction.
package face

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"sort"
	"time"

	_ "golang.org/x/image/bmp"

	"github.com/google/uuid"

	"github.com/eventsnap/facefinder/internal/domain"
	"github.com/eventsnap/facefinder/internal/provider"
)

// Detection thresholds. Indexing favors recall (a missed corpus face is a
// photo the person will never find); reference photos favor precision (a
// false detection wastes a human selection slot).
const (
	IndexConfidenceThreshold     = 0.4
	ReferenceConfidenceThreshold = 0.5

	// nmsOverlapRatio drops a candidate when this share of its area is
	// covered by a higher-confidence, already-accepted box.
	nmsOverlapRatio = 0.3
)

// Detector runs an ordered chain of detection backends. The first backend
// that answers wins; each failure is logged and the next backend is tried.
// Only when every backend fails does the caller see DetectionUnavailable;
// "no faces" is a normal empty result, never an error.
type Detector struct {
	backends  []provider.DetectionBackend
	logger    *slog.Logger
	opTimeout time.Duration
}

// NewDetector creates a detector over the given ranked backends.
func NewDetector(backends []provider.DetectionBackend, logger *slog.Logger, opTimeout time.Duration) *Detector {
	return &Detector{
		backends:  backends,
		logger:    logger,
		opTimeout: opTimeout,
	}
}

// Detect finds candidate faces in an encoded image. minConfidence filters
// weak candidates; boxes are clipped to the image and de-duplicated via
// non-max suppression. Quality and embedding are left unset.
func (d *Detector) Detect(ctx context.Context, img []byte, sourceName string, minConfidence float64) ([]domain.DetectedFace, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	raw, err := d.detectWithChain(ctx, img)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.DetectedFace, 0, len(raw))
	for _, rf := range raw {
		if rf.Confidence < minConfidence {
			continue
		}

		box := domain.BoundingBox{X: rf.Box[0], Y: rf.Box[1], Width: rf.Box[2], Height: rf.Box[3]}
		box = box.Clip(float64(cfg.Width), float64(cfg.Height))
		if box.Area() == 0 {
			continue
		}

		landmarks := make([]domain.Landmark, 0, len(rf.Landmarks))
		for _, lm := range rf.Landmarks {
			landmarks = append(landmarks, domain.Landmark{X: lm[0], Y: lm[1]})
		}

		candidates = append(candidates, domain.DetectedFace{
			ID:          uuid.New(),
			SourceImage: sourceName,
			Box:         box,
			Landmarks:   landmarks,
			Confidence:  rf.Confidence,
		})
	}

	return suppressOverlaps(candidates), nil
}

// detectWithChain tries each backend in rank order under the per-operation
// timeout.
func (d *Detector) detectWithChain(ctx context.Context, img []byte) ([]provider.RawFace, error) {
	if len(d.backends) == 0 {
		return nil, domain.ErrDetectionUnavailable.WithError(errors.New("no detection backends configured"))
	}

	var lastErr error
	for _, backend := range d.backends {
		opCtx := ctx
		var cancel context.CancelFunc
		if d.opTimeout > 0 {
			opCtx, cancel = context.WithTimeout(ctx, d.opTimeout)
		}

		raw, err := backend.Detect(opCtx, img)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		d.logger.Warn("detection backend failed, trying next",
			slog.String("backend", backend.Name()),
			slog.Any("error", err),
		)
	}

	return nil, domain.ErrDetectionUnavailable.WithError(fmt.Errorf("all backends failed: %w", lastErr))
}

// suppressOverlaps applies non-max suppression: candidates are visited in
// descending confidence and dropped when too much of their area is covered
// by an already-accepted box.
func suppressOverlaps(candidates []domain.DetectedFace) []domain.DetectedFace {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	accepted := make([]domain.DetectedFace, 0, len(candidates))
	for _, cand := range candidates {
		keep := true
		for _, acc := range accepted {
			if cand.Box.OverlapRatio(acc.Box) > nmsOverlapRatio {
				keep = false
				break
			}
		}
		if keep {
			accepted = append(accepted, cand)
		}
	}
	return accepted
}
