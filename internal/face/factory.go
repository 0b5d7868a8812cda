package face

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eventsnap/facefinder/internal/config"
	"github.com/eventsnap/facefinder/internal/provider"
	"github.com/eventsnap/facefinder/internal/provider/insight"
	"github.com/eventsnap/facefinder/internal/provider/rekognition"
)

// NewPipeline wires the detector chain and the extractor from config.
//
// The InsightFace serving process is always the primary detection backend
// and the only embedding backbone: every embedding in every index comes
// from it, so swapping backbones invalidates the corpus. AWS Rekognition
// is an optional, detection-only fallback ranked behind it.
//
// Environment variables:
//   - INSIGHT_URL: InsightFace serving URL (default "http://localhost:18081")
//   - INSIGHT_MODEL: model pack name (default "buffalo_l")
//   - REKOGNITION_FALLBACK: "true" to rank Rekognition behind InsightFace
//   - AWS_REGION + AWS credential chain: used when the fallback is enabled
func NewPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Detector, *Extractor, error) {
	insightCfg := insight.DefaultConfig()
	if cfg.InsightURL != "" {
		insightCfg.BaseURL = cfg.InsightURL
	}
	if cfg.InsightModel != "" {
		insightCfg.Model = cfg.InsightModel
	}
	primary := insight.NewBackend(insightCfg)

	backends := []provider.DetectionBackend{primary}

	if cfg.RekognitionFallback {
		rekogCfg := rekognition.DefaultConfig()
		rekogCfg.Region = cfg.AWSRegion
		fallback, err := rekognition.NewBackend(ctx, rekogCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("create rekognition fallback: %w", err)
		}
		backends = append(backends, fallback)
	}

	detector := NewDetector(backends, logger, cfg.OperationTimeout)
	extractor := NewExtractor(primary, logger, cfg.OperationTimeout)
	return detector, extractor, nil
}
