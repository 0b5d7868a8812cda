// Package provider defines the contracts for face detection and embedding
// backends. Backends are model-backed services (local ONNX serving, cloud
// APIs); the pipeline in internal/face composes them and owns the
// fixed-512 embedding contract.
package provider

import (
	"context"
	"errors"
)

// Backend availability errors. Backends wrap these so callers can tell
// "the service is down" apart from "the image has no faces"; an empty
// detection result is never expressed as an error.
var (
	ErrBackendUnavailable = errors.New("face backend unavailable")
	ErrInvalidImage       = errors.New("invalid image for face backend")
)

// RawFace is a detection candidate as reported by a backend, before
// non-max suppression, clipping and quality assessment.
type RawFace struct {
	// Box in source-image pixel coordinates (x, y, width, height).
	Box [4]float64
	// Landmarks in pixel coordinates; 5-point or 68-point sets.
	Landmarks [][2]float64
	// Confidence in [0,1].
	Confidence float64
}

// DetectionBackend finds candidate face regions in an encoded image.
// Implementations return an empty slice when no faces are present and an
// error wrapping ErrBackendUnavailable when the backend itself fails.
type DetectionBackend interface {
	Name() string
	Detect(ctx context.Context, image []byte) ([]RawFace, error)
}

// EmbeddingBackend turns an aligned face crop into a feature vector of the
// backbone's native dimensionality. The caller normalizes to the pipeline's
// fixed 512 dimensions; backends never fabricate vectors on failure.
type EmbeddingBackend interface {
	Name() string
	Embed(ctx context.Context, crop []byte) ([]float32, error)
}
