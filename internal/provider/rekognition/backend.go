package rekognition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"

	"github.com/eventsnap/facefinder/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

const (
	errCodeAccessDenied  = "AccessDeniedException"
	errCodeThrottling    = "ThrottlingException"
	errCodeInvalidParam  = "InvalidParameterException"
	errCodeInvalidFormat = "InvalidImageFormatException"
)

// detectFacesAPI is the slice of the Rekognition client the backend needs.
type detectFacesAPI interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// Backend is a detection-only backend on AWS Rekognition DetectFaces. It
// deliberately implements no embedding: corpus and reference embeddings
// must all come from the same backbone to stay comparable, so Rekognition
// only serves as a fallback for finding face regions.
type Backend struct {
	api    detectFacesAPI
	config Config
}

var _ provider.DetectionBackend = (*Backend)(nil)

// NewBackend creates a Rekognition backend using the AWS default
// credential chain.
func NewBackend(ctx context.Context, cfg Config) (*Backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Backend{
		api:    rekognition.NewFromConfig(awsCfg),
		config: cfg,
	}, nil
}

func (b *Backend) Name() string { return "rekognition" }

// validateImage checks if image data is valid for Rekognition processing
func validateImage(img []byte) error {
	if len(img) == 0 {
		return ErrInvalidImage
	}
	if len(img) < minImageSize {
		return fmt.Errorf("%w: image too small (%d bytes, minimum %d)", ErrInvalidImage, len(img), minImageSize)
	}
	if len(img) > maxImageSize {
		return fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(img), maxImageSize)
	}
	return nil
}

// Detect finds faces via the DetectFaces API. Rekognition reports boxes
// and landmarks relative to the image dimensions, so the image header is
// decoded locally to map them back to pixels.
func (b *Backend) Detect(ctx context.Context, img []byte) ([]provider.RawFace, error) {
	if err := validateImage(img); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidImage, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable image: %v", provider.ErrInvalidImage, err)
	}
	width := float64(cfg.Width)
	height := float64(cfg.Height)

	input := &rekognition.DetectFacesInput{
		Image: &types.Image{
			Bytes: img,
		},
		Attributes: []types.Attribute{types.AttributeDefault},
	}

	output, err := b.api.DetectFaces(ctx, input)
	if err != nil {
		return nil, classifyAWSError(err)
	}

	faces := make([]provider.RawFace, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		confidence := 0.0
		if detail.Confidence != nil {
			confidence = float64(*detail.Confidence)
		}
		if confidence < b.config.MinConfidence {
			continue
		}

		face := provider.RawFace{
			Confidence: confidence / 100,
		}
		if detail.BoundingBox != nil {
			face.Box = [4]float64{
				float64(*detail.BoundingBox.Left) * width,
				float64(*detail.BoundingBox.Top) * height,
				float64(*detail.BoundingBox.Width) * width,
				float64(*detail.BoundingBox.Height) * height,
			}
		}
		face.Landmarks = mapLandmarks(detail.Landmarks, width, height)

		faces = append(faces, face)
	}

	return faces, nil
}

// mapLandmarks extracts the 5-point set the quality assessor understands,
// in the pipeline's fixed order: left eye, right eye, nose, mouth corners.
func mapLandmarks(landmarks []types.Landmark, width, height float64) [][2]float64 {
	wanted := []types.LandmarkType{
		types.LandmarkTypeEyeLeft,
		types.LandmarkTypeEyeRight,
		types.LandmarkTypeNose,
		types.LandmarkTypeMouthLeft,
		types.LandmarkTypeMouthRight,
	}

	byType := make(map[types.LandmarkType][2]float64, len(landmarks))
	for _, lm := range landmarks {
		if lm.X == nil || lm.Y == nil {
			continue
		}
		byType[lm.Type] = [2]float64{float64(*lm.X) * width, float64(*lm.Y) * height}
	}

	out := make([][2]float64, 0, len(wanted))
	for _, typ := range wanted {
		point, ok := byType[typ]
		if !ok {
			// Partial landmark sets are useless for pose/blur checks.
			return nil
		}
		out = append(out, point)
	}
	return out
}

// classifyAWSError maps AWS API failures into the backend error taxonomy.
func classifyAWSError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case errCodeAccessDenied:
			return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		case errCodeThrottling:
			return fmt.Errorf("%w: %v", ErrThrottled, err)
		case errCodeInvalidParam, errCodeInvalidFormat:
			return fmt.Errorf("%w: %v", provider.ErrInvalidImage, err)
		}
	}
	return fmt.Errorf("%w: detect faces: %v", provider.ErrBackendUnavailable, err)
}
