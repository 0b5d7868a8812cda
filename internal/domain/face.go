package domain

import (
	"github.com/google/uuid"
)

// BoundingBox is a face region in source-image pixel coordinates.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area in pixels².
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Clip constrains the box to the image dimensions.
func (b BoundingBox) Clip(imageWidth, imageHeight float64) BoundingBox {
	x1 := max(b.X, 0)
	y1 := max(b.Y, 0)
	x2 := min(b.X+b.Width, imageWidth)
	y2 := min(b.Y+b.Height, imageHeight)
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// OverlapRatio returns intersection area divided by the area of b itself.
// Used for non-max suppression, where a candidate is dropped when too much
// of it is covered by an already-accepted, higher-confidence box.
func (b BoundingBox) OverlapRatio(other BoundingBox) float64 {
	area := b.Area()
	if area == 0 {
		return 0
	}

	x1 := max(b.X, other.X)
	y1 := max(b.Y, other.Y)
	x2 := min(b.X+b.Width, other.X+other.Width)
	y2 := min(b.Y+b.Height, other.Y+other.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	return (x2 - x1) * (y2 - y1) / area
}

// Landmark is a single facial keypoint in pixel coordinates. Backends
// report either 5 points (eyes, nose tip, mouth corners) or a 68-point set.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Indexes into a 5-point landmark set.
const (
	LandmarkLeftEye = iota
	LandmarkRightEye
	LandmarkNose
	LandmarkMouthLeft
	LandmarkMouthRight
)

// Quality is the coarse usability bucket assigned to a detected face
// before it is shown for human selection.
type Quality string

const (
	QualityUnset   Quality = ""
	QualityGood    Quality = "good"
	QualityPoor    Quality = "poor"
	QualityBlurry  Quality = "blurry"
	QualityProfile Quality = "profile"
)

// DetectedFace is one candidate face found in an input image. Quality and
// Embedding are filled in by later pipeline stages; the detector leaves
// them unset.
type DetectedFace struct {
	ID          uuid.UUID   `json:"id"`
	SourceImage string      `json:"source_image"`
	Box         BoundingBox `json:"bounding_box"`
	Landmarks   []Landmark  `json:"landmarks,omitempty"`
	Confidence  float64     `json:"confidence"`
	Quality     Quality     `json:"quality,omitempty"`
	Embedding   Embedding   `json:"-"`
}
