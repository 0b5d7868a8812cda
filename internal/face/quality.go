package face

import (
	"math"

	"github.com/eventsnap/facefinder/internal/domain"
)

// Quality thresholds, tuned against the buffalo_l detector on event-photo
// corpora.
const (
	// minFaceAreaRatio disqualifies faces smaller than 1% of the image.
	minFaceAreaRatio = 0.01
	// maxAsymmetryRatio is the nose-to-eye horizontal asymmetry, as a
	// fraction of inter-eye distance, beyond which the head is turned away.
	maxAsymmetryRatio = 0.3
	// minLandmarkSpread is the empirical floor for mean adjacent-landmark
	// distance in pixels; below it the detection is too soft to be a crisp
	// face.
	minLandmarkSpread = 5.0
)

// Assess classifies a detected face into a usability bucket. Checks run in
// a fixed order and the first hit wins: a too-small face is disqualified
// before its pose or sharpness is even considered. Pure function; inputs
// are not mutated.
func Assess(face domain.DetectedFace, imageWidth, imageHeight int) domain.Quality {
	imageArea := float64(imageWidth) * float64(imageHeight)
	if imageArea <= 0 {
		return domain.QualityPoor
	}

	if face.Box.Area()/imageArea < minFaceAreaRatio {
		return domain.QualityPoor
	}

	if isProfile(face.Landmarks) {
		return domain.QualityProfile
	}

	if isBlurry(face.Landmarks) {
		return domain.QualityBlurry
	}

	return domain.QualityGood
}

// isProfile compares the horizontal nose-to-eye distances: on a frontal
// face the nose tip sits roughly midway between the eyes, so a large
// imbalance relative to the inter-eye distance means the head is turned.
func isProfile(landmarks []domain.Landmark) bool {
	if len(landmarks) < 3 {
		return false // not enough geometry to judge pose
	}

	leftEye := landmarks[domain.LandmarkLeftEye]
	rightEye := landmarks[domain.LandmarkRightEye]
	nose := landmarks[domain.LandmarkNose]

	eyeDistance := math.Abs(leftEye.X - rightEye.X)
	if eyeDistance == 0 {
		return false
	}

	noseToLeft := math.Abs(nose.X - leftEye.X)
	noseToRight := math.Abs(nose.X - rightEye.X)
	return math.Abs(noseToLeft-noseToRight)/eyeDistance > maxAsymmetryRatio
}

// isBlurry uses landmark spread as a sharpness proxy: a soft detection
// collapses keypoints toward each other, so a low mean adjacent-point
// distance signals an out-of-focus face.
func isBlurry(landmarks []domain.Landmark) bool {
	if len(landmarks) < 2 {
		return false
	}

	var total float64
	for i := 1; i < len(landmarks); i++ {
		dx := landmarks[i].X - landmarks[i-1].X
		dy := landmarks[i].Y - landmarks[i-1].Y
		total += math.Sqrt(dx*dx + dy*dy)
	}

	return total/float64(len(landmarks)-1) < minLandmarkSpread
}
