package insight

// DetectRequest for POST /detect
type DetectRequest struct {
	Img   string `json:"img"`   // base64 encoded image
	Model string `json:"model"` // "buffalo_l", "buffalo_s", etc
}

// DetectResponse from POST /detect
type DetectResponse struct {
	Faces []DetectedFace `json:"faces"`
}

// DetectedFace mirrors one InsightFace detection result: bbox corners,
// five keypoints and the detector score.
type DetectedFace struct {
	BBox  [4]float64   `json:"bbox"` // x1, y1, x2, y2
	KPS   [][2]float64 `json:"kps"`  // left eye, right eye, nose, mouth corners
	Score float64      `json:"det_score"`
}

// EmbedRequest for POST /embed
type EmbedRequest struct {
	Img   string `json:"img"`
	Model string `json:"model"`
}

// EmbedResponse from POST /embed
type EmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}
