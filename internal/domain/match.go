package domain

// FaceMatch is one corpus face that scored at or above the similarity
// threshold against the reference embedding.
type FaceMatch struct {
	Box        BoundingBox `json:"bounding_box"`
	Similarity float64     `json:"similarity"`
}

// MatchResult aggregates all matching faces of a single corpus photo.
// A photo produces at most one MatchResult regardless of how many of its
// faces matched; BestSimilarity is the maximum over Faces.
type MatchResult struct {
	PhotoID        string      `json:"photo_id"`
	BestSimilarity float64     `json:"best_similarity"`
	Faces          []FaceMatch `json:"faces"`
}

// ResultSummary is the per-index digest exposed through session polling.
type ResultSummary struct {
	ModelID  string  `json:"model_id"`
	Matches  int     `json:"matches"`
	TopScore float64 `json:"top_score"`
}
