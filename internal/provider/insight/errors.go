package insight

import "errors"

var (
	ErrServingUnavailable = errors.New("insightface serving unavailable")
	ErrInvalidResponse    = errors.New("invalid response from insightface serving")
	ErrEmptyEmbedding     = errors.New("insightface serving returned no embedding")
)
