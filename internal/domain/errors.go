package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Is lets errors.Is match wrapped copies produced by WithError against the
// predefined sentinel values below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "Matching session not found",
		StatusCode: 404,
	}

	ErrSessionExpired = &AppError{
		Code:       "SESSION_EXPIRED",
		Message:    "Matching session timed out before completion, please start over",
		StatusCode: 410,
	}

	ErrSessionNotCompleted = &AppError{
		Code:       "SESSION_NOT_COMPLETED",
		Message:    "Results are only available for completed sessions",
		StatusCode: 409,
	}

	ErrSessionTerminal = &AppError{
		Code:       "SESSION_TERMINAL",
		Message:    "Session has already reached a terminal state",
		StatusCode: 409,
	}

	ErrInvalidSelection = &AppError{
		Code:       "INVALID_SELECTION",
		Message:    "Selected face ids do not belong to this session",
		StatusCode: 422,
	}

	ErrDetectionUnavailable = &AppError{
		Code:       "DETECTION_UNAVAILABLE",
		Message:    "Face detection service is unavailable, try again shortly",
		StatusCode: 503,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the supplied photos, upload a clearer photo",
		StatusCode: 422,
	}

	ErrExtractionFailed = &AppError{
		Code:       "EXTRACTION_FAILED",
		Message:    "Could not compute a face embedding from the selected face",
		StatusCode: 500,
	}

	ErrIndexUnavailable = &AppError{
		Code:       "INDEX_UNAVAILABLE",
		Message:    "Requested face index is missing or unreadable",
		StatusCode: 503,
	}

	ErrIndexNotFound = &AppError{
		Code:       "INDEX_NOT_FOUND",
		Message:    "Face index not found",
		StatusCode: 404,
	}

	ErrBuildInProgress = &AppError{
		Code:       "BUILD_IN_PROGRESS",
		Message:    "An index build for this corpus is already running",
		StatusCode: 409,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrInvalidEmbedding = &AppError{
		Code:       "INVALID_EMBEDDING",
		Message:    "Embedding has wrong dimensionality or zero magnitude",
		StatusCode: 422,
	}

	ErrInvalidThreshold = &AppError{
		Code:       "INVALID_THRESHOLD",
		Message:    "Threshold must be between -1 and 1",
		StatusCode: 422,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, slow down",
		StatusCode: 429,
	}
)
