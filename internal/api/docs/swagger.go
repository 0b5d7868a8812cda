package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// BoundingBoxData represents a face bounding box in pixels
type BoundingBoxData struct {
	X      float64 `json:"x" example:"120"`
	Y      float64 `json:"y" example:"80"`
	Width  float64 `json:"width" example:"96"`
	Height float64 `json:"height" example:"96"`
}

// DetectedFaceData represents one candidate face found in a reference photo
type DetectedFaceData struct {
	ID          string          `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	SourceImage string          `json:"source_image" example:"selfie.jpg"`
	Box         BoundingBoxData `json:"bounding_box"`
	Confidence  float64         `json:"confidence" example:"0.97"`
	Quality     string          `json:"quality" example:"good"`
}

// CreateSessionResponse represents the response for session creation
type CreateSessionResponse struct {
	SessionID     string             `json:"session_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status        string             `json:"status" example:"awaiting_selection"`
	DetectedFaces []DetectedFaceData `json:"detected_faces"`
	CreatedAt     string             `json:"created_at" example:"2024-01-01T00:00:00Z"`
	TimeoutAt     string             `json:"timeout_at" example:"2024-01-01T03:00:00Z"`
}

// ResultSummaryData represents the per-index match digest
type ResultSummaryData struct {
	ModelID  string  `json:"model_id" example:"gala-2024"`
	Matches  int     `json:"matches" example:"17"`
	TopScore float64 `json:"top_score" example:"0.91"`
}

// SessionStatusResponse represents the polling response for a session
type SessionStatusResponse struct {
	SessionID     string              `json:"session_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status        string              `json:"status" example:"matching"`
	Progress      int                 `json:"progress_percent" example:"50"`
	CurrentStep   string              `json:"current_step" example:"matching against gala-2024"`
	QueuePosition int                 `json:"queue_position,omitempty" example:"2"`
	Results       []ResultSummaryData `json:"results_summary,omitempty"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	CompletedAt   string              `json:"completed_at,omitempty" example:"2024-01-01T00:12:00Z"`
}

// DetectionsResponse represents the detected faces of a session
type DetectionsResponse struct {
	SessionID string             `json:"session_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status    string             `json:"status" example:"awaiting_selection"`
	Faces     []DetectedFaceData `json:"faces"`
}

// SelectFacesRequest represents the face selection payload
type SelectFacesRequest struct {
	FaceIDs []string `json:"face_ids" example:"550e8400-e29b-41d4-a716-446655440000"`
}

// RebuildResponse represents the response for an index rebuild request
type RebuildResponse struct {
	JobID   string `json:"job_id" example:"b3c7a7de-6f3a-4a8e-9a6f-2f1d9f0b4c11"`
	ModelID string `json:"model_id" example:"gala-2024"`
	Status  string `json:"status" example:"running"`
}

// IndexStatData represents the summary of one published index
type IndexStatData struct {
	ModelID string `json:"model_id" example:"gala-2024"`
	Photos  int    `json:"photos" example:"1450"`
	Faces   int    `json:"faces" example:"5120"`
	Errors  int    `json:"errors" example:"3"`
	BuiltAt string `json:"built_at" example:"2024-01-01T00:00:00Z"`
}

// ListIndexesResponse represents the index listing
type ListIndexesResponse struct {
	Indexes []IndexStatData `json:"indexes"`
}

// BuildJobResponse represents the state of an asynchronous index build
type BuildJobResponse struct {
	ID        string `json:"id" example:"b3c7a7de-6f3a-4a8e-9a6f-2f1d9f0b4c11"`
	ModelID   string `json:"model_id" example:"gala-2024"`
	Status    string `json:"status" example:"running"`
	Processed int    `json:"processed" example:"320"`
	Total     int    `json:"total" example:"1450"`
	Photos    int    `json:"photos,omitempty" example:"1450"`
	Faces     int    `json:"faces,omitempty" example:"5120"`
	Error     string `json:"error,omitempty"`
	StartedAt string `json:"started_at" example:"2024-01-01T00:00:00Z"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status" example:"ok"`
	Version string `json:"version,omitempty" example:"0.1.0"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"BAD_REQUEST"`
	Message string `json:"message" example:"Invalid request"`
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "FaceFinder API",
		Version:     "v1.0.0",
		Description: "Self-service face matching over event photo corpora: upload reference photos, pick your face, download the photos you appear in",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// Session endpoints

		// POST /v1/sessions - Create matching session
		endpoint.New(
			endpoint.POST,
			"/sessions",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Start a matching session"),
			endpoint.WithDescription("Uploads reference photos, runs face detection and returns the candidate faces to choose from. One active session per identity; a new session supersedes the previous one."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CreateSessionResponse{}, "201", "Session created, faces detected"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "identity, target_indexes and photos are required"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in the supplied photos"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "DETECTION_UNAVAILABLE", Message: "Face detection service is unavailable"}, "503", "Service Unavailable"),
			}),
		),

		// GET /v1/sessions/:id - Poll session state
		endpoint.New(
			endpoint.GET,
			"/sessions/{id}",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Poll a session"),
			endpoint.WithDescription("Returns the session status, progress, queue position while queued and per-index match summaries once completed."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionStatusResponse{}, "200", "Session state"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Malformed session id"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Matching session not found"}, "404", "Not Found"),
			}),
		),

		// GET /v1/sessions/:id/detections - Detected faces
		endpoint.New(
			endpoint.GET,
			"/sessions/{id}/detections",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("List detected candidate faces"),
			endpoint.WithDescription("Returns the faces detected in the reference photos with their quality labels, for the selection UI."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DetectionsResponse{}, "200", "Detected faces"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Matching session not found"}, "404", "Not Found"),
			}),
		),

		// POST /v1/sessions/:id/faces - Select reference faces
		endpoint.New(
			endpoint.POST,
			"/sessions/{id}/faces",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Select reference faces"),
			endpoint.WithDescription("Chooses which detected faces belong to the user, extracts their embeddings and enqueues the session for matching."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionStatusResponse{}, "202", "Session queued for matching"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Matching session not found"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "SESSION_EXPIRED", Message: "Session timed out, start over"}, "410", "Gone"),
				response.New(ErrorResponse{Code: "INVALID_SELECTION", Message: "Selected face ids do not belong to this session"}, "422", "Unprocessable Entity"),
			}),
		),

		// GET /v1/sessions/:id/results/:model - Download results
		endpoint.New(
			endpoint.GET,
			"/sessions/{id}/results/{model}",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Download the result archive"),
			endpoint.WithDescription("Streams a zip with the matched photos for one corpus plus a matches.json manifest. Only available once the session is completed."),
			endpoint.WithProduce([]mime.MIME{mime.MIME("application/zip")}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session UUID")),
				parameter.StrParam("model", parameter.Path, parameter.WithDescription("Corpus model id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "200", "Zip archive"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "SESSION_NOT_COMPLETED", Message: "Results only available for completed sessions"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "SESSION_EXPIRED", Message: "Session timed out, start over"}, "410", "Gone"),
				response.New(ErrorResponse{Code: "INDEX_NOT_FOUND", Message: "No results for this corpus"}, "404", "Not Found"),
			}),
		),

		// Admin endpoints

		// POST /v1/admin/indexes/:model/rebuild - Rebuild corpus index
		endpoint.New(
			endpoint.POST,
			"/admin/indexes/{model}/rebuild",
			endpoint.WithTags("Admin"),
			endpoint.WithSummary("Rebuild a corpus index"),
			endpoint.WithDescription("Starts an asynchronous build over the corpus photo directory and returns a job id to poll."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("model", parameter.Path, parameter.WithDescription("Corpus model id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RebuildResponse{}, "202", "Build started"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "NOT_FOUND", Message: "No photo directory for this model"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "BUILD_IN_PROGRESS", Message: "A build for this corpus is already running"}, "409", "Conflict"),
			}),
		),

		// GET /v1/admin/indexes - List published indexes
		endpoint.New(
			endpoint.GET,
			"/admin/indexes",
			endpoint.WithTags("Admin"),
			endpoint.WithSummary("List published indexes"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ListIndexesResponse{}, "200", "Published indexes"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error"),
			}),
		),

		// GET /v1/admin/indexes/builds/:id - Poll a build job
		endpoint.New(
			endpoint.GET,
			"/admin/indexes/builds/{id}",
			endpoint.WithTags("Admin"),
			endpoint.WithSummary("Poll an index build job"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Build job id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(BuildJobResponse{}, "200", "Build job state"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "NOT_FOUND", Message: "Unknown build job"}, "404", "Not Found"),
			}),
		),

		// DELETE /v1/admin/indexes/:model - Remove a published index
		endpoint.New(
			endpoint.DELETE,
			"/admin/indexes/{model}",
			endpoint.WithTags("Admin"),
			endpoint.WithSummary("Delete a published index"),
			endpoint.WithParams(
				parameter.StrParam("model", parameter.Path, parameter.WithDescription("Corpus model id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Index deleted"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "INDEX_NOT_FOUND", Message: "Face index not found"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "BUILD_IN_PROGRESS", Message: "A build for this corpus is already running"}, "409", "Conflict"),
			}),
		),

		// Health endpoints

		// GET /health - Liveness
		endpoint.New(
			endpoint.GET,
			"/health",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Liveness check"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Service is up"),
			}),
		),

		// GET /ready - Readiness
		endpoint.New(
			endpoint.GET,
			"/ready",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Readiness check"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{Status: "ready"}, "200", "Service is ready"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(HealthResponse{Status: "degraded"}, "503", "Database unreachable"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
