package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/eventsnap/facefinder/internal/domain"
	"github.com/eventsnap/facefinder/internal/session"
)

const (
	maxPhotoSize = 10 * 1024 * 1024 // 10MB
	maxPhotos    = 5
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/bmp":  true,
}

// SessionService interface for the session flow
type SessionService interface {
	Create(ctx context.Context, identity string, uploads []session.Upload, targetIndexes []string, threshold *float64) (*domain.Session, error)
	SelectFaces(ctx context.Context, sessionID uuid.UUID, faceIDs []uuid.UUID) (*domain.Session, error)
	Status(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error)
	Results(ctx context.Context, sessionID uuid.UUID, modelID string, w io.Writer) error
}

// SessionHandler handles matching-session requests
type SessionHandler struct {
	service SessionService
	logger  *slog.Logger
}

// NewSessionHandler creates a new SessionHandler instance
func NewSessionHandler(service SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger,
	}
}

// FaceResponse is one detected candidate face
type FaceResponse struct {
	ID          string             `json:"id"`
	SourceImage string             `json:"source_image"`
	Box         domain.BoundingBox `json:"bounding_box"`
	Confidence  float64            `json:"confidence"`
	Quality     string             `json:"quality"`
}

// CreateSessionResponse response for session creation
type CreateSessionResponse struct {
	SessionID     string         `json:"session_id"`
	Status        string         `json:"status"`
	DetectedFaces []FaceResponse `json:"detected_faces"`
	CreatedAt     string         `json:"created_at"`
	TimeoutAt     string         `json:"timeout_at"`
}

// StatusResponse response for session polling
type StatusResponse struct {
	SessionID     string                 `json:"session_id"`
	Status        string                 `json:"status"`
	Progress      int                    `json:"progress_percent"`
	CurrentStep   string                 `json:"current_step"`
	QueuePosition int                    `json:"queue_position,omitempty"`
	Results       []domain.ResultSummary `json:"results_summary,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	CompletedAt   string                 `json:"completed_at,omitempty"`
}

// DetectionsResponse response for the detections endpoint
type DetectionsResponse struct {
	SessionID string         `json:"session_id"`
	Status    string         `json:"status"`
	Faces     []FaceResponse `json:"faces"`
}

// SelectFacesRequest request body for face selection
type SelectFacesRequest struct {
	FaceIDs []string `json:"face_ids"`
}

// Create POST /v1/sessions - start a matching session
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	identity := strings.TrimSpace(c.FormValue("identity"))
	if identity == "" {
		return domain.ErrBadRequest.WithError(errors.New("identity is required"))
	}

	targetIndexes := splitList(c.FormValue("target_indexes"))
	if len(targetIndexes) == 0 {
		return domain.ErrBadRequest.WithError(errors.New("target_indexes is required"))
	}

	threshold, err := parseThreshold(c.FormValue("threshold"))
	if err != nil {
		return err
	}

	uploads, err := extractPhotos(c)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	sess, err := h.service.Create(c.Context(), identity, uploads, targetIndexes, threshold)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(CreateSessionResponse{
		SessionID:     sess.ID.String(),
		Status:        string(sess.Status),
		DetectedFaces: faceResponses(sess.DetectedFaces),
		CreatedAt:     sess.CreatedAt.Format("2006-01-02T15:04:05Z"),
		TimeoutAt:     sess.TimeoutAt.Format("2006-01-02T15:04:05Z"),
	})
}

// Status GET /v1/sessions/:id - poll session state
func (h *SessionHandler) Status(c *fiber.Ctx) error {
	sessionID, err := parseSessionID(c)
	if err != nil {
		return err
	}

	sess, err := h.service.Status(c.Context(), sessionID)
	if err != nil {
		return err
	}

	return c.JSON(statusResponse(sess))
}

// Detections GET /v1/sessions/:id/detections - candidate faces for selection
func (h *SessionHandler) Detections(c *fiber.Ctx) error {
	sessionID, err := parseSessionID(c)
	if err != nil {
		return err
	}

	sess, err := h.service.Status(c.Context(), sessionID)
	if err != nil {
		return err
	}

	return c.JSON(DetectionsResponse{
		SessionID: sess.ID.String(),
		Status:    string(sess.Status),
		Faces:     faceResponses(sess.DetectedFaces),
	})
}

// SelectFaces POST /v1/sessions/:id/faces - choose reference faces
func (h *SessionHandler) SelectFaces(c *fiber.Ctx) error {
	sessionID, err := parseSessionID(c)
	if err != nil {
		return err
	}

	var req SelectFacesRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	faceIDs := make([]uuid.UUID, 0, len(req.FaceIDs))
	for _, raw := range req.FaceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return domain.ErrInvalidSelection.WithError(fmt.Errorf("face id %q: %w", raw, err))
		}
		faceIDs = append(faceIDs, id)
	}

	sess, err := h.service.SelectFaces(c.Context(), sessionID, faceIDs)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(statusResponse(sess))
}

// Results GET /v1/sessions/:id/results/:model - download the result zip
func (h *SessionHandler) Results(c *fiber.Ctx) error {
	sessionID, err := parseSessionID(c)
	if err != nil {
		return err
	}

	modelID := strings.TrimSpace(c.Params("model"))
	if modelID == "" {
		return domain.ErrBadRequest.WithError(errors.New("model is required"))
	}

	var buf bytes.Buffer
	if err := h.service.Results(c.Context(), sessionID, modelID, &buf); err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="matches_%s.zip"`, modelID))
	return c.Send(buf.Bytes())
}

func statusResponse(sess *domain.Session) StatusResponse {
	resp := StatusResponse{
		SessionID:     sess.ID.String(),
		Status:        string(sess.Status),
		Progress:      sess.Progress,
		CurrentStep:   sess.CurrentStep,
		QueuePosition: sess.QueuePosition,
		Results:       sess.Summaries(),
		ErrorMessage:  sess.ErrorMessage,
	}
	if sess.CompletedAt != nil {
		resp.CompletedAt = sess.CompletedAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func faceResponses(faces []domain.DetectedFace) []FaceResponse {
	out := make([]FaceResponse, 0, len(faces))
	for _, f := range faces {
		out = append(out, FaceResponse{
			ID:          f.ID.String(),
			SourceImage: f.SourceImage,
			Box:         f.Box,
			Confidence:  f.Confidence,
			Quality:     string(f.Quality),
		})
	}
	return out
}

func parseSessionID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, domain.ErrBadRequest.WithError(fmt.Errorf("session id: %w", err))
	}
	return id, nil
}

func parseThreshold(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.ErrInvalidThreshold.WithError(err)
	}
	return &v, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// extractPhotos reads and validates the uploaded reference photos
func extractPhotos(c *fiber.Ctx) ([]session.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, domain.ErrBadRequest.WithError(err)
	}

	files := form.File["photos"]
	if len(files) == 0 {
		return nil, domain.ErrBadRequest.WithError(errors.New("at least one photo is required"))
	}
	if len(files) > maxPhotos {
		return nil, domain.ErrBadRequest.WithError(fmt.Errorf("at most %d photos allowed", maxPhotos))
	}

	uploads := make([]session.Upload, 0, len(files))
	for _, file := range files {
		if file.Size == 0 || file.Size > maxPhotoSize {
			return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("photo %s", file.Filename))
		}

		contentType := file.Header.Get("Content-Type")
		if !validImageTypes[contentType] {
			return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("photo %s: content type %s", file.Filename, contentType))
		}

		f, err := file.Open()
		if err != nil {
			return nil, domain.ErrInvalidImage.WithError(err)
		}

		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, domain.ErrInvalidImage.WithError(err)
		}

		uploads = append(uploads, session.Upload{Name: file.Filename, Data: data})
	}

	return uploads, nil
}
