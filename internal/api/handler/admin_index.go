package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/eventsnap/facefinder/internal/domain"
	"github.com/eventsnap/facefinder/internal/index"
)

// IndexAdmin interface for corpus index management
type IndexAdmin interface {
	Rebuild(ctx context.Context, modelID string) (string, error)
	Job(jobID string) (index.BuildJob, error)
	List() ([]index.Stat, error)
	Delete(modelID string) error
}

// IndexHandler handles admin index requests
type IndexHandler struct {
	admin  IndexAdmin
	logger *slog.Logger
}

// NewIndexHandler creates a new IndexHandler instance
func NewIndexHandler(admin IndexAdmin, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{
		admin:  admin,
		logger: logger,
	}
}

// RebuildResponse response for the rebuild endpoint
type RebuildResponse struct {
	JobID   string `json:"job_id"`
	ModelID string `json:"model_id"`
	Status  string `json:"status"`
}

// ListIndexesResponse response for the index listing endpoint
type ListIndexesResponse struct {
	Indexes []index.Stat `json:"indexes"`
}

// Rebuild POST /v1/admin/indexes/:model/rebuild - start an index build
func (h *IndexHandler) Rebuild(c *fiber.Ctx) error {
	modelID, err := parseModelID(c)
	if err != nil {
		return err
	}

	jobID, err := h.admin.Rebuild(c.Context(), modelID)
	if err != nil {
		return err
	}

	h.logger.Info("index rebuild started",
		slog.String("model_id", modelID),
		slog.String("job_id", jobID),
	)

	return c.Status(fiber.StatusAccepted).JSON(RebuildResponse{
		JobID:   jobID,
		ModelID: modelID,
		Status:  string(index.BuildRunning),
	})
}

// List GET /v1/admin/indexes - list published indexes
func (h *IndexHandler) List(c *fiber.Ctx) error {
	stats, err := h.admin.List()
	if err != nil {
		return err
	}

	return c.JSON(ListIndexesResponse{Indexes: stats})
}

// Job GET /v1/admin/indexes/builds/:id - poll a build job
func (h *IndexHandler) Job(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("id"))
	if jobID == "" {
		return domain.ErrBadRequest.WithError(errors.New("job id is required"))
	}

	job, err := h.admin.Job(jobID)
	if err != nil {
		return err
	}

	return c.JSON(job)
}

// Delete DELETE /v1/admin/indexes/:model - remove a published index
func (h *IndexHandler) Delete(c *fiber.Ctx) error {
	modelID, err := parseModelID(c)
	if err != nil {
		return err
	}

	if err := h.admin.Delete(modelID); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func parseModelID(c *fiber.Ctx) (string, error) {
	modelID := strings.TrimSpace(c.Params("model"))
	if modelID == "" {
		return "", domain.ErrBadRequest.WithError(errors.New("model is required"))
	}
	return modelID, nil
}
