package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/eventsnap/facefinder/internal/domain"
)

// Manager ties the builder, artifact store and build registry together
// behind the admin surface. Rebuilds run in the background; the returned
// job id is polled through Job.
type Manager struct {
	builder   *Builder
	store     *Store
	registry  *Registry
	photoRoot string
	logger    *slog.Logger
}

// NewManager creates a manager. Each model's corpus is expected under
// photoRoot/<modelID>.
func NewManager(builder *Builder, store *Store, registry *Registry, photoRoot string, logger *slog.Logger) *Manager {
	return &Manager{
		builder:   builder,
		store:     store,
		registry:  registry,
		photoRoot: photoRoot,
		logger:    logger,
	}
}

// Rebuild starts an asynchronous build of modelID's corpus and returns
// the build job id. At most one build per model runs at a time.
func (m *Manager) Rebuild(ctx context.Context, modelID string) (string, error) {
	if !validModelID(modelID) {
		return "", domain.ErrBadRequest.WithError(fmt.Errorf("invalid model id %q", modelID))
	}

	dir := filepath.Join(m.photoRoot, modelID)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", domain.ErrNotFound.WithError(fmt.Errorf("no photo directory for model %s", modelID))
	}

	jobID, err := m.registry.Begin(modelID)
	if err != nil {
		return "", err
	}

	// The build outlives the request; the registry is how callers watch it.
	go m.run(jobID, modelID, dir)

	return jobID, nil
}

func (m *Manager) run(jobID, modelID, dir string) {
	log := m.logger.With(
		slog.String("job_id", jobID),
		slog.String("model_id", modelID),
	)

	idx, err := m.builder.Build(context.Background(), modelID, dir, func(p Progress) {
		m.registry.Advance(jobID, p)
	})
	if err != nil {
		log.Error("index build failed", slog.Any("error", err))
		m.registry.Fail(jobID, err)
		return
	}

	if err := m.store.Save(idx); err != nil {
		log.Error("index publish failed", slog.Any("error", err))
		m.registry.Fail(jobID, err)
		return
	}

	m.registry.Complete(jobID, idx)
	log.Info("index build completed",
		slog.Int("photos", len(idx.ByPhoto)),
		slog.Int("faces", idx.FaceCount()),
	)
}

// Job returns a snapshot of the build job, or domain.ErrNotFound.
func (m *Manager) Job(jobID string) (BuildJob, error) {
	return m.registry.Get(jobID)
}

// List returns stats for all published indexes.
func (m *Manager) List() ([]Stat, error) {
	return m.store.List()
}

// Delete removes a published index. A model whose build is still running
// cannot be deleted.
func (m *Manager) Delete(modelID string) error {
	if job, ok := m.registry.ForModel(modelID); ok && job.Status == BuildRunning {
		return domain.ErrBuildInProgress
	}
	return m.store.Delete(modelID)
}
