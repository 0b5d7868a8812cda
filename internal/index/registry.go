package index

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventsnap/facefinder/internal/domain"
)

// BuildStatus is the lifecycle of an asynchronous index build.
type BuildStatus string

const (
	BuildRunning   BuildStatus = "running"
	BuildCompleted BuildStatus = "completed"
	BuildFailed    BuildStatus = "failed"
)

// BuildJob is a snapshot of one build's state, safe to hand to callers.
type BuildJob struct {
	ID        string      `json:"id"`
	ModelID   string      `json:"model_id"`
	Status    BuildStatus `json:"status"`
	Processed int         `json:"processed"`
	Total     int         `json:"total"`
	Photos    int         `json:"photos,omitempty"`
	Faces     int         `json:"faces,omitempty"`
	Skipped   []FileError `json:"skipped,omitempty"`
	Error     string      `json:"error,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}

// Registry tracks in-flight and recently finished index builds so the
// rebuild endpoint can return immediately and clients can poll. State is
// process-local; a restart forgets finished jobs, which is acceptable
// because artifacts on disk are the durable output.
type Registry struct {
	mu      sync.Mutex
	jobs    map[string]*BuildJob
	byModel map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs:    make(map[string]*BuildJob),
		byModel: make(map[string]string),
	}
}

// Begin registers a new build for modelID. Only one build per model may
// run at a time; a second attempt gets ErrBuildInProgress.
func (r *Registry) Begin(modelID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if jobID, ok := r.byModel[modelID]; ok {
		if job := r.jobs[jobID]; job != nil && job.Status == BuildRunning {
			return "", domain.ErrBuildInProgress
		}
	}

	id := uuid.NewString()
	r.jobs[id] = &BuildJob{
		ID:        id,
		ModelID:   modelID,
		Status:    BuildRunning,
		StartedAt: time.Now(),
	}
	r.byModel[modelID] = id
	return id, nil
}

// Advance records build progress on a running job.
func (r *Registry) Advance(jobID string, p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[jobID]; ok && job.Status == BuildRunning {
		job.Processed = p.Processed
		job.Total = p.Total
	}
}

// Complete marks the job finished and copies the build outcome onto it.
func (r *Registry) Complete(jobID string, idx *Index) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return
	}
	now := time.Now()
	job.Status = BuildCompleted
	job.Photos = len(idx.ByPhoto)
	job.Faces = idx.FaceCount()
	job.Skipped = idx.Errors
	job.EndedAt = &now
}

// Fail marks the job failed with the given cause.
func (r *Registry) Fail(jobID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return
	}
	now := time.Now()
	job.Status = BuildFailed
	job.Error = err.Error()
	job.EndedAt = &now
}

// Get returns a copy of the job, or ErrNotFound for an unknown id.
func (r *Registry) Get(jobID string) (BuildJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return BuildJob{}, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

// ForModel returns the most recent job registered for modelID.
func (r *Registry) ForModel(modelID string) (BuildJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobID, ok := r.byModel[modelID]
	if !ok {
		return BuildJob{}, false
	}
	job, ok := r.jobs[jobID]
	if !ok {
		return BuildJob{}, false
	}
	return cloneJob(job), true
}

func cloneJob(job *BuildJob) BuildJob {
	out := *job
	if job.Skipped != nil {
		out.Skipped = append([]FileError(nil), job.Skipped...)
	}
	return out
}
