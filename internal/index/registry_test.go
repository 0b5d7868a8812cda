package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventsnap/facefinder/internal/domain"
)

func TestRegistrySingleBuildPerModel(t *testing.T) {
	reg := NewRegistry()

	jobID, err := reg.Begin("corpus")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	_, err = reg.Begin("corpus")
	assert.ErrorIs(t, err, domain.ErrBuildInProgress)

	// A different model is unaffected.
	_, err = reg.Begin("other")
	assert.NoError(t, err)

	// Once finished, the model can be rebuilt.
	reg.Fail(jobID, errors.New("backend down"))
	_, err = reg.Begin("corpus")
	assert.NoError(t, err)
}

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()

	jobID, err := reg.Begin("corpus")
	require.NoError(t, err)

	job, err := reg.Get(jobID)
	require.NoError(t, err)
	assert.Equal(t, BuildRunning, job.Status)
	assert.Equal(t, "corpus", job.ModelID)
	assert.Nil(t, job.EndedAt)

	reg.Advance(jobID, Progress{Processed: 5, Total: 20, Current: "e.jpg"})
	job, err = reg.Get(jobID)
	require.NoError(t, err)
	assert.Equal(t, 5, job.Processed)
	assert.Equal(t, 20, job.Total)

	idx := New("corpus", "/photos/corpus")
	idx.ByPhoto["a.jpg"] = Entry{PhotoID: "a.jpg", Faces: []IndexedFace{{}, {}}}
	idx.Errors = []FileError{{Path: "bad.jpg", Error: "unreadable"}}
	reg.Complete(jobID, idx)

	job, err = reg.Get(jobID)
	require.NoError(t, err)
	assert.Equal(t, BuildCompleted, job.Status)
	assert.Equal(t, 1, job.Photos)
	assert.Equal(t, 2, job.Faces)
	assert.Len(t, job.Skipped, 1)
	require.NotNil(t, job.EndedAt)

	// Progress updates after completion are ignored.
	reg.Advance(jobID, Progress{Processed: 99, Total: 99})
	job, err = reg.Get(jobID)
	require.NoError(t, err)
	assert.Equal(t, 5, job.Processed)
}

func TestRegistryFail(t *testing.T) {
	reg := NewRegistry()

	jobID, err := reg.Begin("corpus")
	require.NoError(t, err)
	reg.Fail(jobID, errors.New("corpus dir missing"))

	job, err := reg.Get(jobID)
	require.NoError(t, err)
	assert.Equal(t, BuildFailed, job.Status)
	assert.Equal(t, "corpus dir missing", job.Error)
}

func TestRegistryGetUnknown(t *testing.T) {
	_, err := NewRegistry().Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistryForModelTracksLatest(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.ForModel("corpus")
	assert.False(t, ok)

	first, err := reg.Begin("corpus")
	require.NoError(t, err)
	reg.Fail(first, errors.New("oops"))

	second, err := reg.Begin("corpus")
	require.NoError(t, err)

	job, ok := reg.ForModel("corpus")
	require.True(t, ok)
	assert.Equal(t, second, job.ID)
	assert.Equal(t, BuildRunning, job.Status)
}
