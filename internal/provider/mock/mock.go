// Package mock provides scripted detection and embedding backends for
// tests. Responses are queued per call; exhausted scripts fall back to the
// default response.
package mock

import (
	"context"
	"sync"

	"github.com/eventsnap/facefinder/internal/provider"
)

// DetectionBackend is a scriptable provider.DetectionBackend.
type DetectionBackend struct {
	BackendName string

	mu        sync.Mutex
	responses []detectResponse
	fallback  detectResponse
	calls     int
}

type detectResponse struct {
	faces []provider.RawFace
	err   error
}

var _ provider.DetectionBackend = (*DetectionBackend)(nil)

func NewDetectionBackend(name string) *DetectionBackend {
	return &DetectionBackend{BackendName: name}
}

func (m *DetectionBackend) Name() string { return m.BackendName }

// QueueFaces appends a successful response to the script.
func (m *DetectionBackend) QueueFaces(faces ...provider.RawFace) *DetectionBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, detectResponse{faces: faces})
	return m
}

// QueueError appends a failing response to the script.
func (m *DetectionBackend) QueueError(err error) *DetectionBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, detectResponse{err: err})
	return m
}

// Always sets the fallback response used once the script is exhausted.
func (m *DetectionBackend) Always(faces []provider.RawFace, err error) *DetectionBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = detectResponse{faces: faces, err: err}
	return m
}

// Calls reports how many times Detect has been invoked.
func (m *DetectionBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *DetectionBackend) Detect(ctx context.Context, image []byte) ([]provider.RawFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp.faces, resp.err
	}
	return m.fallback.faces, m.fallback.err
}

// EmbeddingBackend is a scriptable provider.EmbeddingBackend. EmbedFn, when
// set, derives the vector from the crop bytes so tests can produce
// distinct, deterministic embeddings per face.
type EmbeddingBackend struct {
	BackendName string
	Vector      []float32
	Err         error
	EmbedFn     func(crop []byte) ([]float32, error)

	mu    sync.Mutex
	calls int
}

var _ provider.EmbeddingBackend = (*EmbeddingBackend)(nil)

func NewEmbeddingBackend(name string) *EmbeddingBackend {
	return &EmbeddingBackend{BackendName: name}
}

func (m *EmbeddingBackend) Name() string { return m.BackendName }

func (m *EmbeddingBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *EmbeddingBackend) Embed(ctx context.Context, crop []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.EmbedFn != nil {
		return m.EmbedFn(crop)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}
