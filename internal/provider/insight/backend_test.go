package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventsnap/facefinder/internal/provider"
)

func newTestBackend(url string) *Backend {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.RetryCount = 0
	return NewBackend(cfg)
}

func TestBackendDetectConvertsCorners(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := DetectResponse{Faces: []DetectedFace{
			{BBox: [4]float64{10, 20, 110, 140}, Score: 0.9},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	faces, err := newTestBackend(server.URL).Detect(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, [4]float64{10, 20, 100, 120}, faces[0].Box)
}

func TestBackendDetectNoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(DetectResponse{})
	}))
	defer server.Close()

	faces, err := newTestBackend(server.URL).Detect(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestBackendUnavailable(t *testing.T) {
	backend := newTestBackend("http://127.0.0.1:1")

	_, err := backend.Detect(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrBackendUnavailable))

	_, err = backend.Embed(context.Background(), []byte("crop"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrBackendUnavailable))
}

func TestBackendEmbedEmptyEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(EmbedResponse{})
	}))
	defer server.Close()

	_, err := newTestBackend(server.URL).Embed(context.Background(), []byte("crop"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyEmbedding))
}

func TestBackendRejectsEmptyInput(t *testing.T) {
	backend := newTestBackend("http://unused")

	_, err := backend.Detect(context.Background(), nil)
	assert.True(t, errors.Is(err, provider.ErrInvalidImage))

	_, err = backend.Embed(context.Background(), nil)
	assert.True(t, errors.Is(err, provider.ErrInvalidImage))
}
