package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.RetryCount = 0
	cfg.Timeout = 2 * time.Second
	return NewClient(cfg)
}

func TestClientDetect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req DetectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "buffalo_l", req.Model)

		resp := DetectResponse{Faces: []DetectedFace{
			{
				BBox:  [4]float64{10, 20, 110, 140},
				KPS:   [][2]float64{{35, 60}, {85, 60}, {60, 85}, {40, 110}, {80, 110}},
				Score: 0.93,
			},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Detect(context.Background(), "aW1n")
	require.NoError(t, err)
	require.Len(t, resp.Faces, 1)
	assert.InDelta(t, 0.93, resp.Faces[0].Score, 1e-9)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(EmbedResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RetryCount = 2
	client := NewClient(cfg)

	resp, err := client.Embed(context.Background(), "aW1n")
	require.NoError(t, err)
	assert.Len(t, resp.Embedding, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RetryCount = 3
	client := NewClient(cfg)

	_, err := client.Detect(context.Background(), "aW1n")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientUnavailable(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1") // nothing listens here

	_, err := client.Detect(context.Background(), "aW1n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServingUnavailable))
}
