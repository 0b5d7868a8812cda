package api

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterHealthWithoutDependencies(t *testing.T) {
	r := NewRouter(slog.New(slog.DiscardHandler), nil)
	r.Setup()

	resp, err := r.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = r.App().Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRouterUnknownRoute(t *testing.T) {
	r := NewRouter(slog.New(slog.DiscardHandler), nil)
	r.Setup()

	resp, err := r.App().Test(httptest.NewRequest("GET", "/v1/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
