package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	ok := PingFunc(func(ctx context.Context) error { return nil })
	down := PingFunc(func(ctx context.Context) error { return errors.New("connection refused") })

	t.Run("all dependencies up", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(map[string]Pinger{"redis": ok}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "ok", body["dependencies"].(map[string]any)["redis"])
	})

	t.Run("dependency down", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(map[string]Pinger{"redis": down, "database": ok}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body["status"])
		deps := body["dependencies"].(map[string]any)
		assert.Equal(t, "error", deps["redis"])
		assert.Equal(t, "ok", deps["database"])
	})
}
