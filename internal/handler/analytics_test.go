package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsHandler(t *testing.T) {
	s := newTestServer(t)
	code := createSession(t, s)
	_, err := s.sessions.MarkAsMet(context.Background(), code)
	require.NoError(t, err)

	t.Run("tester key is forbidden", func(t *testing.T) {
		resp, _ := s.request(t, http.MethodGet, "/v1/analytics/stats", testTesterKey, "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("stats", func(t *testing.T) {
		resp, body := s.request(t, http.MethodGet, "/v1/analytics/stats", testAdminKey, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		total := body["total"].(map[string]any)
		assert.Equal(t, float64(1), total["sessions"])
		assert.Equal(t, float64(1), total["completions"])
		assert.Len(t, body["last7Days"], 7)
	})

	t.Run("events", func(t *testing.T) {
		resp, body := s.request(t, http.MethodGet, "/v1/analytics/events?limit=1", testAdminKey, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), body["count"])

		events := body["events"].([]any)
		assert.Equal(t, code, events[0].(map[string]any)["code"])
	})

	t.Run("anomalies", func(t *testing.T) {
		resp, body := s.request(t, http.MethodGet, "/v1/analytics/anomalies", testAdminKey, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["suspiciousActivity"])
	})

	t.Run("dashboard", func(t *testing.T) {
		resp, body := s.request(t, http.MethodGet, "/v1/analytics/dashboard", testAdminKey, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "stats")
		assert.Contains(t, body, "recentEvents")
		assert.Contains(t, body, "anomalies")
		assert.Contains(t, body, "timestamp")
	})
}
