package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = original })
	return &buf
}

func TestLog(t *testing.T) {
	buf := captureLog(t)

	Log(context.Background(), Event{
		Type:        EventSessionCreate,
		KeyID:       "key-1",
		SessionCode: "ABC123",
		Details:     map[string]interface{}{"driverName": "Kim", "attempts": 1},
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "security", entry["audit"])
	assert.Equal(t, "session_create", entry["event_type"])
	assert.Equal(t, "key-1", entry["key_id"])
	assert.Equal(t, "ABC123", entry["session_code"])
	assert.Equal(t, "Kim", entry["driverName"])
	assert.Equal(t, float64(1), entry["attempts"])
}

func TestLogFromRequest(t *testing.T) {
	buf := captureLog(t)

	r := httptest.NewRequest("POST", "/v1/sessions", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	r.Header.Set("User-Agent", "beacon-test")

	LogFromRequest(r, Event{Type: EventAuthFailure})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "203.0.113.7", entry["ip"])
	assert.Equal(t, "beacon-test", entry["user_agent"])
}

func TestLog_RequestID(t *testing.T) {
	buf := captureLog(t)

	ctx := context.WithValue(context.Background(), chimiddleware.RequestIDKey, "req-42")
	Log(ctx, Event{Type: EventRealtimeReject, SessionCode: "ABC123"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-42", entry["request_id"])
	assert.NotContains(t, entry, "key_id")
}
