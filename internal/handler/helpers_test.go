package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/beaconmeet/relay-server-go/internal/clock"
	"github.com/beaconmeet/relay-server-go/internal/middleware"
	"github.com/beaconmeet/relay-server-go/internal/model"
	"github.com/beaconmeet/relay-server-go/internal/realtime"
	"github.com/beaconmeet/relay-server-go/internal/repository"
	"github.com/beaconmeet/relay-server-go/internal/service"
)

const (
	testAdminKey  = "admin-test-key-0123456789"
	testTesterKey = "tester-test-key-0123456789"
)

type testServer struct {
	*httptest.Server
	mr        *miniredis.Miniredis
	sessions  *service.SessionService
	analytics *service.AnalyticsService
	registry  *realtime.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clk := &clock.DefaultClock{}
	analytics := service.NewAnalyticsService(client, clk)
	sessions := service.NewSessionService(
		repository.NewSessionStore(client), analytics, clk,
		service.SessionConfig{TTL: 2 * time.Hour, MetTTL: 5 * time.Minute},
	)
	auth := service.NewAuthService(service.AuthConfig{AdminAPIKey: testAdminKey, TesterAPIKey: testTesterKey}, nil, clk)
	registry := realtime.NewRegistry()

	realtimeHandler := NewRealtimeHandler(sessions, auth, registry, RealtimeConfig{
		Conn: realtime.ConnOptions{
			WriteWait:      time.Second,
			PongWait:       5 * time.Second,
			PingInterval:   time.Second,
			MaxMessageSize: 4096,
		},
		MetCloseDelay: 50 * time.Millisecond,
	})
	sessionHandler := NewSessionHandler(sessions, realtimeHandler, func(code string) string {
		return "https://beacon.example/" + code
	})
	analyticsHandler := NewAnalyticsHandler(analytics)
	authMiddleware := middleware.NewAuthMiddleware(auth)

	r := chi.NewRouter()
	r.Get("/ws", realtimeHandler.ServeHTTP)
	r.Mount("/v1/sessions", sessionHandler.Routes(authMiddleware.Handler))
	r.Route("/v1/analytics", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(middleware.RequireClass(model.KeyClassAdmin))
		r.Mount("/", analyticsHandler.Routes())
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{
		Server:    srv,
		mr:        mr,
		sessions:  sessions,
		analytics: analytics,
		registry:  registry,
	}
}

func (s *testServer) request(t *testing.T, method, path, key, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func expectClose(t *testing.T, conn *websocket.Conn, code int, text string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected close frame, got %v", err)
		require.Equal(t, code, closeErr.Code)
		require.Equal(t, text, closeErr.Text)
		return
	}
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}
