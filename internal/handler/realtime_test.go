package handler

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconmeet/relay-server-go/internal/model"
)

func createSession(t *testing.T, s *testServer) string {
	t.Helper()
	session, err := s.sessions.CreateSession(context.Background(), "Kim")
	require.NoError(t, err)
	return session.Code
}

func connect(t *testing.T, s *testServer, code string, role model.Role) *websocket.Conn {
	t.Helper()
	conn := s.dial(t, "code="+code+"&role="+string(role)+"&apiKey="+testTesterKey)
	msg := readMessage(t, conn)
	require.Equal(t, "state", msg["type"])
	return conn
}

func TestRealtime_HandshakeRejections(t *testing.T) {
	s := newTestServer(t)
	code := createSession(t, s)

	tests := []struct {
		name      string
		query     string
		closeCode int
		closeText string
	}{
		{"missing key", "code=" + code + "&role=driver", 4001, "Unauthorized: Missing API key"},
		{"invalid key", "code=" + code + "&role=driver&apiKey=wrong", 4001, "Unauthorized: Invalid or expired API key"},
		{"missing code", "role=driver&apiKey=" + testTesterKey, 4000, "Missing or invalid code/role parameters"},
		{"malformed code", "code=abc&role=driver&apiKey=" + testTesterKey, 4000, "Missing or invalid code/role parameters"},
		{"unknown role", "code=" + code + "&role=rider&apiKey=" + testTesterKey, 4000, "Missing or invalid code/role parameters"},
		{"unknown session", "code=ZZZ999&role=driver&apiKey=" + testTesterKey, 4004, "Session not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := s.dial(t, tt.query)
			expectClose(t, conn, tt.closeCode, tt.closeText)
		})
	}

	assert.Equal(t, 0, s.registry.Total())
}

func TestRealtime_StoreFailureDuringHandshake(t *testing.T) {
	s := newTestServer(t)
	code := createSession(t, s)
	s.mr.Close()

	conn := s.dial(t, "code="+code+"&role=driver&apiKey="+testTesterKey)
	expectClose(t, conn, websocket.CloseInternalServerErr, "Internal error")
}

func TestRealtime_ConnectAndRelay(t *testing.T) {
	s := newTestServer(t)
	code := createSession(t, s)
	ctx := context.Background()

	driver := s.dial(t, "code="+code+"&role=driver&apiKey="+testTesterKey)
	state := readMessage(t, driver)
	assert.Equal(t, "state", state["type"])
	assert.Nil(t, state["distance"])
	session := state["session"].(map[string]any)
	assert.Equal(t, code, session["code"])
	assert.Equal(t, true, session["driver"].(map[string]any)["connected"])

	passenger := connect(t, s, code, model.RolePassenger)

	notice := readMessage(t, driver)
	assert.Equal(t, "connection", notice["type"])
	assert.Equal(t, "passenger", notice["role"])
	assert.Equal(t, true, notice["connected"])
	assert.Equal(t, 2, s.registry.Count(code))

	sendJSON(t, driver, map[string]any{"type": "location", "latitude": 37.5665, "longitude": 126.978})
	for _, conn := range []*websocket.Conn{driver, passenger} {
		msg := readMessage(t, conn)
		assert.Equal(t, "state", msg["type"])
		assert.Nil(t, msg["distance"])
		assert.Equal(t, "waiting", msg["session"].(map[string]any)["status"])
	}

	sendJSON(t, passenger, map[string]any{"type": "location", "latitude": 37.5651, "longitude": 126.9895, "accuracy": 12.5})
	fromDriver := readMessage(t, driver)
	fromPassenger := readMessage(t, passenger)

	require.NotNil(t, fromDriver["distance"])
	assert.Equal(t, fromDriver["distance"], fromPassenger["distance"])
	assert.InDelta(t, 1000, fromDriver["distance"].(float64), 150)
	assert.Equal(t, "active", fromPassenger["session"].(map[string]any)["status"])

	stored, err := s.sessions.GetSession(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, stored.Status)
	assert.True(t, stored.Driver.Connected)
	assert.True(t, stored.Passenger.Connected)
}

func TestRealtime_BadMessagesKeepConnectionOpen(t *testing.T) {
	s := newTestServer(t)
	code := createSession(t, s)
	driver := connect(t, s, code, model.RoleDriver)

	require.NoError(t, driver.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg := readMessage(t, driver)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Invalid message format", msg["message"])

	sendJSON(t, driver, map[string]any{"type": "dance"})
	msg = readMessage(t, driver)
	assert.Equal(t, "Unknown message type", msg["message"])

	sendJSON(t, driver, map[string]any{"type": "location", "latitude": 123.0, "longitude": 10.0})
	msg = readMessage(t, driver)
	assert.Equal(t, "Invalid coordinates", msg["message"])

	sendJSON(t, driver, map[string]any{"type": "location", "latitude": 10.0})
	msg = readMessage(t, driver)
	assert.Equal(t, "Invalid coordinates", msg["message"])

	sendJSON(t, driver, map[string]any{"type": "location", "latitude": 1.0, "longitude": 2.0})
	msg = readMessage(t, driver)
	assert.Equal(t, "state", msg["type"])
}

func TestRealtime_DisconnectNotifiesPeerOnce(t *testing.T) {
	s := newTestServer(t)
	code := createSession(t, s)

	driver := connect(t, s, code, model.RoleDriver)
	passenger := connect(t, s, code, model.RolePassenger)
	readMessage(t, driver) // passenger connected

	require.NoError(t, passenger.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	))
	passenger.Close()

	notice := readMessage(t, driver)
	assert.Equal(t, "connection", notice["type"])
	assert.Equal(t, "passenger", notice["role"])
	assert.Equal(t, false, notice["connected"])

	// No second notice arrives.
	require.NoError(t, driver.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := driver.ReadMessage()
	assert.Error(t, err)

	assert.Eventually(t, func() bool {
		session, err := s.sessions.GetSession(context.Background(), code)
		return err == nil && session != nil && !session.Passenger.Connected && session.Driver.Connected
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.registry.Count(code))
}

func closeClient(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	))
	conn.Close()
}

func TestRealtime_SupersededConnectionKeepsRoleOnline(t *testing.T) {
	s := newTestServer(t)
	code := createSession(t, s)
	ctx := context.Background()

	driver := connect(t, s, code, model.RoleDriver)
	stale := connect(t, s, code, model.RolePassenger)
	readMessage(t, driver) // passenger connected

	fresh := connect(t, s, code, model.RolePassenger)
	notice := readMessage(t, driver)
	assert.Equal(t, true, notice["connected"])
	assert.Equal(t, 3, s.registry.Count(code))

	closeClient(t, stale)
	assert.Eventually(t, func() bool { return s.registry.Count(code) == 2 }, time.Second, 10*time.Millisecond)

	// The driver hears nothing about the stale socket.
	require.NoError(t, driver.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := driver.ReadMessage()
	assert.Error(t, err)

	session, err := s.sessions.GetSession(ctx, code)
	require.NoError(t, err)
	assert.True(t, session.Passenger.Connected)

	closeClient(t, fresh)
	assert.Eventually(t, func() bool {
		session, err := s.sessions.GetSession(ctx, code)
		return err == nil && session != nil && !session.Passenger.Connected
	}, time.Second, 10*time.Millisecond)
}

func TestRealtime_MetEndsSessionForEveryone(t *testing.T) {
	s := newTestServer(t)
	code := createSession(t, s)

	driver := connect(t, s, code, model.RoleDriver)
	passenger := connect(t, s, code, model.RolePassenger)
	readMessage(t, driver) // passenger connected

	sendJSON(t, passenger, map[string]any{"type": "met"})

	for _, conn := range []*websocket.Conn{driver, passenger} {
		msg := readMessage(t, conn)
		assert.Equal(t, "ended", msg["type"])
		assert.Equal(t, "met", msg["reason"])
	}
	for _, conn := range []*websocket.Conn{driver, passenger} {
		expectClose(t, conn, websocket.CloseNormalClosure, "Session completed")
	}

	session, err := s.sessions.GetSession(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusMet, session.Status)
	assert.Equal(t, 5*time.Minute, s.mr.TTL("session:"+code))

	assert.Eventually(t, func() bool { return s.registry.Count(code) == 0 }, time.Second, 10*time.Millisecond)
}

func TestRealtime_LocationAfterMetIsRejected(t *testing.T) {
	s := newTestServer(t)
	code := createSession(t, s)
	driver := connect(t, s, code, model.RoleDriver)

	_, err := s.sessions.MarkAsMet(context.Background(), code)
	require.NoError(t, err)

	sendJSON(t, driver, map[string]any{"type": "location", "latitude": 1.0, "longitude": 2.0})
	msg := readMessage(t, driver)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Session is no longer active", msg["message"])
}
