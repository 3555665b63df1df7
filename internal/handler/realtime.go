package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/beaconmeet/relay-server-go/internal/audit"
	"github.com/beaconmeet/relay-server-go/internal/geo"
	"github.com/beaconmeet/relay-server-go/internal/metrics"
	"github.com/beaconmeet/relay-server-go/internal/middleware"
	"github.com/beaconmeet/relay-server-go/internal/model"
	"github.com/beaconmeet/relay-server-go/internal/realtime"
	"github.com/beaconmeet/relay-server-go/internal/service"
	"github.com/beaconmeet/relay-server-go/internal/util"
)

// Application close codes sent during the handshake.
const (
	CloseBadRequest   = 4000
	CloseUnauthorized = 4001
	CloseNotFound     = 4004
)

const storeOpTimeout = 5 * time.Second

type RealtimeConfig struct {
	Conn          realtime.ConnOptions
	MetCloseDelay time.Duration
	CheckOrigin   func(origin string) bool
}

// RealtimeHandler is the websocket gateway. It authenticates a connection,
// binds it to a session role and relays location updates between parties.
type RealtimeHandler struct {
	sessions *service.SessionService
	auth     middleware.Authenticator
	registry *realtime.Registry
	upgrader websocket.Upgrader
	cfg      RealtimeConfig
}

func NewRealtimeHandler(
	sessions *service.SessionService,
	auth middleware.Authenticator,
	registry *realtime.Registry,
	cfg RealtimeConfig,
) *RealtimeHandler {
	h := &RealtimeHandler{
		sessions: sessions,
		auth:     auth,
		registry: registry,
		cfg:      cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.CheckOrigin == nil {
				return true
			}
			return cfg.CheckOrigin(r.Header.Get("Origin"))
		},
	}
	return h
}

// GET /ws?code=ABC123&role=driver&apiKey=...
func (h *RealtimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := realtime.NewWSConn(ws, h.cfg.Conn)

	entry := h.handshake(r, conn)
	if entry == nil {
		return
	}
	defer h.disconnect(conn, entry)

	conn.StartPing()
	h.readLoop(conn, entry)
}

// handshake authenticates and registers the connection. It closes conn and
// returns nil when the connection may not proceed.
func (h *RealtimeHandler) handshake(r *http.Request, conn *realtime.WSConn) *realtime.Entry {
	token := middleware.ExtractToken(r)
	if token == "" {
		h.reject(r, conn, "missing_key", CloseUnauthorized, "Unauthorized: Missing API key")
		return nil
	}

	ctx, cancel := storeContext()
	defer cancel()

	principal, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		log.Error().Err(err).Msg("realtime: key lookup failed")
		h.reject(r, conn, "internal", websocket.CloseInternalServerErr, "Internal error")
		return nil
	}
	if principal == nil {
		metrics.AuthFailures.WithLabelValues("invalid").Inc()
		h.reject(r, conn, "invalid_key", CloseUnauthorized, "Unauthorized: Invalid or expired API key")
		return nil
	}

	code := r.URL.Query().Get("code")
	role := model.Role(r.URL.Query().Get("role"))
	if !util.IsValidCode(code) || !role.Valid() {
		h.reject(r, conn, "bad_params", CloseBadRequest, "Missing or invalid code/role parameters")
		return nil
	}

	session, err := h.sessions.GetSession(ctx, code)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("realtime: session lookup failed")
		h.reject(r, conn, "internal", websocket.CloseInternalServerErr, "Internal error")
		return nil
	}
	if session == nil {
		h.reject(r, conn, "not_found", CloseNotFound, "Session not found")
		return nil
	}

	// Pending until the snapshot is written, so a relayed state cannot
	// overtake it.
	entry := realtime.NewEntry(code, role, conn)
	h.registry.RegisterPending(entry)

	session, err = h.sessions.SetConnected(ctx, code, role, true)
	if err != nil || session == nil {
		h.registry.Unregister(entry)
		if err != nil {
			log.Error().Err(err).Str("code", code).Msg("realtime: failed to mark connected")
			_ = conn.Close(websocket.CloseInternalServerErr, "Internal error")
		} else {
			_ = conn.Close(CloseNotFound, "Session not found")
		}
		return nil
	}

	log.Info().
		Str("code", code).
		Str("role", string(role)).
		Str("connId", entry.ID).
		Str("keyId", principal.ID).
		Msg("realtime connection established")

	if err := h.registry.Send(entry, realtime.NewStateMessage(session)); err != nil {
		log.Debug().Err(err).Str("connId", entry.ID).Msg("failed to send initial state")
	}
	h.registry.Activate(entry)
	h.broadcast(code, realtime.NewConnectionMessage(role, true), entry)

	return entry
}

func (h *RealtimeHandler) reject(r *http.Request, conn *realtime.WSConn, reason string, code int, text string) {
	metrics.RejectedConnections.WithLabelValues(reason).Inc()
	if code == CloseUnauthorized {
		audit.LogFromRequest(r, audit.Event{
			Type:        audit.EventRealtimeReject,
			SessionCode: r.URL.Query().Get("code"),
			Details:     map[string]interface{}{"reason": reason},
		})
	}
	_ = conn.Close(code, text)
}

func (h *RealtimeHandler) readLoop(conn *realtime.WSConn, entry *realtime.Entry) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("connId", entry.ID).Msg("realtime connection dropped")
			}
			return
		}
		h.handleMessage(entry, data)
	}
}

func (h *RealtimeHandler) handleMessage(entry *realtime.Entry, data []byte) {
	var msg realtime.Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.MessagesReceived.WithLabelValues("malformed").Inc()
		h.sendError(entry, "Invalid message format")
		return
	}

	ctx, cancel := storeContext()
	defer cancel()

	switch msg.Type {
	case realtime.TypeLocation:
		metrics.MessagesReceived.WithLabelValues(realtime.TypeLocation).Inc()
		h.handleLocation(ctx, entry, msg)
	case realtime.TypeMet:
		metrics.MessagesReceived.WithLabelValues(realtime.TypeMet).Inc()
		session, err := h.EndSession(ctx, entry.Code)
		if err != nil {
			log.Error().Err(err).Str("code", entry.Code).Msg("realtime: failed to mark met")
			h.sendError(entry, "Failed to end session")
			return
		}
		if session == nil {
			h.sendError(entry, "Session not found")
		}
	default:
		metrics.MessagesReceived.WithLabelValues("unknown").Inc()
		h.sendError(entry, "Unknown message type")
	}
}

func (h *RealtimeHandler) handleLocation(ctx context.Context, entry *realtime.Entry, msg realtime.Inbound) {
	if msg.Latitude == nil || msg.Longitude == nil || !geo.ValidCoordinates(*msg.Latitude, *msg.Longitude) {
		h.sendError(entry, "Invalid coordinates")
		return
	}

	session, err := h.sessions.UpdateLocation(ctx, entry.Code, entry.Role, *msg.Latitude, *msg.Longitude)
	if err != nil {
		log.Error().Err(err).Str("code", entry.Code).Msg("realtime: failed to update location")
		h.sendError(entry, "Failed to update location")
		return
	}
	if session == nil {
		h.sendError(entry, "Session is no longer active")
		return
	}

	h.broadcast(entry.Code, realtime.NewStateMessage(session), nil)
}

// EndSession marks the session met, tells every live connection and closes
// them after the grace period. It returns nil when the session is absent.
func (h *RealtimeHandler) EndSession(ctx context.Context, code string) (*model.Session, error) {
	session, err := h.sessions.MarkAsMet(ctx, code)
	if err != nil || session == nil {
		return session, err
	}

	metrics.SessionsMet.Inc()
	h.broadcast(code, realtime.NewEndedMessage(realtime.EndReasonMet), nil)

	time.AfterFunc(h.cfg.MetCloseDelay, func() {
		n := h.registry.CloseAll(code, websocket.CloseNormalClosure, "Session completed")
		log.Debug().Str("code", code).Int("closed", n).Msg("closed connections of completed session")
	})
	return session, nil
}

// disconnect runs once per registered connection, whichever side ended it.
func (h *RealtimeHandler) disconnect(conn *realtime.WSConn, entry *realtime.Entry) {
	_ = conn.Close(websocket.CloseNormalClosure, "")
	h.registry.Unregister(entry)

	// A newer connection for the same role is still live; it owns the flag.
	if h.registry.HasRole(entry.Code, entry.Role) {
		log.Info().
			Str("code", entry.Code).
			Str("role", string(entry.Role)).
			Str("connId", entry.ID).
			Msg("superseded realtime connection closed")
		return
	}

	ctx, cancel := storeContext()
	defer cancel()

	if _, err := h.sessions.SetConnected(ctx, entry.Code, entry.Role, false); err != nil {
		log.Warn().Err(err).Str("code", entry.Code).Msg("realtime: failed to mark disconnected")
	}
	h.broadcast(entry.Code, realtime.NewConnectionMessage(entry.Role, false), entry)

	log.Info().
		Str("code", entry.Code).
		Str("role", string(entry.Role)).
		Str("connId", entry.ID).
		Msg("realtime connection closed")
}

func (h *RealtimeHandler) broadcast(code string, msg any, except *realtime.Entry) {
	if _, err := h.registry.Broadcast(code, msg, except); err != nil {
		log.Error().Err(err).Str("code", code).Msg("broadcast failed")
	}
}

func (h *RealtimeHandler) sendError(entry *realtime.Entry, message string) {
	if err := h.registry.Send(entry, realtime.NewErrorMessage(message)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Debug().Err(err).Str("connId", entry.ID).Msg("failed to send error message")
	}
}

// storeContext bounds store calls made outside any request lifetime.
func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeOpTimeout)
}
