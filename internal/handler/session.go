package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/beaconmeet/relay-server-go/internal/audit"
	apperrors "github.com/beaconmeet/relay-server-go/internal/errors"
	"github.com/beaconmeet/relay-server-go/internal/httputil"
	"github.com/beaconmeet/relay-server-go/internal/metrics"
	"github.com/beaconmeet/relay-server-go/internal/middleware"
	"github.com/beaconmeet/relay-server-go/internal/model"
	"github.com/beaconmeet/relay-server-go/internal/service"
	"github.com/beaconmeet/relay-server-go/internal/util"
)

const maxDriverNameLength = 100

// SessionEnder ends a session for every live connection on it.
type SessionEnder interface {
	EndSession(ctx context.Context, code string) (*model.Session, error)
}

type SessionHandler struct {
	sessionService *service.SessionService
	ender          SessionEnder
	shareURL       func(code string) string
}

func NewSessionHandler(
	sessionService *service.SessionService,
	ender SessionEnder,
	shareURL func(code string) string,
) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		ender:          ender,
		shareURL:       shareURL,
	}
}

// Routes mounts the session API. createMiddlewares guard session creation only;
// reading, joining and ending are keyed by the session code itself.
func (h *SessionHandler) Routes(createMiddlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.With(createMiddlewares...).Post("/", h.CreateSession)
	r.Get("/{code}", h.GetSession)
	r.Post("/{code}/join", h.JoinSession)
	r.Post("/{code}/end", h.EndSession)

	return r
}

type createSessionRequest struct {
	DriverName any    `json:"driverName"`
	BookingRef string `json:"bookingRef,omitempty"`
}

type createSessionResponse struct {
	Code     string       `json:"code"`
	ShareURL string       `json:"shareUrl"`
	Visual   model.Visual `json:"visual"`
}

// POST /v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	name, ok := req.DriverName.(string)
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		httputil.WriteError(w, apperrors.ValidationError("driverName is required and must be a string"))
		return
	}
	if utf8.RuneCountInString(name) > maxDriverNameLength {
		httputil.WriteError(w, apperrors.InvalidInput("driverName", "must be at most 100 characters"))
		return
	}

	session, err := h.sessionService.CreateSession(r.Context(), name)
	if err != nil {
		log.Error().Err(err).Msg("failed to create session")
		if errors.Is(err, service.ErrCodeSpaceExhausted) {
			httputil.WriteError(w, apperrors.Internal("Failed to create session"))
			return
		}
		httputil.WriteError(w, apperrors.StoreUnavailable(err))
		return
	}

	metrics.SessionsCreated.Inc()

	event := audit.Event{
		Type:        audit.EventSessionCreate,
		SessionCode: session.Code,
	}
	if principal := middleware.GetPrincipal(r.Context()); principal != nil {
		event.KeyID = principal.ID
	}
	if req.BookingRef != "" {
		event.Details = map[string]interface{}{"bookingRef": req.BookingRef}
	}
	audit.LogFromRequest(r, event)

	httputil.WriteJSON(w, http.StatusCreated, createSessionResponse{
		Code:     session.Code,
		ShareURL: h.shareURL(session.Code),
		Visual:   session.Visual,
	})
}

// GET /v1/sessions/{code}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}

	session, err := h.sessionService.GetSession(r.Context(), code)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to get session")
		httputil.WriteError(w, apperrors.StoreUnavailable(err))
		return
	}

	if session == nil {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]any{
			"exists": false,
			"error":  "Session not found",
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"exists":     true,
		"driverName": session.Driver.Name,
		"visual":     session.Visual,
		"status":     session.Status,
	})
}

// POST /v1/sessions/{code}/join
func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}

	session, err := h.sessionService.GetSession(r.Context(), code)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to join session")
		httputil.WriteError(w, apperrors.StoreUnavailable(err))
		return
	}

	if session == nil {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"error":   "Session not found",
		})
		return
	}

	if session.Status.Ended() {
		httputil.WriteJSON(w, http.StatusGone, map[string]any{
			"success": false,
			"error":   "Session has ended",
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": session,
	})
}

type endSessionRequest struct {
	Role model.Role `json:"role"`
}

// POST /v1/sessions/{code}/end
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}

	var req endSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Role.Valid() {
		httputil.WriteError(w, apperrors.InvalidRole())
		return
	}

	session, err := h.ender.EndSession(r.Context(), code)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to end session")
		httputil.WriteError(w, apperrors.StoreUnavailable(err))
		return
	}

	if session == nil {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"error":   "Session not found",
		})
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:        audit.EventSessionEnd,
		SessionCode: code,
		Details:     map[string]interface{}{"role": string(req.Role)},
	})

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func sessionCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := chi.URLParam(r, "code")
	if !util.IsValidCode(code) {
		httputil.WriteError(w, apperrors.InvalidCode())
		return "", false
	}
	return code, true
}
