package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventAuthFailure     EventType = "auth_failure"
	EventForbidden       EventType = "forbidden"
	EventRateLimitExceed EventType = "rate_limit_exceeded"
	EventSessionCreate   EventType = "session_create"
	EventSessionEnd      EventType = "session_end"
	EventRealtimeReject  EventType = "realtime_reject"
)

type Event struct {
	Type        EventType
	KeyID       string
	SessionCode string
	IP          string
	UserAgent   string
	Details     map[string]interface{}
}

// Log writes event as one structured line tagged audit=security. The chi
// request ID on ctx, when present, ties it to the access log.
func Log(ctx context.Context, event Event) {
	e := log.Info().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now())

	optional := map[string]string{
		"request_id":   chimiddleware.GetReqID(ctx),
		"key_id":       event.KeyID,
		"session_code": event.SessionCode,
		"ip":           event.IP,
		"user_agent":   event.UserAgent,
	}
	for k, v := range optional {
		if v != "" {
			e = e.Str(k, v)
		}
	}

	for k, v := range event.Details {
		e = addField(e, k, v)
	}
	e.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = getClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
