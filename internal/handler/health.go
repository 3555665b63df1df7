package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beaconmeet/relay-server-go/internal/httputil"
)

const healthPingTimeout = 2 * time.Second

// Pinger is any dependency whose reachability the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// GET /v1/health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))

	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		err := check.Ping(ctx)
		cancel()

		if err != nil {
			log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
			deps[name] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	httputil.WriteJSON(w, status, map[string]any{
		"status":       overall,
		"timestamp":    time.Now().UnixMilli(),
		"dependencies": deps,
	})
}
