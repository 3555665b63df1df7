package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/beaconmeet/relay-server-go/internal/errors"
	"github.com/beaconmeet/relay-server-go/internal/httputil"
	"github.com/beaconmeet/relay-server-go/internal/service"
)

const dashboardEventLimit = 50

type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

func (h *AnalyticsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/stats", h.GetStats)
	r.Get("/events", h.GetEvents)
	r.Get("/anomalies", h.GetAnomalies)
	r.Get("/dashboard", h.GetDashboard)

	return r
}

// GET /v1/analytics/stats
func (h *AnalyticsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.GetStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch stats")
		httputil.WriteError(w, apperrors.Internal("Failed to fetch statistics"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// GET /v1/analytics/events?limit=100
func (h *AnalyticsHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.analytics.GetRecentEvents(r.Context(), ParseLimit(r))
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch events")
		httputil.WriteError(w, apperrors.Internal("Failed to fetch events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// GET /v1/analytics/anomalies
func (h *AnalyticsHandler) GetAnomalies(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.DetectAnomalies(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to detect anomalies")
		httputil.WriteError(w, apperrors.Internal("Failed to detect anomalies"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// GET /v1/analytics/dashboard
func (h *AnalyticsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.analytics.GetStats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch dashboard stats")
		httputil.WriteError(w, apperrors.Internal("Failed to fetch dashboard data"))
		return
	}

	events, err := h.analytics.GetRecentEvents(ctx, dashboardEventLimit)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch dashboard events")
		httputil.WriteError(w, apperrors.Internal("Failed to fetch dashboard data"))
		return
	}

	report, err := h.analytics.DetectAnomalies(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch dashboard anomalies")
		httputil.WriteError(w, apperrors.Internal("Failed to fetch dashboard data"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"stats":        stats,
		"recentEvents": events,
		"anomalies":    report,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
