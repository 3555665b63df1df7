package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Realtime connections
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_ws_connections_active",
		Help: "The current number of registered realtime connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_ws_connections_total",
		Help: "The total number of realtime connections registered.",
	})
	RejectedConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_ws_connections_rejected_total",
		Help: "Realtime connections closed during the handshake, by reason.",
	}, []string{"reason"})
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_ws_messages_received_total",
		Help: "Inbound realtime messages, by type.",
	}, []string{"type"})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_ws_messages_sent_total",
		Help: "The total number of realtime messages delivered to connections.",
	})

	// Sessions
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_sessions_created_total",
		Help: "The total number of sessions created.",
	})
	SessionsMet = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_sessions_met_total",
		Help: "The total number of sessions that ended with both parties meeting.",
	})

	// Auth
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_auth_failures_total",
		Help: "The total number of failed authentications, by reason.",
	}, []string{"reason"})
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_rate_limited_total",
		Help: "The total number of requests rejected by the rate limiter.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
