package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beaconmeet/relay-server-go/internal/audit"
	"github.com/beaconmeet/relay-server-go/internal/config"
	apperrors "github.com/beaconmeet/relay-server-go/internal/errors"
	"github.com/beaconmeet/relay-server-go/internal/httputil"
	"github.com/beaconmeet/relay-server-go/internal/metrics"
	"github.com/beaconmeet/relay-server-go/internal/service"
)

const rateLimitWindow = 60 * time.Second

type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (service.RateLimitResult, error)
}

// RateLimitMiddleware applies each principal's per-minute quota. It must run
// after AuthMiddleware.
type RateLimitMiddleware struct {
	limiter Limiter
}

func NewRateLimitMiddleware(limiter Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := GetPrincipal(r.Context())
		if principal == nil {
			next.ServeHTTP(w, r)
			return
		}

		limit := principal.RateLimitPerMin
		if limit <= 0 {
			limit = config.DefaultRateLimitPerMin
		}

		result, err := m.limiter.CheckLimit(r.Context(), principal.ID, limit, rateLimitWindow)
		if err != nil {
			log.Warn().Err(err).Str("keyId", principal.ID).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			metrics.RateLimited.Inc()
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				KeyID:   principal.ID,
				Details: map[string]interface{}{"limit": limit},
			})

			retryAfter := int(time.Until(result.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
