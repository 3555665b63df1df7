package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/beaconmeet/relay-server-go/internal/errors"
	"github.com/beaconmeet/relay-server-go/internal/httputil"
	"github.com/beaconmeet/relay-server-go/internal/metrics"
)

// IPRateLimitMiddleware caps requests per client address on routes that are
// reachable with nothing but a session code.
type IPRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	prefix  string
}

func NewIPRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		key := "ip:" + m.prefix + ":" + ip

		result, err := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)
		if err != nil {
			log.Warn().Err(err).Str("ip", ip).Msg("ip rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if !result.Allowed {
			metrics.RateLimited.Inc()
			secondsLeft := int(time.Until(result.ResetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secondsLeft))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. chi's RealIP has already
// replaced it with the forwarded address when one was sent.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
