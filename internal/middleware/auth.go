package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/beaconmeet/relay-server-go/internal/audit"
	apperrors "github.com/beaconmeet/relay-server-go/internal/errors"
	"github.com/beaconmeet/relay-server-go/internal/httputil"
	"github.com/beaconmeet/relay-server-go/internal/metrics"
	"github.com/beaconmeet/relay-server-go/internal/model"
	"github.com/beaconmeet/relay-server-go/internal/util"
)

type contextKey string

const PrincipalContextKey contextKey = "principal"

// Authenticator resolves an API key. A nil principal means the key is not valid.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Principal, error)
}

func GetPrincipal(ctx context.Context) *model.Principal {
	if principal, ok := ctx.Value(PrincipalContextKey).(*model.Principal); ok {
		return principal
	}
	return nil
}

func WithPrincipal(ctx context.Context, principal *model.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, principal)
}

type AuthMiddleware struct {
	auth     Authenticator
	failures *AuthFailureLimiter
}

func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// WithFailureLimiter rejects addresses that keep presenting invalid keys.
func (m *AuthMiddleware) WithFailureLimiter(failures *AuthFailureLimiter) *AuthMiddleware {
	m.failures = failures
	return m
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if m.failures != nil && m.failures.Blocked(ip) {
			metrics.AuthFailures.WithLabelValues("blocked").Inc()
			w.Header().Set("Retry-After", "60")
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		token := ExtractToken(r)
		if token == "" {
			metrics.AuthFailures.WithLabelValues("missing").Inc()
			httputil.WriteError(w, apperrors.Unauthorized("Missing API key"))
			return
		}

		principal, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			log.Error().Err(err).Msg("auth middleware: key lookup failed")
			httputil.WriteError(w, apperrors.Internal("Authentication failed"))
			return
		}

		if principal == nil {
			if m.failures != nil {
				m.failures.RecordFailure(ip)
			}
			metrics.AuthFailures.WithLabelValues("invalid").Inc()
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"path": r.URL.Path, "key": util.MaskKey(token)},
			})
			httputil.WriteError(w, apperrors.InvalidToken("Invalid or expired API key"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireClass rejects principals whose key class is not class.
func RequireClass(class model.KeyClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				httputil.WriteError(w, apperrors.Unauthorized("Missing API key"))
				return
			}
			if principal.Class != class {
				audit.LogFromRequest(r, audit.Event{
					Type:    audit.EventForbidden,
					KeyID:   principal.ID,
					Details: map[string]interface{}{"path": r.URL.Path, "required": string(class)},
				})
				httputil.WriteError(w, apperrors.Forbidden("Insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractToken reads the API key from the Authorization bearer header, the
// X-API-Key header or the apiKey query parameter, in that order.
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	return r.URL.Query().Get("apiKey")
}
