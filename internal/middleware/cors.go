package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

const corsMaxAge = 600

// CORSMiddleware admits the configured frontend origins. AllowOrigin is the
// one predicate behind both the HTTP CORS headers and the websocket origin
// check.
type CORSMiddleware struct {
	allowed []string
	handler func(http.Handler) http.Handler
}

// NewCORSMiddleware takes a comma separated origin list; "*" allows any origin.
func NewCORSMiddleware(origins string) *CORSMiddleware {
	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, strings.TrimSuffix(o, "/"))
		}
	}

	m := &CORSMiddleware{allowed: allowed}
	m.handler = cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return m.AllowOrigin(origin)
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         corsMaxAge,
	})
	return m
}

// AllowOrigin reports whether a browser origin may call the API. Requests
// without an Origin header are not browser cross-origin requests.
func (m *CORSMiddleware) AllowOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range m.allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return m.handler(next)
}
