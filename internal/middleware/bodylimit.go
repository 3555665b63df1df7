package middleware

import (
	"net/http"

	apperrors "github.com/beaconmeet/relay-server-go/internal/errors"
	"github.com/beaconmeet/relay-server-go/internal/httputil"
)

// DefaultMaxBodySize is far above any session request; it only stops abuse.
const DefaultMaxBodySize = 64 << 10

type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

// Handler rejects bodies that declare an oversized length and caps the rest,
// so a decoder reading past the limit fails instead of buffering.
func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > m.maxSize {
			httputil.WriteError(w, apperrors.PayloadTooLarge(m.maxSize))
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		}
		next.ServeHTTP(w, r)
	})
}
