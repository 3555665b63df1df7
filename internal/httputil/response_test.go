package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/beaconmeet/relay-server-go/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   apperrors.ErrorCode
	}{
		{"validation", apperrors.ValidationError("bad"), http.StatusBadRequest, apperrors.ErrCodeValidation},
		{"unauthorized", apperrors.Unauthorized("no key"), http.StatusUnauthorized, apperrors.ErrCodeUnauthorized},
		{"invalid role", apperrors.InvalidRole(), http.StatusBadRequest, apperrors.ErrCodeInvalidRole},
		{"too large", apperrors.PayloadTooLarge(1 << 20), http.StatusRequestEntityTooLarge, apperrors.ErrCodePayloadTooLarge},
		{"forbidden", apperrors.Forbidden("admin only"), http.StatusForbidden, apperrors.ErrCodeForbidden},
		{"not found", apperrors.NotFound("Session"), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"ended", apperrors.SessionEnded(), http.StatusGone, apperrors.ErrCodeSessionEnded},
		{"rate limited", apperrors.RateLimitExceeded(), http.StatusTooManyRequests, apperrors.ErrCodeRateLimitExceeded},
		{"store", apperrors.StoreUnavailable(errors.New("down")), http.StatusServiceUnavailable, apperrors.ErrCodeStoreUnavailable},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestWriteError_HidesPlainErrorText(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: password authentication failed"))

	assert.NotContains(t, rec.Body.String(), "password")
}
