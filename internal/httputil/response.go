package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/beaconmeet/relay-server-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Int("status", status).Msg("failed to write response body")
	}
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

var statusByCode = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeValidation:        http.StatusBadRequest,
	apperrors.ErrCodeInvalidInput:      http.StatusBadRequest,
	apperrors.ErrCodeInvalidRole:       http.StatusBadRequest,
	apperrors.ErrCodeInvalidCode:       http.StatusBadRequest,
	apperrors.ErrCodeUnauthorized:      http.StatusUnauthorized,
	apperrors.ErrCodeInvalidToken:      http.StatusUnauthorized,
	apperrors.ErrCodeForbidden:         http.StatusForbidden,
	apperrors.ErrCodeNotFound:          http.StatusNotFound,
	apperrors.ErrCodeSessionEnded:      http.StatusGone,
	apperrors.ErrCodePayloadTooLarge:   http.StatusRequestEntityTooLarge,
	apperrors.ErrCodeRateLimitExceeded: http.StatusTooManyRequests,
	apperrors.ErrCodeStoreUnavailable:  http.StatusServiceUnavailable,
}

// StatusFromCode maps an error code to its HTTP status. Unknown codes are 500.
func StatusFromCode(code apperrors.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError renders err as an ErrorResponse. Errors that are not AppErrors
// are reported as a generic internal error so their text never reaches clients.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	WriteJSON(w, StatusFromCode(appErr.Code), ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}
