package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable identifier clients branch on.
type ErrorCode string

const (
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidRole     ErrorCode = "INVALID_ROLE"
	ErrCodeInvalidCode     ErrorCode = "INVALID_CODE"
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"

	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeSessionEnded ErrorCode = "SESSION_ENDED"

	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

// AppError is an error whose message is safe to show to API clients.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, cause: cause}
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func InvalidRole() *AppError {
	return New(ErrCodeInvalidRole, "Invalid role")
}

func InvalidCode() *AppError {
	return New(ErrCodeInvalidCode, "Invalid session code format")
}

func PayloadTooLarge(limit int64) *AppError {
	return New(ErrCodePayloadTooLarge, "Request body too large").
		WithDetails(map[string]int64{"maxBytes": limit})
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func SessionEnded() *AppError {
	return New(ErrCodeSessionEnded, "Session has ended")
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// StoreUnavailable marks a failure of the session store itself, as opposed to
// a session that is simply absent.
func StoreUnavailable(cause error) *AppError {
	return Wrap(ErrCodeStoreUnavailable, "Session store unavailable", cause)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
