package handler

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ParseLimit reads the limit query parameter, falling back to DefaultLimit
// when it is missing, non-positive or above MaxLimit.
func ParseLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > MaxLimit {
		return DefaultLimit
	}
	return limit
}
