package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/beaconmeet/relay-server-go/internal/clock/mocks"
	"github.com/beaconmeet/relay-server-go/internal/model"
)

func TestAuthFailureLimiter(t *testing.T) {
	ctrl := gomock.NewController(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := mocks.NewMockClock(ctrl)
	clk.EXPECT().Now().DoAndReturn(func() time.Time { return now }).AnyTimes()

	l := NewAuthFailureLimiter(clk)
	for i := 0; i < authFailMaxAttempts-1; i++ {
		l.RecordFailure("203.0.113.7")
	}
	assert.False(t, l.Blocked("203.0.113.7"))

	l.RecordFailure("203.0.113.7")
	assert.True(t, l.Blocked("203.0.113.7"))
	assert.False(t, l.Blocked("198.51.100.1"))

	now = now.Add(authFailWindowDuration + time.Second)
	assert.False(t, l.Blocked("203.0.113.7"))
}

func TestAuthMiddleware_FailureLimiter(t *testing.T) {
	ctrl := gomock.NewController(t)
	clk := mocks.NewMockClock(ctrl)
	clk.EXPECT().Now().Return(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)).AnyTimes()

	valid := map[string]*model.Principal{"good": {ID: "k", Class: model.KeyClassTester}}
	m := NewAuthMiddleware(staticAuth(valid)).WithFailureLimiter(NewAuthFailureLimiter(clk))
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < authFailMaxAttempts; i++ {
		assert.Equal(t, http.StatusUnauthorized, serve("bad"))
	}
	assert.Equal(t, http.StatusTooManyRequests, serve("good"))
}
