package middleware

import (
	"sync"
	"time"

	"github.com/beaconmeet/relay-server-go/internal/clock"
)

const (
	authFailMaxAttempts    = 10
	authFailWindowDuration = time.Minute
	authFailCleanupPeriod  = 5 * time.Minute
)

type authFailAttempt struct {
	count       int
	windowStart time.Time
}

// AuthFailureLimiter blocks an address after repeated invalid API keys. It is
// kept in memory so a Redis outage cannot open it.
type AuthFailureLimiter struct {
	mu          sync.Mutex
	clock       clock.Clock
	attempts    map[string]*authFailAttempt
	lastCleanup time.Time
}

func NewAuthFailureLimiter(clk clock.Clock) *AuthFailureLimiter {
	return &AuthFailureLimiter{
		clock:       clk,
		attempts:    make(map[string]*authFailAttempt),
		lastCleanup: clk.Now(),
	}
}

func (l *AuthFailureLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < authFailCleanupPeriod {
		return
	}
	l.lastCleanup = now

	for ip, attempt := range l.attempts {
		if now.Sub(attempt.windowStart) > authFailWindowDuration {
			delete(l.attempts, ip)
		}
	}
}

// Blocked reports whether ip has used up its failures for the current window.
func (l *AuthFailureLimiter) Blocked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.cleanup(now)

	attempt, exists := l.attempts[ip]
	if !exists || now.Sub(attempt.windowStart) > authFailWindowDuration {
		return false
	}
	return attempt.count >= authFailMaxAttempts
}

func (l *AuthFailureLimiter) RecordFailure(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	attempt, exists := l.attempts[ip]
	if !exists || now.Sub(attempt.windowStart) > authFailWindowDuration {
		l.attempts[ip] = &authFailAttempt{count: 1, windowStart: now}
		return
	}
	attempt.count++
}
