package model

type SessionStatus string

const (
	SessionStatusWaiting SessionStatus = "waiting"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusMet     SessionStatus = "met"
	SessionStatusExpired SessionStatus = "expired"
)

// Ended reports whether the session can no longer be joined.
func (s SessionStatus) Ended() bool {
	return s == SessionStatusMet || s == SessionStatusExpired
}

type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

func (r Role) Valid() bool {
	return r == RoleDriver || r == RolePassenger
}

type KeyClass string

const (
	KeyClassAdmin  KeyClass = "admin"
	KeyClassTester KeyClass = "tester"
)
