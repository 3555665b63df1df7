package model

import (
	"time"

	"github.com/beaconmeet/relay-server-go/internal/geo"
)

// Participant is one fixed slot of a session. Coordinates stay nil until the
// first location report for that role.
type Participant struct {
	Name       string   `json:"name,omitempty"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	LastUpdate int64    `json:"lastUpdate"`
	Connected  bool     `json:"connected"`
}

func (p *Participant) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}

type Visual struct {
	Color   string `json:"color"`
	Pattern []int  `json:"pattern"`
}

// Session is stored whole under its code. Timestamps are Unix milliseconds.
type Session struct {
	Code      string        `json:"code"`
	CreatedAt int64         `json:"createdAt"`
	ExpiresAt int64         `json:"expiresAt"`
	Driver    Participant   `json:"driver"`
	Passenger Participant   `json:"passenger"`
	Visual    Visual        `json:"visual"`
	Status    SessionStatus `json:"status"`
}

// Participant returns the slot for role, or nil for an unknown role.
func (s *Session) Participant(role Role) *Participant {
	switch role {
	case RoleDriver:
		return &s.Driver
	case RolePassenger:
		return &s.Passenger
	default:
		return nil
	}
}

// Distance is the great-circle distance between both parties in meters, or
// nil while either side has not reported a location.
func (s *Session) Distance() *float64 {
	if !s.Driver.HasLocation() || !s.Passenger.HasLocation() {
		return nil
	}
	d := geo.Distance(*s.Driver.Latitude, *s.Driver.Longitude, *s.Passenger.Latitude, *s.Passenger.Longitude)
	return &d
}

func (s *Session) ExpiredAt(now time.Time) bool {
	return now.UnixMilli() >= s.ExpiresAt
}

// Remaining is the time left before ExpiresAt, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	d := time.Duration(s.ExpiresAt-now.UnixMilli()) * time.Millisecond
	if d < 0 {
		return 0
	}
	return d
}
