package realtime

import "github.com/beaconmeet/relay-server-go/internal/model"

// Inbound message types
const (
	TypeLocation = "location"
	TypeMet      = "met"
)

// Outbound message types
const (
	TypeState      = "state"
	TypeConnection = "connection"
	TypeEnded      = "ended"
	TypeError      = "error"
)

const EndReasonMet = "met"

// Inbound is any client message. Coordinates are pointers so a missing
// field can be told apart from zero.
type Inbound struct {
	Type      string   `json:"type"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

type StateMessage struct {
	Type     string         `json:"type"`
	Session  *model.Session `json:"session"`
	Distance *float64       `json:"distance"`
}

func NewStateMessage(session *model.Session) StateMessage {
	return StateMessage{Type: TypeState, Session: session, Distance: session.Distance()}
}

type ConnectionMessage struct {
	Type      string     `json:"type"`
	Role      model.Role `json:"role"`
	Connected bool       `json:"connected"`
}

func NewConnectionMessage(role model.Role, connected bool) ConnectionMessage {
	return ConnectionMessage{Type: TypeConnection, Role: role, Connected: connected}
}

type EndedMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func NewEndedMessage(reason string) EndedMessage {
	return EndedMessage{Type: TypeEnded, Reason: reason}
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}
