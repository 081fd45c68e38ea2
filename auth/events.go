package auth

import "time"

// EventType identifies an auth-state transition.
type EventType string

const (
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTimedOut       EventType = "timed_out"
	EventTokenRefreshed EventType = "token_refreshed"
)

// StateChange is pushed to subscribers whenever the manager changes auth
// state. All transitions are serialized through the manager, so subscribers
// observe them in order.
type StateChange struct {
	Type      EventType
	SessionID string
	UserID    string
	Email     string
	Realm     string
	At        time.Time
}
