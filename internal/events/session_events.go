package events

import "time"

type SessionRevoked struct {
	SessionID string    `json:"sessionId,omitempty"`
	UserID    string    `json:"userId"`
	Scope     string    `json:"scope"` // one | others | logout | evicted
	Count     int       `json:"count"`
	At        time.Time `json:"at"`
}

func (e SessionRevoked) Action() string  { return "session.revoked" }
func (e SessionRevoked) Subject() string { return e.UserID }
