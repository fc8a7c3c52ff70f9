package events

import "time"

type LoginSucceeded struct {
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId"`
	Method    string    `json:"method"` // password | mfa:totp | mfa:backup | oauth:<provider>
	At        time.Time `json:"at"`
	Meta
}

func (e LoginSucceeded) Action() string  { return "login.succeeded" }
func (e LoginSucceeded) Subject() string { return e.UserID }

type LoginFailed struct {
	UserID   string    `json:"userId,omitempty"`
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts,omitempty"`
	At       time.Time `json:"at"`
	Meta
}

func (e LoginFailed) Action() string  { return "login.failed" }
func (e LoginFailed) Subject() string { return e.UserID }

type AccountLocked struct {
	UserID string    `json:"userId"`
	Until  time.Time `json:"until"`
	At     time.Time `json:"at"`
	Meta
}

func (e AccountLocked) Action() string  { return "login.locked" }
func (e AccountLocked) Subject() string { return e.UserID }
