package events

import "time"

type UserRegistered struct {
	UserID string    `json:"userId"`
	Email  string    `json:"email"`
	Method string    `json:"method"` // password | oauth:<provider>
	At     time.Time `json:"at"`
	Meta
}

func (e UserRegistered) Action() string  { return "user.registered" }
func (e UserRegistered) Subject() string { return e.UserID }

type EmailVerified struct {
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

func (e EmailVerified) Action() string  { return "user.email_verified" }
func (e EmailVerified) Subject() string { return e.UserID }

type PasswordReset struct {
	UserID          string    `json:"userId"`
	SessionsRevoked int       `json:"sessionsRevoked"`
	At              time.Time `json:"at"`
}

func (e PasswordReset) Action() string  { return "user.password_reset" }
func (e PasswordReset) Subject() string { return e.UserID }

type ProviderLinked struct {
	UserID   string    `json:"userId"`
	Provider string    `json:"provider"`
	At       time.Time `json:"at"`
}

func (e ProviderLinked) Action() string  { return "user.provider_linked" }
func (e ProviderLinked) Subject() string { return e.UserID }
