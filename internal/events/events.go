package events

// Event is an audit record emitted by the auth core.
type Event interface {
	Action() string
	Subject() string // user id, may be empty
}

type Meta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}
