package domain

import "time"

// Session is one device's ongoing relationship with an identity. TokenID is a
// fingerprint of the refresh token issued to that device; the raw token is never stored.
type Session struct {
	ID         string    `json:"id" bson:"id"`
	DeviceInfo string    `json:"deviceInfo" bson:"deviceInfo"`
	IPAddress  string    `json:"ipAddress" bson:"ipAddress"`
	TokenID    string    `json:"tokenId" bson:"tokenId"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	LastActive time.Time `json:"lastActive" bson:"lastActive"`
}

// AddSession appends s and evicts from the front until at most limit entries remain.
// The evicted sessions are returned oldest first.
func (u *Identity) AddSession(s Session, limit int) []Session {
	if limit < 1 {
		limit = 1
	}
	var evicted []Session
	for len(u.Sessions) >= limit {
		evicted = append(evicted, u.Sessions[0])
		u.Sessions = u.Sessions[1:]
	}
	// copy so the backing array of a decoded record is never shared
	next := make([]Session, 0, len(u.Sessions)+1)
	next = append(next, u.Sessions...)
	u.Sessions = append(next, s)
	return evicted
}

func (u *Identity) SessionByID(id string) (Session, bool) {
	for _, s := range u.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return Session{}, false
}

func (u *Identity) SessionByTokenID(tokenID string) (Session, bool) {
	if tokenID == "" {
		return Session{}, false
	}
	for _, s := range u.Sessions {
		if s.TokenID == tokenID {
			return s, true
		}
	}
	return Session{}, false
}

// RemoveSession deletes the entry with the given id and reports whether it existed.
func (u *Identity) RemoveSession(id string) bool {
	return u.removeWhere(func(s Session) bool { return s.ID == id }) > 0
}

// RemoveSessionByTokenID deletes the entry bound to tokenID.
func (u *Identity) RemoveSessionByTokenID(tokenID string) bool {
	if tokenID == "" {
		return false
	}
	return u.removeWhere(func(s Session) bool { return s.TokenID == tokenID }) > 0
}

// RetainSession keeps only the entry bound to tokenID and returns how many were dropped.
func (u *Identity) RetainSession(tokenID string) int {
	return u.removeWhere(func(s Session) bool { return tokenID == "" || s.TokenID != tokenID })
}

// TouchSession refreshes the activity timestamp of the entry bound to tokenID.
func (u *Identity) TouchSession(tokenID, ip string, at time.Time) bool {
	for i := range u.Sessions {
		if u.Sessions[i].TokenID != tokenID {
			continue
		}
		u.Sessions[i].LastActive = at
		if ip != "" {
			u.Sessions[i].IPAddress = ip
		}
		return true
	}
	return false
}

func (u *Identity) removeWhere(drop func(Session) bool) int {
	kept := make([]Session, 0, len(u.Sessions))
	for _, s := range u.Sessions {
		if !drop(s) {
			kept = append(kept, s)
		}
	}
	removed := len(u.Sessions) - len(kept)
	u.Sessions = kept
	return removed
}
