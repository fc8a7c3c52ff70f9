// Package httpx carries tokens between the auth core and browsers.
package httpx

import (
	"net/http"
	"strings"
	"time"

	"authority/internal/dto"
)

const (
	AccessCookie  = "token"
	RefreshCookie = "refreshToken"
	StateCookie   = "oauth_state"
)

// Cookies sets httpOnly token cookies. Production runs cross-site behind
// the frontend, so it needs Secure plus SameSite=None; development uses Lax.
type Cookies struct {
	Secure   bool
	SameSite http.SameSite
	Now      func() time.Time
}

func NewCookies(production bool) Cookies {
	c := Cookies{SameSite: http.SameSiteLaxMode, Now: time.Now}
	if production {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func (c Cookies) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// SetTokens writes the access cookie and, when present, the refresh cookie.
func (c Cookies) SetTokens(w http.ResponseWriter, t *dto.TokenResponse) {
	if t == nil {
		return
	}
	c.set(w, AccessCookie, t.AccessToken, "/", t.AccessExpiresAt)
	if t.RefreshToken != "" {
		c.set(w, RefreshCookie, t.RefreshToken, "/", t.RefreshExpiresAt)
	}
}

func (c Cookies) ClearTokens(w http.ResponseWriter) {
	c.clear(w, AccessCookie, "/")
	c.clear(w, RefreshCookie, "/")
}

// SetState stores the OAuth state for the callback to compare against.
func (c Cookies) SetState(w http.ResponseWriter, state string, ttl time.Duration) {
	c.set(w, StateCookie, state, "/api/oauth", c.now().Add(ttl))
}

func (c Cookies) ClearState(w http.ResponseWriter) { c.clear(w, StateCookie, "/api/oauth") }

func (c Cookies) set(w http.ResponseWriter, name, value, path string, expires time.Time) {
	maxAge := int(expires.Sub(c.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func (c Cookies) clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// AccessToken prefers an Authorization bearer header over the cookie.
func AccessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return cookieValue(r, AccessCookie)
}

func RefreshToken(r *http.Request) string { return cookieValue(r, RefreshCookie) }

func State(r *http.Request) string { return cookieValue(r, StateCookie) }

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
