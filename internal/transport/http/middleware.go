package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"authority/internal/httpx"
	"authority/internal/netutil"
	"authority/internal/service"

	"github.com/go-chi/httprate"
)

type ctxKey int

const principalKey ctxKey = iota

// requireAuth resolves the access token from the Authorization header or
// the token cookie and stores the caller on the context.
func (h *handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := httpx.AccessToken(r)
		if raw == "" {
			h.writeAPIError(w, errUnauthorized)
			return
		}
		p, err := h.auth.Authenticate(r.Context(), raw)
		if err != nil {
			h.log(r).Debug("authentication rejected", "err", err)
			h.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalAuth attaches the caller when a valid token is present and
// carries on anonymously otherwise.
func (h *handler) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := httpx.AccessToken(r); raw != "" {
			if p, err := h.auth.Authenticate(r.Context(), raw); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), principalKey, p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func principalFrom(ctx context.Context) *service.Principal {
	p, _ := ctx.Value(principalKey).(*service.Principal)
	return p
}

// clientIP relies on chi's RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	if ip, ok := netutil.NormalizeIP(r.RemoteAddr); ok {
		return ip
	}
	return r.RemoteAddr
}

func (h *handler) tooManyRequests(w http.ResponseWriter, r *http.Request) {
	h.log(r).Warn("rate limited", "path", r.URL.Path, "ip", clientIP(r))
	h.writeAPIError(w, errTooMany)
}

// limitByIPAnd throttles per client IP and the given JSON body field, so one
// address cannot spray guesses at a single account.
func (h *handler) limitByIPAnd(field string) func(http.Handler) http.Handler {
	if h.cfg.LoginRateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(h.cfg.LoginRateLimit, h.cfg.LoginRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint, bodyFieldKey(field)),
		httprate.WithLimitHandler(h.tooManyRequests),
	)
}

func bodyFieldKey(field string) httprate.KeyFunc {
	return func(r *http.Request) (string, error) {
		return strings.ToLower(peekField(r, field)), nil
	}
}

// peekField reads one string field from a JSON body and restores the body
// for the handler.
func peekField(r *http.Request, field string) string {
	if r.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var m map[string]any
	if json.Unmarshal(raw, &m) != nil {
		return ""
	}
	s, _ := m[field].(string)
	return strings.TrimSpace(s)
}
