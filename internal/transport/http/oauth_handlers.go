package http

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"authority/internal/httpx"

	"github.com/go-chi/chi/v5"
)

const stateTTL = 10 * time.Minute

func (h *handler) oauthURLs(w http.ResponseWriter, r *http.Request) {
	urls := map[string]string{}
	for _, name := range h.providers.Names() {
		urls[name] = h.cfg.APIURL + "/api/oauth/" + name
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool              `json:"success"`
		URLs    map[string]string `json:"urls"`
	}{true, urls})
}

func (h *handler) oauthStart(w http.ResponseWriter, r *http.Request) {
	p, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	state, err := newState()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cookies.SetState(w, state, stateTTL)
	h.log(r).Info("oauth flow started", "provider", p.Name())
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// oauthCallback always ends in a redirect to the frontend login page, with
// either success, a pending MFA challenge or an error reason in the query.
func (h *handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	p, err := h.providers.Get(name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	want := httpx.State(r)
	got := r.URL.Query().Get("state")
	h.cookies.ClearState(w)
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		h.log(r).Warn("oauth state mismatch", "provider", name)
		h.redirectLogin(w, r, url.Values{"error": {"invalid_state"}})
		return
	}
	if e := r.URL.Query().Get("error"); e != "" {
		h.redirectLogin(w, r, url.Values{"error": {e}})
		return
	}

	profile, err := p.ResolveProfile(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.log(r).Error("oauth profile exchange", "provider", name, "err", err)
		h.redirectLogin(w, r, url.Values{"error": {"authentication_failed"}})
		return
	}
	res, err := h.auth.OAuthLogin(r.Context(), profile, clientIP(r), r.UserAgent())
	if err != nil {
		h.log(r).Error("oauth login", "provider", name, "err", err)
		h.redirectLogin(w, r, url.Values{"error": {"authentication_failed"}})
		return
	}
	if res.MFARequired {
		h.redirectLogin(w, r, url.Values{
			"mfaRequired": {"true"},
			"challengeId": {res.ChallengeID},
			"userId":      {res.UserID},
			"provider":    {name},
		})
		return
	}
	h.cookies.SetTokens(w, res.Tokens)
	h.redirectLogin(w, r, url.Values{"success": {"true"}, "provider": {name}})
}

func (h *handler) redirectLogin(w http.ResponseWriter, r *http.Request, q url.Values) {
	http.Redirect(w, r, h.cfg.FrontendURL+"/login?"+q.Encode(), http.StatusFound)
}

func newState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
