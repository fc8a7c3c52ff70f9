package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"authority/internal/domain"
	"authority/internal/httpx"
	"authority/internal/jwtsigner"
	"authority/internal/mailer"
	"authority/internal/oauth"
	"authority/internal/service/impl"
	"authority/internal/store"
	"authority/internal/store/redisstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const password = "Correct-Horse-1"

type fakeProvider struct {
	profile domain.ExternalProfile
}

func (f fakeProvider) Name() string { return f.profile.Provider }

func (f fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state)
}

func (f fakeProvider) ResolveProfile(_ context.Context, code string) (domain.ExternalProfile, error) {
	if code != "good-code" {
		return domain.ExternalProfile{}, domain.ErrInvalidToken
	}
	return f.profile, nil
}

type server struct {
	t      *testing.T
	router http.Handler
	auth   *impl.AuthServiceImpl
	mfa    *impl.MFAServiceImpl
}

func newServer(t *testing.T, mutate func(*Config)) *server {
	t.Helper()
	ctx := context.Background()

	st, err := store.OpenMemory(ctx, "router_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ids := st.Identities()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	access, err := jwtsigner.New(jwtsigner.Access, "access-secret", "authority-test")
	require.NoError(t, err)
	refresh, err := jwtsigner.New(jwtsigner.Refresh, "refresh-secret", "authority-test")
	require.NoError(t, err)
	tokens, err := impl.NewTokenServiceHS256(impl.TokenConfig{AccessTTL: 15 * time.Minute, RefreshTTL: time.Hour}, access, refresh)
	require.NoError(t, err)

	mfa := impl.NewMFAService(impl.MFAConfig{Issuer: "Test"}, ids, nil, nil)
	sessions := impl.NewSessionRegistry(ids, 10, nil, nil)
	m, err := mailer.New(&mailer.Recorder{}, mailer.Options{App: "Test"})
	require.NoError(t, err)

	auth, err := impl.NewAuthService(impl.AuthConfig{}, impl.AuthDeps{
		Store:      ids,
		Passwords:  impl.NewPasswordServiceWithParams(impl.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}),
		Tokens:     tokens,
		Sessions:   sessions,
		MFA:        mfa,
		Lockout:    &impl.LockoutGuard{Policy: impl.LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}, Store: ids},
		OTP:        impl.RandomOTP{},
		Challenges: redisstore.NewChallengeStore(rdb, "mfa"),
		Email:      m,
	})
	require.NoError(t, err)
	t.Cleanup(auth.Drain)

	cfg := Config{
		APIURL:      "https://api.example.com",
		FrontendURL: "https://app.example.com",
		CORSOrigins: []string{"https://app.example.com"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	providers := oauth.NewRegistry(fakeProvider{profile: domain.ExternalProfile{
		Provider: "github", ExternalID: "42", Email: "octo@example.com", Name: "Octo",
	}})
	router := NewRouter(cfg, Deps{Auth: auth, MFA: mfa, Sessions: sessions, OAuth: providers})
	return &server{t: t, router: router, auth: auth, mfa: mfa}
}

type call struct {
	method, path string
	body         any
	bearer       string
	cookies      []*http.Cookie
	ip           string
	header       map[string]string
}

func (s *server) do(c call) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "router-test/1.0")
	if c.ip != "" {
		req.Header.Set("X-Forwarded-For", c.ip)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *server) register(email string) {
	s.t.Helper()
	rec := s.do(call{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"name": "Alice", "email": email, "password": password,
	}})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

// login returns the access and refresh cookies of a successful login.
func (s *server) login(email string) (*http.Cookie, *http.Cookie) {
	s.t.Helper()
	rec := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": email, "password": password}})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	access, refresh := cookie(rec, httpx.AccessCookie), cookie(rec, httpx.RefreshCookie)
	require.NotNil(s.t, access)
	require.NotNil(s.t, refresh)
	return access, refresh
}

func TestHealthz(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do(call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRegisterAndLoginSetCookies(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(call{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": password,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "alice@example.com", body["user"].(map[string]any)["email"])
	access := cookie(rec, httpx.AccessCookie)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Nil(t, cookie(rec, httpx.RefreshCookie), "registration opens no session")

	access, refresh := s.login("alice@example.com")
	assert.Greater(t, refresh.MaxAge, access.MaxAge)

	rec = s.do(call{method: http.MethodGet, path: "/api/user/data", cookies: []*http.Cookie{access}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Alice", decodeBody(t, rec)["user"].(map[string]any)["name"])

	rec = s.do(call{method: http.MethodGet, path: "/api/auth/is-authenticated", bearer: access.Value})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorCodes(t *testing.T) {
	s := newServer(t, nil)
	s.register("alice@example.com")

	cases := []struct {
		name   string
		call   call
		status int
		code   string
	}{
		{"unknown email", call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": "nobody@example.com", "password": password}}, http.StatusUnauthorized, "AUTH_004"},
		{"wrong password", call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": "alice@example.com", "password": "Wrong-Pass-1"}}, http.StatusUnauthorized, "AUTH_004"},
		{"validation", call{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{"name": "A", "email": "a@example.com", "password": password}}, http.StatusBadRequest, "REQ_001"},
		{"duplicate", call{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{"name": "Alice", "email": "alice@example.com", "password": password}}, http.StatusBadRequest, "USER_002"},
		{"no token", call{method: http.MethodGet, path: "/api/user/data"}, http.StatusUnauthorized, "AUTH_001"},
		{"garbage token", call{method: http.MethodGet, path: "/api/sessions/", bearer: "garbage"}, http.StatusUnauthorized, "AUTH_001"},
		{"no refresh token", call{method: http.MethodPost, path: "/api/auth/refresh-token"}, http.StatusUnauthorized, "AUTH_003"},
		{"bad reset code", call{method: http.MethodPost, path: "/api/auth/reset-password", body: map[string]string{"email": "alice@example.com", "otp": "000000", "newPassword": "New-Password-2"}}, http.StatusBadRequest, "OTP_001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(tc.call)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.code, body["code"])
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ_002", decodeBody(t, rec)["code"])
}

func TestLockedAccountAnswers423(t *testing.T) {
	s := newServer(t, nil)
	s.register("alice@example.com")
	for i := 0; i < 5; i++ {
		rec := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": "alice@example.com", "password": "Wrong-Pass-1"}})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := s.do(call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": "alice@example.com", "password": password}})
	require.Equal(t, http.StatusLocked, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "ACC_003", body["code"])
	assert.NotEmpty(t, body["lockedUntil"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLoginRateLimit(t *testing.T) {
	s := newServer(t, func(c *Config) {
		c.LoginRateLimit = 3
		c.LoginRateWindow = time.Minute
	})
	attempt := func(email, ip string) int {
		return s.do(call{method: http.MethodPost, path: "/api/auth/login", ip: ip, body: map[string]string{"email": email, "password": "Wrong-Pass-1"}}).Code
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, attempt("victim@example.com", "198.51.100.9"))
	}
	assert.Equal(t, http.StatusTooManyRequests, attempt("victim@example.com", "198.51.100.9"))
	assert.Equal(t, http.StatusUnauthorized, attempt("other@example.com", "198.51.100.9"), "keyed by email too")
	assert.Equal(t, http.StatusUnauthorized, attempt("victim@example.com", "198.51.100.10"), "keyed by ip too")
}

func TestSessionsEndpoints(t *testing.T) {
	s := newServer(t, nil)
	s.register("alice@example.com")
	mine, _ := s.login("alice@example.com")
	other, _ := s.login("alice@example.com")

	rec := s.do(call{method: http.MethodGet, path: "/api/sessions/", cookies: []*http.Cookie{mine}, ip: "203.0.113.7"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list struct {
		Sessions []struct {
			ID        string `json:"id"`
			IPAddress string `json:"ipAddress"`
			IsCurrent bool   `json:"isCurrent"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 2)
	var currentID, otherID string
	for _, ss := range list.Sessions {
		assert.True(t, strings.HasSuffix(ss.IPAddress, "*"), "address %q is not masked", ss.IPAddress)
		if ss.IsCurrent {
			currentID = ss.ID
		} else {
			otherID = ss.ID
		}
	}
	require.NotEmpty(t, currentID)
	require.NotEmpty(t, otherID)

	rec = s.do(call{method: http.MethodDelete, path: "/api/sessions/" + currentID, cookies: []*http.Cookie{mine}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "SES_002", decodeBody(t, rec)["code"])

	rec = s.do(call{method: http.MethodDelete, path: "/api/sessions/unknown", cookies: []*http.Cookie{mine}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SES_001", decodeBody(t, rec)["code"])

	rec = s.do(call{method: http.MethodDelete, path: "/api/sessions/" + otherID, cookies: []*http.Cookie{mine}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(call{method: http.MethodGet, path: "/api/user/data", cookies: []*http.Cookie{other}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "revoked session keeps no access")

	rec = s.do(call{method: http.MethodDelete, path: "/api/sessions/", cookies: []*http.Cookie{mine}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["revoked"])
}

func TestRefreshAndLogout(t *testing.T) {
	s := newServer(t, nil)
	s.register("alice@example.com")
	_, refresh := s.login("alice@example.com")

	rec := s.do(call{method: http.MethodPost, path: "/api/auth/refresh-token", cookies: []*http.Cookie{refresh}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["token"])
	fresh := cookie(rec, httpx.AccessCookie)
	require.NotNil(t, fresh)

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/logout", cookies: []*http.Cookie{fresh, refresh}})
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := cookie(rec, httpx.RefreshCookie)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/refresh-token", body: map[string]string{"refreshToken": refresh.Value}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_003", decodeBody(t, rec)["code"])

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/logout"})
	assert.Equal(t, http.StatusOK, rec.Code, "anonymous logout still clears cookies")
}

func TestForgotPasswordIsUniformOverHTTP(t *testing.T) {
	s := newServer(t, nil)
	s.register("alice@example.com")
	known := s.do(call{method: http.MethodPost, path: "/api/auth/forgot-password", body: map[string]string{"email": "alice@example.com"}})
	unknown := s.do(call{method: http.MethodPost, path: "/api/auth/forgot-password", body: map[string]string{"email": "nobody@example.com"}})
	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
}

func TestMFALoginOverHTTP(t *testing.T) {
	s := newServer(t, nil)
	s.register("alice@example.com")
	access, _ := s.login("alice@example.com")

	rec := s.do(call{method: http.MethodPost, path: "/api/mfa/setup", cookies: []*http.Cookie{access}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	secret := decodeBody(t, rec)["data"].(map[string]any)["secret"].(string)
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	rec = s.do(call{method: http.MethodPost, path: "/api/mfa/enable", cookies: []*http.Cookie{access}, body: map[string]string{"token": code}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var enabled struct {
		Data struct {
			BackupCodes []string `json:"backupCodes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enabled))
	require.NotEmpty(t, enabled.Data.BackupCodes)

	rec = s.do(call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": "alice@example.com", "password": password}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["mfaRequired"])
	assert.Nil(t, body["token"])
	assert.Nil(t, cookie(rec, httpx.AccessCookie), "no tokens before the second factor")
	challenge := body["challengeId"].(string)

	rec = s.do(call{method: http.MethodPost, path: "/api/mfa/verify-login", body: map[string]string{"challengeId": challenge, "backupCode": "deadbeef"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MFA_001", decodeBody(t, rec)["code"])

	rec = s.do(call{method: http.MethodPost, path: "/api/mfa/verify-login", body: map[string]string{"challengeId": challenge, "backupCode": enabled.Data.BackupCodes[0]}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, cookie(rec, httpx.AccessCookie))
	assert.NotNil(t, cookie(rec, httpx.RefreshCookie))
}

func TestOAuthFlow(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(call{method: http.MethodGet, path: "/api/oauth/urls"})
	require.Equal(t, http.StatusOK, rec.Code)
	urls := decodeBody(t, rec)["urls"].(map[string]any)
	assert.Equal(t, "https://api.example.com/api/oauth/github", urls["github"])

	rec = s.do(call{method: http.MethodGet, path: "/api/oauth/gitlab"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(call{method: http.MethodGet, path: "/api/oauth/github"})
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	state := cookie(rec, httpx.StateCookie)
	require.NotNil(t, state)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, loc.Query().Get("state"))

	rec = s.do(call{method: http.MethodGet, path: "/api/oauth/github/callback?code=good-code&state=forged", cookies: []*http.Cookie{state}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example.com/login?error=invalid_state", rec.Header().Get("Location"))
	assert.Nil(t, cookie(rec, httpx.AccessCookie))

	rec = s.do(call{method: http.MethodGet, path: "/api/oauth/github/callback?code=bad-code&state=" + url.QueryEscape(state.Value), cookies: []*http.Cookie{state}})
	assert.Equal(t, "https://app.example.com/login?error=authentication_failed", rec.Header().Get("Location"))

	rec = s.do(call{method: http.MethodGet, path: "/api/oauth/github/callback?code=good-code&state=" + url.QueryEscape(state.Value), cookies: []*http.Cookie{state}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example.com/login?provider=github&success=true", rec.Header().Get("Location"))
	assert.NotNil(t, cookie(rec, httpx.AccessCookie))
	assert.NotNil(t, cookie(rec, httpx.RefreshCookie))
}

func TestCrossOriginWritesAreRejected(t *testing.T) {
	s := newServer(t, nil)
	s.register("alice@example.com")
	access, refresh := s.login("alice@example.com")
	jar := []*http.Cookie{access, refresh}

	hostile := []map[string]string{
		{"Origin": "https://evil.example"},
		{"Sec-Fetch-Site": "cross-site", "Origin": "https://evil.example"},
		{"Sec-Fetch-Site": "same-site", "Origin": "https://evil.api.example.com"},
	}
	for _, path := range []string{"/api/mfa/setup", "/api/auth/send-verification-otp", "/api/auth/logout"} {
		for _, hdr := range hostile {
			rec := s.do(call{method: http.MethodPost, path: path, cookies: jar, header: hdr})
			require.Equal(t, http.StatusForbidden, rec.Code, "%s %v: %s", path, hdr, rec.Body.String())
			assert.Equal(t, "SEC_002", decodeBody(t, rec)["code"])
		}
	}

	rec := s.do(call{method: http.MethodPost, path: "/api/mfa/enable", bearer: access.Value, body: map[string]string{"token": "123456"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MFA setup has not been started", decodeBody(t, rec)["message"], "rejected setup must not store a secret")
	rec = s.do(call{method: http.MethodGet, path: "/api/user/data", cookies: jar})
	require.Equal(t, http.StatusOK, rec.Code, "rejected logout must leave the session alive")

	// reads, the trusted frontend, same-origin and non-browser callers pass
	rec = s.do(call{method: http.MethodGet, path: "/api/sessions/", cookies: jar, header: map[string]string{"Origin": "https://evil.example"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(call{method: http.MethodPost, path: "/api/mfa/setup", cookies: jar, header: map[string]string{
		"Origin": "https://app.example.com", "Sec-Fetch-Site": "same-site",
	}})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(call{method: http.MethodPost, path: "/api/mfa/setup", cookies: jar, header: map[string]string{"Sec-Fetch-Site": "same-origin"}})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(call{method: http.MethodPost, path: "/api/mfa/setup", bearer: access.Value})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
