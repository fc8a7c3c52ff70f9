package impl

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"authority/internal/domain"
	"authority/internal/dto"
	"authority/internal/events"
	"authority/internal/jwtsigner"
	"authority/internal/mailer"
	"authority/internal/store"
	"authority/internal/store/redisstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	testPassword = "Correct-Horse-1"
	testUA       = "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"
	testIP       = "203.0.113.7"
)

// cheapArgon2 keeps hashing fast in tests.
var cheapArgon2 = Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// seqOTP hands out codes in order, repeating the last one.
type seqOTP struct {
	mu    sync.Mutex
	codes []string
}

func (s *seqOTP) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.codes[0]
	if len(s.codes) > 1 {
		s.codes = s.codes[1:]
	}
	return c, nil
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	clock      *fakeClock
	ids        *store.IdentityStore
	redis      *miniredis.Miniredis
	mail       *mailer.Recorder
	events     *events.Recorder
	tokens     *TokenServiceImpl
	mfa        *MFAServiceImpl
	sessions   *SessionRegistryImpl
	challenges *redisstore.ChallengeStore
	auth       *AuthServiceImpl
}

type harnessOption func(*AuthDeps)

func withOTP(g *seqOTP) harnessOption {
	return func(d *AuthDeps) { d.OTP = g }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()
	clock := newFakeClock()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "_" + uuid.NewString()[:8]
	st, err := store.OpenMemory(ctx, name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ids := st.Identities()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	access, err := jwtsigner.New(jwtsigner.Access, "access-secret-for-tests", "authority-test")
	require.NoError(t, err)
	refresh, err := jwtsigner.New(jwtsigner.Refresh, "refresh-secret-for-tests", "authority-test")
	require.NoError(t, err)
	ts, err := NewTokenServiceHS256(TokenConfig{
		AccessTTL:          30 * time.Minute,
		RefreshTTL:         24 * time.Hour,
		RefreshTTLRemember: 7 * 24 * time.Hour,
	}, access, refresh)
	require.NoError(t, err)
	ts = ts.WithClock(clock.Now)

	rec := &events.Recorder{}
	mfa := NewMFAService(MFAConfig{Issuer: "Test", BackupCodeCount: 10}, ids, rec, nil)
	mfa.Clock = clock.Now
	sessions := NewSessionRegistry(ids, 10, rec, nil)
	sessions.Clock = clock.Now

	mailRec := &mailer.Recorder{}
	m, err := mailer.New(mailRec, mailer.Options{App: "Test", OTPTTL: 10 * time.Minute})
	require.NoError(t, err)

	challenges := redisstore.NewChallengeStore(rdb, "mfa")
	deps := AuthDeps{
		Store:      ids,
		Passwords:  NewPasswordServiceWithParams(cheapArgon2),
		Tokens:     ts,
		Sessions:   sessions,
		MFA:        mfa,
		Lockout:    &LockoutGuard{Policy: LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}, Store: ids},
		OTP:        RandomOTP{},
		Challenges: challenges,
		Email:      m,
		Events:     rec,
		Clock:      clock.Now,
	}
	for _, o := range opts {
		o(&deps)
	}
	auth, err := NewAuthService(AuthConfig{OTPTTL: 10 * time.Minute}, deps)
	require.NoError(t, err)
	t.Cleanup(auth.Drain)

	return &harness{
		t: t, ctx: ctx, clock: clock, ids: ids, redis: mr, mail: mailRec, events: rec,
		tokens: ts, mfa: mfa, sessions: sessions, challenges: challenges, auth: auth,
	}
}

func (h *harness) register(email string) domain.UserID {
	h.t.Helper()
	res, err := h.auth.Register(h.ctx, dto.RegisterRequest{Name: "Alice", Email: email, Password: testPassword}, testIP, testUA)
	require.NoError(h.t, err)
	id, err := uuid.Parse(res.UserID)
	require.NoError(h.t, err)
	return id
}

func (h *harness) login(email, password string) (*dto.AuthResult, error) {
	return h.auth.Login(h.ctx, dto.LoginRequest{Email: email, Password: password}, testIP, testUA)
}

func (h *harness) mustLogin(email string) *dto.TokenResponse {
	h.t.Helper()
	res, err := h.login(email, testPassword)
	require.NoError(h.t, err)
	require.False(h.t, res.MFARequired)
	require.NotNil(h.t, res.Tokens)
	return res.Tokens
}

func (h *harness) identity(id domain.UserID) *domain.Identity {
	h.t.Helper()
	u, err := h.ids.GetByID(h.ctx, id)
	require.NoError(h.t, err)
	return u
}

func (h *harness) has(action string) bool {
	for _, a := range h.events.Actions() {
		if a == action {
			return true
		}
	}
	return false
}

func (h *harness) count(action string) int {
	n := 0
	for _, a := range h.events.Actions() {
		if a == action {
			n++
		}
	}
	return n
}
