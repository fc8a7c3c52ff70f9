package impl

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"authority/internal/domain"
	"authority/internal/jwtsigner"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
)

func TestPasswordHashVerify(t *testing.T) {
	ps := NewPasswordServiceWithParams(cheapArgon2)
	cred, err := hashPassword(ps, testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if cred.Algo != "argon2id" || len(cred.Salt) != 16 || len(cred.Hash) != 32 {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if rehash, ok := ps.Verify(testPassword, &cred); !ok || rehash {
		t.Fatalf("verify = (%v, %v), want (false, true)", rehash, ok)
	}
	if _, ok := ps.Verify("wrong", &cred); ok {
		t.Fatalf("wrong password verified")
	}
	if _, err := hashPassword(ps, ""); err == nil {
		t.Fatalf("empty password hashed")
	}

	other, _ := hashPassword(ps, testPassword)
	if string(other.Hash) == string(cred.Hash) {
		t.Fatalf("salts are not random")
	}
}

func TestPasswordVerifyFlagsOutdatedParams(t *testing.T) {
	old := NewPasswordServiceWithParams(cheapArgon2)
	cred, err := hashPassword(old, testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	stronger := cheapArgon2
	stronger.Time = 2
	cur := NewPasswordServiceWithParams(stronger)
	rehash, ok := cur.Verify(testPassword, &cred)
	if !ok || !rehash {
		t.Fatalf("verify = (%v, %v), want (true, true)", rehash, ok)
	}
}

func TestLoginRehashesWhenPolicyChanges(t *testing.T) {
	h := newHarness(t)
	id := h.register("carol@example.com")

	stronger := cheapArgon2
	stronger.Time = 2
	h.auth.Passwords = NewPasswordServiceWithParams(stronger)
	h.mustLogin("carol@example.com")

	var stored Argon2Params
	if err := json.Unmarshal(h.identity(id).Password.ParamsJSON, &stored); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if stored != stronger {
		t.Fatalf("credential was not rehashed: %+v", stored)
	}
	h.mustLogin("carol@example.com")
}

func TestRandomOTPFormat(t *testing.T) {
	re := regexp.MustCompile(`^[0-9]{6}$`)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := RandomOTP{}.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !re.MatchString(code) {
			t.Fatalf("bad code %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 150 {
		t.Fatalf("codes look repetitive: %d distinct of 200", len(seen))
	}
}

func TestLockoutPolicyEvaluate(t *testing.T) {
	p := LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	until := now.Add(10 * time.Minute)
	past := now.Add(-time.Minute)

	cases := []struct {
		name string
		u    domain.Identity
		want bool
	}{
		{"fresh", domain.Identity{}, false},
		{"below threshold", domain.Identity{FailedLoginAttempts: 4}, false},
		{"locked", domain.Identity{FailedLoginAttempts: 5, Locked: true, LockedUntil: &until}, true},
		{"counter only", domain.Identity{FailedLoginAttempts: 7, LockedUntil: &until}, true},
		{"expired", domain.Identity{FailedLoginAttempts: 5, Locked: true, LockedUntil: &past}, false},
		{"stale deadline", domain.Identity{FailedLoginAttempts: 1, LockedUntil: &until}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := p.Evaluate(&tc.u, now)
			if st.Locked != tc.want {
				t.Fatalf("locked = %v, want %v", st.Locked, tc.want)
			}
			if st.Attempts != tc.u.FailedLoginAttempts {
				t.Fatalf("attempts = %d", st.Attempts)
			}
			if st.Locked && !st.Until.Equal(until) {
				t.Fatalf("until = %s", st.Until)
			}
		})
	}
}

func TestLockoutCheckReturnsDeadline(t *testing.T) {
	g := &LockoutGuard{Policy: LockoutPolicy{Threshold: 5, Duration: time.Hour}}
	now := time.Now().UTC()
	until := now.Add(time.Hour)
	err := g.Check(&domain.Identity{FailedLoginAttempts: 5, Locked: true, LockedUntil: &until}, now)
	locked, ok := err.(*domain.LockedError)
	if !ok || !locked.Until.Equal(until) {
		t.Fatalf("check = %v", err)
	}
	if !g.NeedsReset(&domain.Identity{LockedUntil: &until}) || g.NeedsReset(&domain.Identity{}) {
		t.Fatalf("NeedsReset mismatch")
	}
}

func newTokenService(t *testing.T, clock *fakeClock) *TokenServiceImpl {
	t.Helper()
	access, err := jwtsigner.New(jwtsigner.Access, "a-secret", "iss")
	if err != nil {
		t.Fatal(err)
	}
	refresh, err := jwtsigner.New(jwtsigner.Refresh, "r-secret", "iss")
	if err != nil {
		t.Fatal(err)
	}
	ts, err := NewTokenServiceHS256(TokenConfig{AccessTTL: 15 * time.Minute, RefreshTTL: time.Hour, RefreshTTLRemember: 48 * time.Hour}, access, refresh)
	if err != nil {
		t.Fatal(err)
	}
	return ts.WithClock(clock.Now)
}

func TestTokenServiceIssuePair(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(t, clock)
	uid := uuid.New()

	pair, err := ts.IssuePair(uid, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.ExpiresIn != 900 {
		t.Fatalf("expiresIn = %d", pair.ExpiresIn)
	}
	if !pair.RefreshExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("refresh expiry = %s", pair.RefreshExpiresAt)
	}
	ac, err := ts.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if ac.Subject != uid.String() || ac.SessionID != pair.TokenID {
		t.Fatalf("access claims = %+v", ac)
	}
	if _, err := ts.VerifyAccess(pair.RefreshToken); err != domain.ErrInvalidToken {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
	if _, err := ts.VerifyRefresh(pair.AccessToken); err != domain.ErrInvalidToken {
		t.Fatalf("access token accepted as refresh: %v", err)
	}

	remembered, err := ts.IssuePair(uid, true)
	if err != nil {
		t.Fatal(err)
	}
	if !remembered.RefreshExpiresAt.Equal(clock.Now().Add(48 * time.Hour)) {
		t.Fatalf("remember-me expiry = %s", remembered.RefreshExpiresAt)
	}
	if remembered.TokenID == pair.TokenID {
		t.Fatalf("two pairs share a token id")
	}

	clock.Advance(16 * time.Minute)
	if _, err := ts.VerifyAccess(pair.AccessToken); err != domain.ErrTokenExpired {
		t.Fatalf("expired access token: %v", err)
	}
	if _, err := ts.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("refresh token should still be valid: %v", err)
	}
}

func TestTokenServiceRejectsSwappedSigners(t *testing.T) {
	access, _ := jwtsigner.New(jwtsigner.Access, "a", "iss")
	refresh, _ := jwtsigner.New(jwtsigner.Refresh, "r", "iss")
	if _, err := NewTokenServiceHS256(TokenConfig{}, refresh, access); err == nil {
		t.Fatalf("swapped signers accepted")
	}
}

func TestMatchStepAcceptsPreviousStepOnly(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "Test", AccountName: "a@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 1, 10, 9, 0, 15, 0, time.UTC)
	for _, tc := range []struct {
		at   time.Time
		want bool
	}{
		{now, true},
		{now.Add(-30 * time.Second), true},
		{now.Add(-60 * time.Second), false},
		{now.Add(30 * time.Second), false},
	} {
		code, err := totp.GenerateCode(key.Secret(), tc.at)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := matchStep(key.Secret(), code, now); ok != tc.want {
			t.Fatalf("code from %s: ok = %v, want %v", tc.at, ok, tc.want)
		}
	}
	if _, ok := matchStep(key.Secret(), "12345", now); ok {
		t.Fatalf("short code accepted")
	}
}

func TestBackupCodesAreHashed(t *testing.T) {
	plain, hashed, err := newBackupCodes(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(plain) != 10 || len(hashed) != 10 {
		t.Fatalf("got %d/%d codes", len(plain), len(hashed))
	}
	for i, p := range plain {
		if len(p) != 8 || hashed[i].CodeHash == p || hashed[i].CodeHash != hashBackupCode(p) {
			t.Fatalf("code %d: plain %q hash %q", i, p, hashed[i].CodeHash)
		}
	}
	if hashBackupCode(" ABCDEF12 ") != hashBackupCode("abcdef12") {
		t.Fatalf("backup code comparison is case sensitive")
	}
}
