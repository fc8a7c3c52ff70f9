package jwtsigner

import (
	"errors"
	"fmt"
	"time"

	"authority/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind separates access from refresh tokens. Each kind has its own secret and
// a typ claim, so a token of one kind never verifies as the other.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

type Claims struct {
	Type      Kind   `json:"typ"`
	SessionID string `json:"sid,omitempty"`
	Remember  bool   `json:"rmb,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 JWTs of one kind.
type Signer struct {
	kind   Kind
	secret []byte
	Issuer string
	now    func() time.Time
}

func New(kind Kind, secret, iss string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwtsigner: empty %s secret", kind)
	}
	return &Signer{kind: kind, secret: []byte(secret), Issuer: iss, now: time.Now}, nil
}

// WithClock is used by tests to pin issued-at and expiry.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Signer) Kind() Kind { return s.kind }

// Sign issues a token for subject sub valid for ttl. extra may carry sid and rmb.
// Every token gets a fresh jti, so two tokens are never byte-identical.
func (s *Signer) Sign(sub string, ttl time.Duration, extra Claims) (string, error) {
	now := s.now()
	c := extra
	c.Type = s.kind
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.Issuer,
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Verify returns the claims of a valid token. Expired tokens yield
// domain.ErrTokenExpired, everything else domain.ErrInvalidToken.
func (s *Signer) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, domain.ErrInvalidToken
	}
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, domain.ErrTokenExpired
	default:
		return nil, domain.ErrInvalidToken
	}
	if c.Type != s.kind || c.Subject == "" {
		return nil, domain.ErrInvalidToken
	}
	return &c, nil
}
