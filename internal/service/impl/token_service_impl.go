package impl

import (
	"errors"
	"time"

	"authority/internal/domain"
	"authority/internal/dto"
	"authority/internal/jwtsigner"
	"authority/internal/netutil"
	"authority/internal/observability/metrics"
)

type TokenConfig struct {
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	RefreshTTLRemember time.Duration
}

// TokenServiceImpl signs access and refresh tokens with separate secrets.
// The session a refresh token belongs to is identified by its fingerprint,
// which the access tokens of that session carry as sid.
type TokenServiceImpl struct {
	cfg     TokenConfig
	access  *jwtsigner.Signer
	refresh *jwtsigner.Signer
	clock   Clock
}

func NewTokenServiceHS256(cfg TokenConfig, access, refresh *jwtsigner.Signer) (*TokenServiceImpl, error) {
	if access == nil || refresh == nil {
		return nil, errors.New("token service: both signers are required")
	}
	if access.Kind() != jwtsigner.Access || refresh.Kind() != jwtsigner.Refresh {
		return nil, errors.New("token service: signer kinds swapped")
	}
	if cfg.RefreshTTLRemember == 0 {
		cfg.RefreshTTLRemember = cfg.RefreshTTL
	}
	return &TokenServiceImpl{cfg: cfg, access: access, refresh: refresh}, nil
}

// WithClock pins the time used for issuing and verifying.
func (t *TokenServiceImpl) WithClock(c Clock) *TokenServiceImpl {
	cp := *t
	cp.clock = c
	cp.access = t.access.WithClock(c.now)
	cp.refresh = t.refresh.WithClock(c.now)
	return &cp
}

func (t *TokenServiceImpl) IssuePair(userID domain.UserID, remember bool) (*dto.TokenResponse, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("issue", result).Inc()
	}()

	now := t.clock.now()
	ttl := t.cfg.RefreshTTL
	if remember {
		ttl = t.cfg.RefreshTTLRemember
	}
	refresh, err := t.refresh.Sign(userID.String(), ttl, jwtsigner.Claims{Remember: remember})
	if err != nil {
		result = "failure"
		return nil, err
	}
	tokenID := netutil.Fingerprint(refresh)
	access, err := t.access.Sign(userID.String(), t.cfg.AccessTTL, jwtsigner.Claims{SessionID: tokenID})
	if err != nil {
		result = "failure"
		return nil, err
	}
	return &dto.TokenResponse{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        int64(t.cfg.AccessTTL.Seconds()),
		TokenID:          tokenID,
		AccessExpiresAt:  now.Add(t.cfg.AccessTTL),
		RefreshExpiresAt: now.Add(ttl),
	}, nil
}

func (t *TokenServiceImpl) IssueAccess(userID domain.UserID, tokenID string) (*dto.TokenResponse, error) {
	result := "success"
	flow := "refresh"
	if tokenID == "" {
		flow = "register"
	}
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues(flow, result).Inc()
	}()

	access, err := t.access.Sign(userID.String(), t.cfg.AccessTTL, jwtsigner.Claims{SessionID: tokenID})
	if err != nil {
		result = "failure"
		return nil, err
	}
	return &dto.TokenResponse{
		AccessToken:     access,
		ExpiresIn:       int64(t.cfg.AccessTTL.Seconds()),
		TokenID:         tokenID,
		AccessExpiresAt: t.clock.now().Add(t.cfg.AccessTTL),
	}, nil
}

func (t *TokenServiceImpl) VerifyAccess(raw string) (*jwtsigner.Claims, error) {
	return t.access.Verify(raw)
}

func (t *TokenServiceImpl) VerifyRefresh(raw string) (*jwtsigner.Claims, error) {
	return t.refresh.Verify(raw)
}

// subjectID parses the subject claim into an identity id.
func subjectID(c *jwtsigner.Claims) (domain.UserID, error) {
	id, err := parseUserID(c.Subject)
	if err != nil {
		return id, domain.ErrInvalidToken
	}
	return id, nil
}
