package impl

import (
	"context"
	"errors"

	"authority/internal/domain"
	"authority/internal/dto"
	"authority/internal/netutil"
	"authority/internal/service"
)

// Refresh trades a live refresh token for a new access token of the same
// session. The session must still be registered.
func (a *AuthServiceImpl) Refresh(ctx context.Context, refreshToken, ip string) (*dto.TokenResponse, error) {
	claims, err := a.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	userID, err := subjectID(claims)
	if err != nil {
		return nil, err
	}
	tokenID := netutil.Fingerprint(refreshToken)
	if err := a.Sessions.Touch(ctx, userID, tokenID, ip); err != nil {
		if errorsIsAny(err, domain.ErrSessionNotFound, domain.ErrNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	return a.Tokens.IssueAccess(userID, tokenID)
}

// Logout forgets the caller's own session. It is idempotent.
func (a *AuthServiceImpl) Logout(ctx context.Context, refreshToken string, p *service.Principal) error {
	if refreshToken != "" {
		if claims, err := a.Tokens.VerifyRefresh(refreshToken); err == nil {
			if userID, err := subjectID(claims); err == nil {
				return a.Sessions.Remove(ctx, userID, netutil.Fingerprint(refreshToken))
			}
		}
	}
	if p != nil && p.TokenID != "" {
		return a.Sessions.Remove(ctx, p.UserID, p.TokenID)
	}
	return nil
}

// Authenticate resolves an access token to its caller. Tokens bound to a
// session stop working as soon as that session is revoked; any token older
// than the identity's revocation cutoff is rejected.
func (a *AuthServiceImpl) Authenticate(ctx context.Context, accessToken string) (*service.Principal, error) {
	claims, err := a.Tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}
	userID, err := subjectID(claims)
	if err != nil {
		return nil, err
	}
	u, err := a.Store.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if claims.IssuedAt == nil || u.TokenIssuedBeforeCutoff(claims.IssuedAt.Time) {
		return nil, domain.ErrInvalidToken
	}
	if claims.SessionID != "" {
		if _, ok := u.SessionByTokenID(claims.SessionID); !ok {
			return nil, domain.ErrInvalidToken
		}
	}
	return &service.Principal{UserID: userID, TokenID: claims.SessionID}, nil
}

func (a *AuthServiceImpl) Me(ctx context.Context, userID domain.UserID) (*dto.UserResponse, error) {
	u, err := a.Store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewUserResponse(u), nil
}

// DisableMFA turns MFA off after the caller re-proves the account password.
func (a *AuthServiceImpl) DisableMFA(ctx context.Context, userID domain.UserID, password string) error {
	if err := (&dto.MFADisableRequest{Password: password}).Validate(); err != nil {
		return err
	}
	u, err := a.Store.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.MFAEnabled {
		return domain.ErrMfaNotEnabled
	}
	if _, ok := a.Passwords.Verify(password, &u.Password); !ok {
		return domain.ErrInvalidCredentials
	}
	return a.MFA.Disable(ctx, userID)
}
