package service

import (
	"authority/internal/domain"
	"authority/internal/dto"
	"authority/internal/jwtsigner"
)

type TokenService interface {
	// IssuePair signs a refresh token and an access token bound to it.
	// The returned TokenID identifies the session the pair belongs to.
	IssuePair(userID domain.UserID, remember bool) (*dto.TokenResponse, error)
	// IssueAccess signs a standalone access token; tokenID may be empty.
	IssueAccess(userID domain.UserID, tokenID string) (*dto.TokenResponse, error)
	VerifyAccess(raw string) (*jwtsigner.Claims, error)
	VerifyRefresh(raw string) (*jwtsigner.Claims, error)
}
