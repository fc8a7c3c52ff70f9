package service

import (
	"context"

	"authority/internal/domain"
	"authority/internal/dto"
)

type SessionRegistry interface {
	Add(ctx context.Context, userID domain.UserID, s domain.Session) error
	List(ctx context.Context, userID domain.UserID, currentTokenID string) ([]dto.SessionResponse, error)
	Revoke(ctx context.Context, userID domain.UserID, sessionID, currentTokenID string) error
	RevokeAll(ctx context.Context, userID domain.UserID, currentTokenID string) (int, error)
	Remove(ctx context.Context, userID domain.UserID, tokenID string) error
	Touch(ctx context.Context, userID domain.UserID, tokenID, ip string) error
}
