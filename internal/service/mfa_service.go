package service

import (
	"context"

	"authority/internal/domain"
	"authority/internal/dto"
)

type MFAService interface {
	GenerateSecret(ctx context.Context, userID domain.UserID) (*dto.MFASetupResponse, error)
	VerifyToken(ctx context.Context, userID domain.UserID, code string) (bool, error)
	Enable(ctx context.Context, userID domain.UserID, code string) ([]string, error)
	Disable(ctx context.Context, userID domain.UserID) error
	VerifyBackupCode(ctx context.Context, userID domain.UserID, code string) (bool, error)
}
