package service

import (
	"context"

	"authority/internal/domain"
	"authority/internal/dto"
)

// Principal is the caller behind a verified access token.
type Principal struct {
	UserID  domain.UserID
	TokenID string
}

type AuthService interface {
	Register(ctx context.Context, r dto.RegisterRequest, ip, ua string) (*dto.AuthResult, error)
	Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.AuthResult, error)
	VerifyMFALogin(ctx context.Context, r dto.MFALoginRequest, ip, ua string) (*dto.AuthResult, error)
	OAuthLogin(ctx context.Context, p domain.ExternalProfile, ip, ua string) (*dto.AuthResult, error)

	SendVerifyOTP(ctx context.Context, userID domain.UserID) error
	VerifyEmail(ctx context.Context, userID domain.UserID, otp string) error
	ForgotPassword(ctx context.Context, r dto.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, r dto.ResetPasswordRequest) error

	Refresh(ctx context.Context, refreshToken, ip string) (*dto.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string, p *Principal) error
	Authenticate(ctx context.Context, accessToken string) (*Principal, error)
	Me(ctx context.Context, userID domain.UserID) (*dto.UserResponse, error)
	DisableMFA(ctx context.Context, userID domain.UserID, password string) error
}
