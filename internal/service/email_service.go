package service

import "context"

type EmailService interface {
	SendWelcome(ctx context.Context, to, name string) error
	SendVerificationOTP(ctx context.Context, to, name, otp string) error
	SendPasswordResetOTP(ctx context.Context, to, name, otp string) error
}
