package mongostore

import (
	"fmt"
	"time"

	"authority/internal/domain"

	"github.com/google/uuid"
)

// identityDoc is the stored shape of domain.Identity. Ids are kept as
// strings so documents stay readable in the shell.
type identityDoc struct {
	ID       string                    `bson:"_id"`
	Name     string                    `bson:"name"`
	Email    string                    `bson:"email"`
	Password domain.PasswordCredential `bson:"password"`

	Verified           bool       `bson:"verified"`
	VerifyOTP          string     `bson:"verifyOtp,omitempty"`
	VerifyOTPExpiresAt *time.Time `bson:"verifyOtpExpiresAt,omitempty"`
	ResetOTP           string     `bson:"resetOtp,omitempty"`
	ResetOTPExpiresAt  *time.Time `bson:"resetOtpExpiresAt,omitempty"`

	FailedLoginAttempts int        `bson:"failedLoginAttempts"`
	Locked              bool       `bson:"locked"`
	LockedUntil         *time.Time `bson:"lockedUntil,omitempty"`

	MFAEnabled  bool                `bson:"mfaEnabled"`
	MFASecret   string              `bson:"mfaSecret,omitempty"`
	MFALastStep int64               `bson:"mfaLastStep"`
	BackupCodes []domain.BackupCode `bson:"backupCodes"`

	Sessions  []domain.Session                 `bson:"sessions"`
	Providers map[string]domain.LinkedProvider `bson:"providers,omitempty"`

	TokensValidAfter *time.Time `bson:"tokensValidAfter,omitempty"`

	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func toDoc(u *domain.Identity) *identityDoc {
	return &identityDoc{
		ID:                  u.ID.String(),
		Name:                u.Name,
		Email:               u.Email,
		Password:            u.Password,
		Verified:            u.Verified,
		VerifyOTP:           u.VerifyOTP,
		VerifyOTPExpiresAt:  u.VerifyOTPExpiresAt,
		ResetOTP:            u.ResetOTP,
		ResetOTPExpiresAt:   u.ResetOTPExpiresAt,
		FailedLoginAttempts: u.FailedLoginAttempts,
		Locked:              u.Locked,
		LockedUntil:         u.LockedUntil,
		MFAEnabled:          u.MFAEnabled,
		MFASecret:           u.MFASecret,
		MFALastStep:         u.MFALastStep,
		BackupCodes:         nonNil(u.BackupCodes),
		Sessions:            nonNil(u.Sessions),
		Providers:           u.Providers,
		TokensValidAfter:    u.TokensValidAfter,
		Version:             u.Version,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func fromDoc(d *identityDoc) (*domain.Identity, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("identity document %q: %w", d.ID, err)
	}
	return &domain.Identity{
		ID:                  id,
		Name:                d.Name,
		Email:               d.Email,
		Password:            d.Password,
		Verified:            d.Verified,
		VerifyOTP:           d.VerifyOTP,
		VerifyOTPExpiresAt:  d.VerifyOTPExpiresAt,
		ResetOTP:            d.ResetOTP,
		ResetOTPExpiresAt:   d.ResetOTPExpiresAt,
		FailedLoginAttempts: d.FailedLoginAttempts,
		Locked:              d.Locked,
		LockedUntil:         d.LockedUntil,
		MFAEnabled:          d.MFAEnabled,
		MFASecret:           d.MFASecret,
		MFALastStep:         d.MFALastStep,
		BackupCodes:         d.BackupCodes,
		Sessions:            d.Sessions,
		Providers:           d.Providers,
		TokensValidAfter:    d.TokensValidAfter,
		Version:             d.Version,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}, nil
}

// nonNil keeps arrays as [] rather than null so $push-style shell edits work.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
