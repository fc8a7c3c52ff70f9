package domain

import "time"

// Identity is the single keyed record the whole auth core reads and writes.
// Sessions, backup codes and linked providers live inside it so every
// mutation is a single-record update.
type Identity struct {
	ID       UserID             `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string             `gorm:"type:text;not null" json:"name"`
	Email    string             `gorm:"type:text;not null;uniqueIndex:ux_identities_email" json:"email"`
	Password PasswordCredential `gorm:"embedded;embeddedPrefix:password_" json:"-"`

	Verified           bool       `gorm:"not null;default:false" json:"isVerified"`
	VerifyOTP          string     `gorm:"column:verify_otp;type:text" json:"-"`
	VerifyOTPExpiresAt *time.Time `gorm:"column:verify_otp_expires_at" json:"-"`
	ResetOTP           string     `gorm:"column:reset_otp;type:text" json:"-"`
	ResetOTPExpiresAt  *time.Time `gorm:"column:reset_otp_expires_at" json:"-"`

	FailedLoginAttempts int        `gorm:"column:failed_login_attempts;not null;default:0" json:"-"`
	Locked              bool       `gorm:"column:locked;not null;default:false" json:"-"`
	LockedUntil         *time.Time `gorm:"column:locked_until" json:"-"`

	MFAEnabled  bool         `gorm:"column:mfa_enabled;not null;default:false" json:"mfaEnabled"`
	MFASecret   string       `gorm:"column:mfa_secret;type:text" json:"-"`
	MFALastStep int64        `gorm:"column:mfa_last_step;not null;default:0" json:"-"`
	BackupCodes []BackupCode `gorm:"column:backup_codes;type:text;serializer:json" json:"-"`

	Sessions  []Session                 `gorm:"column:sessions;type:text;serializer:json" json:"-"`
	Providers map[string]LinkedProvider `gorm:"column:providers;type:text;serializer:json" json:"-"`

	// TokensValidAfter rejects every access token issued before it, bound
	// to a session or not.
	TokensValidAfter *time.Time `gorm:"column:tokens_valid_after" json:"-"`

	Version   int64     `gorm:"column:version;not null;default:1" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (Identity) TableName() string { return "identities" }

// HasPassword is false for identities created through an OAuth provider.
func (u *Identity) HasPassword() bool { return len(u.Password.Hash) > 0 }

// SetVerifyOTP overwrites any pending verification code.
func (u *Identity) SetVerifyOTP(code string, expiresAt time.Time) {
	u.VerifyOTP = code
	u.VerifyOTPExpiresAt = &expiresAt
}

func (u *Identity) ClearVerifyOTP() {
	u.VerifyOTP = ""
	u.VerifyOTPExpiresAt = nil
}

// SetResetOTP overwrites any pending reset code.
func (u *Identity) SetResetOTP(code string, expiresAt time.Time) {
	u.ResetOTP = code
	u.ResetOTPExpiresAt = &expiresAt
}

func (u *Identity) ClearResetOTP() {
	u.ResetOTP = ""
	u.ResetOTPExpiresAt = nil
}

// ResetLockout returns the identity to the Normal lockout state.
func (u *Identity) ResetLockout() {
	u.FailedLoginAttempts = 0
	u.Locked = false
	u.LockedUntil = nil
}

// RevokeTokensBefore invalidates all access tokens issued before t. Token
// issue times have second precision, so the cutoff is truncated to match.
func (u *Identity) RevokeTokensBefore(t time.Time) {
	cutoff := t.UTC().Truncate(time.Second)
	u.TokensValidAfter = &cutoff
}

// TokenIssuedBeforeCutoff reports whether a token issued at iat was revoked.
func (u *Identity) TokenIssuedBeforeCutoff(iat time.Time) bool {
	return u.TokensValidAfter != nil && iat.Before(*u.TokensValidAfter)
}

// LinkProvider records the provider profile, replacing an older link for the same provider.
func (u *Identity) LinkProvider(provider string, p LinkedProvider) {
	if u.Providers == nil {
		u.Providers = make(map[string]LinkedProvider)
	}
	u.Providers[provider] = p
}
