package dto

import "strings"

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *RegisterRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	if err := validateName(r.Name); err != nil {
		return err
	}
	if err := validateEmail("email", r.Email); err != nil {
		return err
	}
	return validatePassword("password", r.Password)
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// Validate only checks presence; password policy is not enforced at login.
func (r *LoginRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	if err := validateEmail("email", r.Email); err != nil {
		return err
	}
	return required("password", r.Password)
}

// MFALoginRequest completes a login that stopped at the second factor.
// Exactly one of Token and BackupCode is set.
type MFALoginRequest struct {
	ChallengeID string `json:"challengeId"`
	UserID      string `json:"userId,omitempty"`
	Token       string `json:"token,omitempty"`
	BackupCode  string `json:"backupCode,omitempty"`
}

func (r *MFALoginRequest) Validate() error {
	r.Token = strings.TrimSpace(r.Token)
	r.BackupCode = strings.TrimSpace(r.BackupCode)
	if err := required("challengeId", r.ChallengeID); err != nil {
		return err
	}
	switch {
	case r.Token != "" && r.BackupCode != "":
		return invalid("token", "provide either token or backupCode, not both")
	case r.Token == "" && r.BackupCode == "":
		return invalid("token", "token or backupCode is required")
	case r.Token != "":
		return validateOTP("token", r.Token)
	}
	return nil
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r *ForgotPasswordRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	return validateEmail("email", r.Email)
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

func (r *ResetPasswordRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	r.OTP = strings.TrimSpace(r.OTP)
	if err := validateEmail("email", r.Email); err != nil {
		return err
	}
	if err := validateOTP("otp", r.OTP); err != nil {
		return err
	}
	return validatePassword("newPassword", r.NewPassword)
}

type VerifyOTPRequest struct {
	OTP string `json:"otp"`
}

func (r *VerifyOTPRequest) Validate() error {
	r.OTP = strings.TrimSpace(r.OTP)
	return validateOTP("otp", r.OTP)
}

// AuthResult is what a login-like transition hands back to the transport:
// either tokens for a finished login or a pending MFA challenge.
type AuthResult struct {
	MFARequired bool
	ChallengeID string
	UserID      string
	User        *UserResponse
	Tokens      *TokenResponse
}
