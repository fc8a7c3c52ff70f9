package impl

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"authority/internal/domain"
	"authority/internal/dto"
	"authority/internal/events"
	"authority/internal/observability/metrics"
)

// SendVerifyOTP stores a fresh verification code, replacing any pending one,
// and mails it.
func (a *AuthServiceImpl) SendVerifyOTP(ctx context.Context, userID domain.UserID) error {
	code, err := a.OTP.Generate()
	if err != nil {
		return err
	}
	expires := a.Clock.now().Add(a.cfg.OTPTTL)
	u, err := a.Store.Update(ctx, userID, func(u *domain.Identity) error {
		if u.Verified {
			return domain.ErrAlreadyVerified
		}
		u.SetVerifyOTP(code, expires)
		return nil
	})
	if err != nil {
		return err
	}
	a.sendMail(ctx, "verify_otp", func(ctx context.Context) error {
		return a.Email.SendVerificationOTP(ctx, u.Email, u.Name, code)
	})
	a.log(ctx).Info("verification otp issued", "user_id", userID)
	return nil
}

// VerifyEmail confirms the address with the verification code. A wrong or
// expired code leaves the record untouched.
func (a *AuthServiceImpl) VerifyEmail(ctx context.Context, userID domain.UserID, otp string) error {
	if err := (&dto.VerifyOTPRequest{OTP: otp}).Validate(); err != nil {
		return err
	}
	now := a.Clock.now()
	_, err := a.Store.Update(ctx, userID, func(u *domain.Identity) error {
		if u.Verified {
			return domain.ErrAlreadyVerified
		}
		if err := checkOTP(u.VerifyOTP, u.VerifyOTPExpiresAt, otp, now); err != nil {
			return err
		}
		u.Verified = true
		u.ClearVerifyOTP()
		return nil
	})
	if err != nil {
		return err
	}
	a.publish(ctx, events.EmailVerified{UserID: userID.String(), At: now})
	return nil
}

// ForgotPassword answers the same way whether or not the email is registered.
func (a *AuthServiceImpl) ForgotPassword(ctx context.Context, r dto.ForgotPasswordRequest) error {
	if err := r.Validate(); err != nil {
		return err
	}
	code, err := a.OTP.Generate()
	if err != nil {
		return err
	}
	u, err := a.Store.GetByEmail(ctx, r.Email)
	if errors.Is(err, domain.ErrNotFound) {
		a.log(ctx).Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	expires := a.Clock.now().Add(a.cfg.OTPTTL)
	u, err = a.Store.Update(ctx, u.ID, func(u *domain.Identity) error {
		u.SetResetOTP(code, expires)
		return nil
	})
	if err != nil {
		return err
	}
	a.sendMail(ctx, "reset_otp", func(ctx context.Context) error {
		return a.Email.SendPasswordResetOTP(ctx, u.Email, u.Name, code)
	})
	a.log(ctx).Info("password reset otp issued", "user_id", u.ID)
	return nil
}

// ResetPassword replaces the password after checking the reset code. Every
// session of the identity is dropped and the lockout counters are cleared.
// Access tokens issued before the reset stop verifying.
func (a *AuthServiceImpl) ResetPassword(ctx context.Context, r dto.ResetPasswordRequest) error {
	if err := r.Validate(); err != nil {
		return err
	}
	u, err := a.Store.GetByEmail(ctx, r.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrInvalidOtp
	}
	if err != nil {
		return err
	}
	now := a.Clock.now()
	// cheap pre-check so a wrong code does not cost a hash
	if err := checkOTP(u.ResetOTP, u.ResetOTPExpiresAt, r.OTP, now); err != nil {
		return err
	}
	cred, err := hashPassword(a.Passwords, r.NewPassword)
	if err != nil {
		return err
	}

	var dropped int
	_, err = a.Store.Update(ctx, u.ID, func(u *domain.Identity) error {
		if err := checkOTP(u.ResetOTP, u.ResetOTPExpiresAt, r.OTP, now); err != nil {
			return err
		}
		u.Password = cred
		u.ClearResetOTP()
		u.ResetLockout()
		dropped = len(u.Sessions)
		u.Sessions = nil
		u.RevokeTokensBefore(now)
		return nil
	})
	if err != nil {
		return err
	}
	if dropped > 0 {
		metrics.SessionsRevokedTotal.WithLabelValues("password_reset").Add(float64(dropped))
	}
	a.publish(ctx, events.PasswordReset{UserID: u.ID.String(), SessionsRevoked: dropped, At: now})
	a.log(ctx).Info("password reset", "user_id", u.ID, "sessions_revoked", dropped)
	return nil
}

// checkOTP compares a stored code of one purpose. Mismatch is reported
// before expiry so a stale guess never learns that a code exists.
func checkOTP(stored string, expires *time.Time, given string, now time.Time) error {
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(given)) != 1 {
		return domain.ErrInvalidOtp
	}
	if expires == nil || !now.Before(*expires) {
		return domain.ErrOtpExpired
	}
	return nil
}
