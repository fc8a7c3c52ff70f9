package impl

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"authority/internal/domain"
	"authority/internal/dto"
	"authority/internal/events"
	"authority/internal/observability/logging"
	"authority/internal/observability/metrics"
	"authority/internal/service"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	qrSize         = 200
	backupCodeSize = 4 // random bytes, 8 hex chars
)

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type MFAConfig struct {
	Issuer          string
	BackupCodeCount int
}

type MFAServiceImpl struct {
	Store  service.IdentityStore
	Events service.EventPublisher
	Logger *slog.Logger
	Clock  Clock
	cfg    MFAConfig
}

func NewMFAService(cfg MFAConfig, st service.IdentityStore, pub service.EventPublisher, logger *slog.Logger) *MFAServiceImpl {
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = 10
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "Auth System"
	}
	return &MFAServiceImpl{Store: st, Events: pub, Logger: logger, cfg: cfg}
}

// GenerateSecret stores a fresh pending secret, replacing any earlier one,
// and returns it with a provisioning URI and QR code.
func (m *MFAServiceImpl) GenerateSecret(ctx context.Context, userID domain.UserID) (*dto.MFASetupResponse, error) {
	u, err := m.Store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return nil, domain.ErrMfaAlreadyEnabled
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: u.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}
	_, err = m.Store.Update(ctx, userID, func(u *domain.Identity) error {
		if u.MFAEnabled {
			return domain.ErrMfaAlreadyEnabled
		}
		u.MFASecret = key.Secret()
		u.MFALastStep = 0
		return nil
	})
	if err != nil {
		return nil, err
	}

	qr, err := qrDataURL(key)
	if err != nil {
		return nil, err
	}
	return &dto.MFASetupResponse{Secret: key.Secret(), QRCode: qr, OTPAuthURL: key.URL()}, nil
}

// VerifyToken accepts a code for the current or the previous time step.
// A step at or before the last accepted one is rejected, so a code works once.
func (m *MFAServiceImpl) VerifyToken(ctx context.Context, userID domain.UserID, code string) (ok bool, err error) {
	defer func() {
		metrics.MFAVerificationsTotal.WithLabelValues("totp", metrics.Result(errIfFalse(ok, err))).Inc()
	}()
	now := m.Clock.now()
	_, err = m.Store.Update(ctx, userID, func(u *domain.Identity) error {
		if u.MFASecret == "" {
			return domain.ErrMfaNotSetup
		}
		step, matched := matchStep(u.MFASecret, code, now)
		if !matched {
			return domain.ErrInvalidCode
		}
		if step <= u.MFALastStep {
			return errReplayedCode
		}
		u.MFALastStep = step
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errorsIsAny(err, domain.ErrInvalidCode, errReplayedCode):
		return false, nil
	default:
		return false, err
	}
}

// Enable checks code against the pending secret and, on success, turns MFA
// on with a fresh set of backup codes. The plaintext codes are returned once.
func (m *MFAServiceImpl) Enable(ctx context.Context, userID domain.UserID, code string) ([]string, error) {
	now := m.Clock.now()
	plain, hashed, err := newBackupCodes(m.cfg.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	_, err = m.Store.Update(ctx, userID, func(u *domain.Identity) error {
		if u.MFAEnabled {
			return domain.ErrMfaAlreadyEnabled
		}
		if u.MFASecret == "" {
			return domain.ErrMfaNotSetup
		}
		step, matched := matchStep(u.MFASecret, code, now)
		if !matched || step <= u.MFALastStep {
			return domain.ErrInvalidCode
		}
		u.MFAEnabled = true
		u.MFALastStep = step
		u.BackupCodes = hashed
		return nil
	})
	metrics.MFAVerificationsTotal.WithLabelValues("enable", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.MfaEnabled{UserID: userID.String(), BackupCodes: len(plain), At: now})
	logging.FromContext(ctx, m.Logger).Info("mfa enabled", "user_id", userID)
	return plain, nil
}

// Disable drops the secret and all backup codes. The caller has already
// re-proven the account password.
func (m *MFAServiceImpl) Disable(ctx context.Context, userID domain.UserID) error {
	_, err := m.Store.Update(ctx, userID, func(u *domain.Identity) error {
		if !u.MFAEnabled && u.MFASecret == "" {
			return domain.ErrMfaNotEnabled
		}
		u.ClearMFA()
		return nil
	})
	if err != nil {
		return err
	}
	m.publish(ctx, events.MfaDisabled{UserID: userID.String(), At: m.Clock.now()})
	logging.FromContext(ctx, m.Logger).Info("mfa disabled", "user_id", userID)
	return nil
}

// VerifyBackupCode consumes a matching unused code. Consumption is part of
// the record update, so two concurrent uses of one code cannot both succeed.
func (m *MFAServiceImpl) VerifyBackupCode(ctx context.Context, userID domain.UserID, code string) (ok bool, err error) {
	defer func() {
		metrics.MFAVerificationsTotal.WithLabelValues("backup", metrics.Result(errIfFalse(ok, err))).Inc()
	}()
	now := m.Clock.now()
	h := hashBackupCode(code)
	var remaining int
	_, err = m.Store.Update(ctx, userID, func(u *domain.Identity) error {
		if !u.MFAEnabled {
			return domain.ErrMfaNotEnabled
		}
		if !u.ConsumeBackupCode(h, now) {
			return domain.ErrInvalidCode
		}
		remaining = u.UnusedBackupCodes()
		return nil
	})
	switch {
	case err == nil:
	case errorsIsAny(err, domain.ErrInvalidCode):
		return false, nil
	default:
		return false, err
	}
	m.publish(ctx, events.BackupCodeUsed{UserID: userID.String(), Remaining: remaining, At: now})
	return true, nil
}

func (m *MFAServiceImpl) publish(ctx context.Context, e events.Event) {
	if m.Events != nil {
		m.Events.Publish(ctx, e)
	}
}

// matchStep compares code against the current and previous time steps and
// returns the step that matched.
func matchStep(secret, code string, now time.Time) (int64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return 0, false
	}
	cur := now.Unix() / totpPeriod
	for _, step := range []int64{cur, cur - 1} {
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0), totpOpts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

func newBackupCodes(n int) ([]string, []domain.BackupCode, error) {
	plain := make([]string, n)
	hashed := make([]domain.BackupCode, n)
	buf := make([]byte, backupCodeSize)
	for i := range plain {
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, fmt.Errorf("generate backup code: %w", err)
		}
		plain[i] = hex.EncodeToString(buf)
		hashed[i] = domain.BackupCode{CodeHash: hashBackupCode(plain[i])}
	}
	return plain, hashed, nil
}

func hashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}

func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func errIfFalse(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCode
	}
	return nil
}
