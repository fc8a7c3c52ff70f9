package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"authority/internal/domain"
	"authority/internal/dto"
	"authority/internal/events"
	"authority/internal/netutil"
	"authority/internal/observability/logging"
	"authority/internal/observability/metrics"
	"authority/internal/service"

	"github.com/google/uuid"
)

const (
	mailTimeout        = 30 * time.Second
	challengeClaimHold = 10 * time.Second
)

type AuthConfig struct {
	OTPTTL               time.Duration
	MFAChallengeTTL      time.Duration
	MFAChallengeAttempts int
}

// AuthDeps are the collaborators the orchestrator composes.
type AuthDeps struct {
	Store      service.IdentityStore
	Passwords  service.PasswordService
	Tokens     service.TokenService
	Sessions   service.SessionRegistry
	MFA        service.MFAService
	Lockout    *LockoutGuard
	OTP        service.OTPGenerator
	Challenges service.ChallengeStore
	Email      service.EmailService
	Events     service.EventPublisher
	Logger     *slog.Logger
	Clock      Clock
}

// AuthServiceImpl drives register, login, MFA, recovery, refresh and logout.
type AuthServiceImpl struct {
	AuthDeps
	cfg AuthConfig

	// decoy is verified against when the email is unknown so both login
	// failures cost one password hash.
	decoyOnce sync.Once
	decoy     domain.PasswordCredential

	mail sync.WaitGroup
}

func NewAuthService(cfg AuthConfig, deps AuthDeps) (*AuthServiceImpl, error) {
	switch {
	case deps.Store == nil:
		return nil, ErrNilStore
	case deps.Passwords == nil, deps.Tokens == nil, deps.Sessions == nil, deps.MFA == nil,
		deps.Lockout == nil, deps.OTP == nil, deps.Challenges == nil:
		return nil, errors.New("auth service: missing collaborator")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 10 * time.Minute
	}
	if cfg.MFAChallengeTTL <= 0 {
		cfg.MFAChallengeTTL = 5 * time.Minute
	}
	if cfg.MFAChallengeAttempts <= 0 {
		cfg.MFAChallengeAttempts = 5
	}
	return &AuthServiceImpl{AuthDeps: deps, cfg: cfg}, nil
}

func (a *AuthServiceImpl) Register(ctx context.Context, r dto.RegisterRequest, ip, ua string) (_ *dto.AuthResult, err error) {
	defer func() {
		metrics.AuthRegistrationsTotal.WithLabelValues(metrics.Result(err)).Inc()
	}()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	cred, err := hashPassword(a.Passwords, r.Password)
	if err != nil {
		return nil, err
	}
	now := a.Clock.now()
	u := &domain.Identity{
		ID:        uuid.New(),
		Name:      r.Name,
		Email:     r.Email,
		Password:  cred,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.Store.Create(ctx, u); err != nil {
		return nil, err
	}

	tokens, err := a.Tokens.IssueAccess(u.ID, "")
	if err != nil {
		return nil, err
	}

	a.publish(ctx, events.UserRegistered{
		UserID: u.ID.String(),
		Email:  u.Email,
		Method: "password",
		At:     now,
		Meta:   meta(ip, ua),
	})
	a.sendMail(ctx, "welcome", func(ctx context.Context) error {
		return a.Email.SendWelcome(ctx, u.Email, u.Name)
	})
	a.log(ctx).Info("user registered", "user_id", u.ID)

	return &dto.AuthResult{UserID: u.ID.String(), User: dto.NewUserResponse(u), Tokens: tokens}, nil
}

// Login proves the password. Identities with MFA get a challenge instead of tokens.
func (a *AuthServiceImpl) Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (_ *dto.AuthResult, err error) {
	result := "success"
	defer func() {
		switch {
		case errors.Is(err, domain.ErrLocked):
			result = "locked"
		case err != nil:
			result = "failure"
		}
		metrics.AuthLoginsTotal.WithLabelValues(result).Inc()
	}()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	now := a.Clock.now()

	u, err := a.Store.GetByEmail(ctx, r.Email)
	if errors.Is(err, domain.ErrNotFound) {
		a.Passwords.Verify(r.Password, a.decoyCredential())
		a.publish(ctx, events.LoginFailed{Reason: "unknown_email", At: now, Meta: meta(ip, ua)})
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := a.Lockout.Check(u, now); err != nil {
		a.publish(ctx, events.LoginFailed{UserID: u.ID.String(), Reason: "locked", At: now, Meta: meta(ip, ua)})
		return nil, err
	}

	rehash, ok := a.Passwords.Verify(r.Password, &u.Password)
	if !ok {
		return nil, a.loginFailed(ctx, u, now, ip, ua)
	}

	if a.Lockout.NeedsReset(u) || rehash {
		var fresh *domain.PasswordCredential
		if rehash {
			c, err := hashPassword(a.Passwords, r.Password)
			if err != nil {
				return nil, err
			}
			fresh = &c
		}
		u, err = a.Store.Update(ctx, u.ID, func(x *domain.Identity) error {
			x.ResetLockout()
			if fresh != nil {
				x.Password = *fresh
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if u.MFAEnabled {
		result = "mfa_required"
		return a.startChallenge(ctx, u, r.RememberMe, "password")
	}
	return a.completeLogin(ctx, u, r.RememberMe, ip, ua, "password")
}

func (a *AuthServiceImpl) loginFailed(ctx context.Context, u *domain.Identity, now time.Time, ip, ua string) error {
	attempts, locked, until, err := a.Lockout.RegisterFailure(ctx, u.ID, now)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	a.publish(ctx, events.LoginFailed{
		UserID:   u.ID.String(),
		Reason:   "invalid_credentials",
		Attempts: attempts,
		At:       now,
		Meta:     meta(ip, ua),
	})
	if locked {
		metrics.LockoutsTotal.WithLabelValues().Inc()
		a.publish(ctx, events.AccountLocked{UserID: u.ID.String(), Until: until, At: now, Meta: meta(ip, ua)})
		a.log(ctx).Warn("account locked", "user_id", u.ID, "attempts", attempts, "until", until)
	}
	return domain.ErrInvalidCredentials
}

// VerifyMFALogin finishes a login parked at the second factor. The challenge
// can only have been minted after a password or provider proof.
func (a *AuthServiceImpl) VerifyMFALogin(ctx context.Context, r dto.MFALoginRequest, ip, ua string) (*dto.AuthResult, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	// The claim is held from before the lookup until after Consume, so a
	// request racing on the same challenge never spends a backup code or
	// TOTP step.
	release, err := a.Challenges.Claim(ctx, r.ChallengeID, challengeClaimHold)
	if errors.Is(err, domain.ErrConflict) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	defer release()

	ch, err := a.Challenges.Get(ctx, r.ChallengeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if r.UserID != "" && r.UserID != ch.UserID.String() {
		return nil, domain.ErrInvalidCode
	}

	var ok bool
	method := "mfa:totp"
	if r.BackupCode != "" {
		method = "mfa:backup"
		ok, err = a.MFA.VerifyBackupCode(ctx, ch.UserID, r.BackupCode)
	} else {
		ok, err = a.MFA.VerifyToken(ctx, ch.UserID, r.Token)
	}
	if err != nil {
		return nil, err
	}
	now := a.Clock.now()
	if !ok {
		remaining, err := a.Challenges.RecordFailure(ctx, ch.ID, a.cfg.MFAChallengeAttempts)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		a.publish(ctx, events.LoginFailed{UserID: ch.UserID.String(), Reason: "invalid_mfa_code", At: now, Meta: meta(ip, ua)})
		a.log(ctx).Info("mfa code rejected", "user_id", ch.UserID, "remaining", remaining)
		return nil, domain.ErrInvalidCode
	}

	if err := a.Challenges.Consume(ctx, ch.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	u, err := a.Store.GetByID(ctx, ch.UserID)
	if err != nil {
		return nil, err
	}
	return a.completeLogin(ctx, u, ch.Remember, ip, ua, method)
}

// OAuthLogin signs in the identity a provider vouched for, creating or
// linking it as needed. MFA still applies.
func (a *AuthServiceImpl) OAuthLogin(ctx context.Context, p domain.ExternalProfile, ip, ua string) (*dto.AuthResult, error) {
	if p.Provider == "" || p.ExternalID == "" || p.Email == "" {
		return nil, &domain.ValidationError{Field: "profile", Reason: "provider returned an incomplete profile"}
	}
	method := "oauth:" + p.Provider
	now := a.Clock.now()
	link := domain.LinkedProvider{
		ExternalID: p.ExternalID,
		Email:      p.Email,
		Name:       p.Name,
		Picture:    p.Picture,
		LinkedAt:   now,
	}

	u, err := a.Store.GetByProvider(ctx, p.Provider, p.ExternalID)
	if errors.Is(err, domain.ErrNotFound) {
		u, err = a.linkOrCreate(ctx, p, link, ip, ua)
	}
	if err != nil {
		return nil, err
	}

	if u.MFAEnabled {
		return a.startChallenge(ctx, u, false, method)
	}
	return a.completeLogin(ctx, u, false, ip, ua, method)
}

func (a *AuthServiceImpl) linkOrCreate(ctx context.Context, p domain.ExternalProfile, link domain.LinkedProvider, ip, ua string) (*domain.Identity, error) {
	for attempt := 0; attempt < 2; attempt++ {
		u, err := a.Store.GetByEmail(ctx, p.Email)
		if err == nil {
			u, err = a.Store.Update(ctx, u.ID, func(x *domain.Identity) error {
				x.LinkProvider(p.Provider, link)
				x.Verified = true
				return nil
			})
			if err != nil {
				return nil, err
			}
			a.publish(ctx, events.ProviderLinked{UserID: u.ID.String(), Provider: p.Provider, At: link.LinkedAt})
			return u, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}

		placeholder, err := newOpaqueID()
		if err != nil {
			return nil, err
		}
		cred, err := hashPassword(a.Passwords, placeholder)
		if err != nil {
			return nil, err
		}
		name := p.Name
		if name == "" {
			name = p.Email
		}
		u = &domain.Identity{
			ID:        uuid.New(),
			Name:      name,
			Email:     p.Email,
			Password:  cred,
			Verified:  true,
			CreatedAt: link.LinkedAt,
			UpdatedAt: link.LinkedAt,
		}
		u.LinkProvider(p.Provider, link)
		err = a.Store.Create(ctx, u)
		if errors.Is(err, domain.ErrAlreadyExists) {
			// lost a race with a registration for the same email; link instead
			continue
		}
		if err != nil {
			return nil, err
		}
		metrics.AuthRegistrationsTotal.WithLabelValues("success").Inc()
		a.publish(ctx, events.UserRegistered{
			UserID: u.ID.String(),
			Email:  u.Email,
			Method: "oauth:" + p.Provider,
			At:     link.LinkedAt,
			Meta:   meta(ip, ua),
		})
		a.sendMail(ctx, "welcome", func(ctx context.Context) error {
			return a.Email.SendWelcome(ctx, u.Email, u.Name)
		})
		return u, nil
	}
	return nil, domain.ErrConflict
}

func (a *AuthServiceImpl) startChallenge(ctx context.Context, u *domain.Identity, remember bool, method string) (*dto.AuthResult, error) {
	id, err := newOpaqueID()
	if err != nil {
		return nil, err
	}
	ch := service.MFAChallenge{
		ID:        id,
		UserID:    u.ID,
		Remember:  remember,
		Method:    method,
		CreatedAt: a.Clock.now(),
	}
	if err := a.Challenges.Save(ctx, ch, a.cfg.MFAChallengeTTL); err != nil {
		return nil, fmt.Errorf("save mfa challenge: %w", err)
	}
	a.log(ctx).Info("mfa challenge issued", "user_id", u.ID, "method", method)
	return &dto.AuthResult{MFARequired: true, ChallengeID: id, UserID: u.ID.String()}, nil
}

// completeLogin issues a token pair and records the device session.
func (a *AuthServiceImpl) completeLogin(ctx context.Context, u *domain.Identity, remember bool, ip, ua, method string) (*dto.AuthResult, error) {
	tokens, err := a.Tokens.IssuePair(u.ID, remember)
	if err != nil {
		return nil, err
	}
	now := a.Clock.now()
	sess := domain.Session{
		ID:         uuid.NewString(),
		DeviceInfo: netutil.TruncateUserAgent(ua),
		IPAddress:  normalizeIP(ip),
		TokenID:    tokens.TokenID,
		CreatedAt:  now,
		LastActive: now,
	}
	if err := a.Sessions.Add(ctx, u.ID, sess); err != nil {
		return nil, fmt.Errorf("record session: %w", err)
	}

	a.publish(ctx, events.LoginSucceeded{
		UserID:    u.ID.String(),
		SessionID: sess.ID,
		Method:    method,
		At:        now,
		Meta:      meta(ip, ua),
	})
	a.log(ctx).Info("login succeeded", "user_id", u.ID, "session_id", sess.ID, "method", method)

	return &dto.AuthResult{UserID: u.ID.String(), User: dto.NewUserResponse(u), Tokens: tokens}, nil
}

func (a *AuthServiceImpl) decoyCredential() *domain.PasswordCredential {
	a.decoyOnce.Do(func() {
		if c, err := hashPassword(a.Passwords, "decoy-password"); err == nil {
			a.decoy = c
		}
	})
	return &a.decoy
}

// sendMail runs send in the background. Failures are logged and never
// reach the caller.
func (a *AuthServiceImpl) sendMail(ctx context.Context, kind string, send func(ctx context.Context) error) {
	if a.Email == nil {
		return
	}
	logger := a.log(ctx)
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
	a.mail.Add(1)
	go func() {
		defer a.mail.Done()
		defer cancel()
		if err := send(mctx); err != nil {
			logger.Error("send email", "kind", kind, "err", err)
		}
	}()
}

// Drain waits for in-flight emails.
func (a *AuthServiceImpl) Drain() { a.mail.Wait() }

func (a *AuthServiceImpl) publish(ctx context.Context, e events.Event) {
	if a.Events != nil {
		a.Events.Publish(ctx, e)
	}
}

func (a *AuthServiceImpl) log(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, a.Logger)
}

func meta(ip, ua string) events.Meta {
	return events.Meta{IP: normalizeIP(ip), UserAgent: netutil.TruncateUserAgent(ua)}
}
