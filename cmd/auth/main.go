package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authority/internal/config"
	"authority/internal/events"
	"authority/internal/jwtsigner"
	"authority/internal/mailer"
	"authority/internal/oauth"
	"authority/internal/observability/logging"
	"authority/internal/observability/metrics"
	"authority/internal/service"
	impl "authority/internal/service/impl"
	"authority/internal/store"
	"authority/internal/store/mongostore"
	"authority/internal/store/redisstore"
	httpx "authority/internal/transport/http"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()

	logger := logging.New(logging.Options{
		Service: "authority",
		Env:     cfg.Environment,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	slog.SetDefault(logger)
	metrics.MustRegister("authority")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting service", "store", cfg.StoreDriver)

	// 1) identity store
	var (
		ids     service.IdentityStore
		publish = events.Multi{events.LogPublisher{Logger: logger}}
		closers []func()
	)
	switch cfg.StoreDriver {
	case "mongo":
		ms, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			fatal(logger, "mongo connect", err)
		}
		if err := ms.EnsureIndexes(ctx, []string{"google", "github"}); err != nil {
			fatal(logger, "mongo indexes", err)
		}
		ids = ms
		closers = append(closers, func() { _ = ms.Close(context.Background()) })
	default:
		st, err := store.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL, logger)
		if err != nil {
			fatal(logger, "open database", err)
		}
		if err := st.AutoMigrate(ctx); err != nil {
			fatal(logger, "migrate", err)
		}
		ids = st.Identities()
		publish = append(publish, events.StorePublisher{Writer: st.Audit(), Logger: logger})
		closers = append(closers, func() { _ = st.Close() })
	}

	// 2) pending MFA challenges
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		fatal(logger, "redis ping", err)
	}
	closers = append(closers, func() { _ = rdb.Close() })

	// 3) mail
	var sender mailer.Sender = mailer.LogSender{Dir: cfg.MailOutboxDir, Logger: logger}
	if cfg.SMTPConfigFile != "" {
		servers, err := mailer.ReadServerList(cfg.SMTPConfigFile)
		if err != nil {
			fatal(logger, "read smtp config", err)
		}
		smtp, err := mailer.NewSMTPSender(servers, logger)
		if err != nil {
			fatal(logger, "smtp connect", err)
		}
		sender = smtp
		closers = append(closers, smtp.Close)
	}
	mail, err := mailer.New(sender, mailer.Options{App: cfg.MFAIssuer, From: cfg.MailFrom, OTPTTL: cfg.OTPTTL})
	if err != nil {
		fatal(logger, "mail templates", err)
	}

	// 4) services
	access, err := jwtsigner.New(jwtsigner.Access, cfg.AccessSecret, cfg.Issuer)
	if err != nil {
		fatal(logger, "access signer", err)
	}
	refresh, err := jwtsigner.New(jwtsigner.Refresh, cfg.RefreshSecret, cfg.Issuer)
	if err != nil {
		fatal(logger, "refresh signer", err)
	}
	tokens, err := impl.NewTokenServiceHS256(impl.TokenConfig{
		AccessTTL:          cfg.AccessTTL,
		RefreshTTL:         cfg.RefreshTTL,
		RefreshTTLRemember: cfg.RefreshTTLRemember,
	}, access, refresh)
	if err != nil {
		fatal(logger, "token service", err)
	}

	mfa := impl.NewMFAService(impl.MFAConfig{Issuer: cfg.MFAIssuer, BackupCodeCount: cfg.BackupCodeCount}, ids, publish, logger)
	sessions := impl.NewSessionRegistry(ids, cfg.SessionLimit, publish, logger)
	auth, err := impl.NewAuthService(impl.AuthConfig{
		OTPTTL:               cfg.OTPTTL,
		MFAChallengeTTL:      cfg.MFAChallengeTTL,
		MFAChallengeAttempts: cfg.MFAChallengeAttempts,
	}, impl.AuthDeps{
		Store:      ids,
		Passwords:  impl.NewPasswordServiceArgon2id(),
		Tokens:     tokens,
		Sessions:   sessions,
		MFA:        mfa,
		Lockout:    &impl.LockoutGuard{Policy: impl.LockoutPolicy{Threshold: cfg.LockoutThreshold, Duration: cfg.LockoutDuration}, Store: ids},
		OTP:        impl.RandomOTP{},
		Challenges: redisstore.NewChallengeStore(rdb, "authority:mfa"),
		Email:      mail,
		Events:     publish,
		Logger:     logger,
	})
	if err != nil {
		fatal(logger, "auth service", err)
	}

	// 5) OAuth providers with credentials configured
	callback := func(p string) string { return cfg.APIURL + "/api/oauth/" + p + "/callback" }
	var providers []oauth.Provider
	if c := (oauth.Credentials{ClientID: cfg.GoogleClientID, ClientSecret: cfg.GoogleClientSecret, RedirectURL: callback("google")}); c.Enabled() {
		providers = append(providers, oauth.NewGoogle(c))
	}
	if c := (oauth.Credentials{ClientID: cfg.GitHubClientID, ClientSecret: cfg.GitHubClientSecret, RedirectURL: callback("github")}); c.Enabled() {
		providers = append(providers, oauth.NewGitHub(c))
	}
	registry := oauth.NewRegistry(providers...)

	// 6) HTTP
	router := httpx.NewRouter(httpx.Config{
		APIURL:          cfg.APIURL,
		FrontendURL:     cfg.FrontendURL,
		CORSOrigins:     cfg.CORSOrigins,
		Production:      cfg.Production(),
		LoginRateLimit:  cfg.LoginRateLimit,
		LoginRateWindow: cfg.LoginRateWindow,
		APIRateLimit:    cfg.APIRateLimit,
		APIRateWindow:   cfg.APIRateWindow,
	}, httpx.Deps{Auth: auth, MFA: mfa, Sessions: sessions, OAuth: registry, Logger: logger})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authority listening", "addr", srv.Addr, "issuer", cfg.Issuer, "oauth", registry.Names())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	auth.Drain()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	logger.Info("stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
