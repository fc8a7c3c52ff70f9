package http

import (
	"log/slog"
	"net/http"
	"time"

	"authority/internal/httpx"
	"authority/internal/oauth"
	obsmw "authority/internal/observability/middleware"
	"authority/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	APIURL      string
	FrontendURL string
	CORSOrigins []string
	Production  bool

	LoginRateLimit  int
	LoginRateWindow time.Duration
	APIRateLimit    int
	APIRateWindow   time.Duration
	RequestTimeout  time.Duration
}

type Deps struct {
	Auth     service.AuthService
	MFA      service.MFAService
	Sessions service.SessionRegistry
	OAuth    *oauth.Registry
	Logger   *slog.Logger
}

type handler struct {
	auth      service.AuthService
	mfa       service.MFAService
	sessions  service.SessionRegistry
	providers *oauth.Registry
	cfg       Config
	cookies   httpx.Cookies
	logger    *slog.Logger
}

func NewRouter(cfg Config, d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.OAuth == nil {
		d.OAuth = oauth.NewRegistry()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	h := &handler{
		auth:      d.Auth,
		mfa:       d.MFA,
		sessions:  d.Sessions,
		providers: d.OAuth,
		cfg:       cfg,
		cookies:   httpx.NewCookies(cfg.Production),
		logger:    d.Logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(obsmw.WithRequestAndTrace)
	r.Use(obsmw.Instrument(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	if cfg.APIRateLimit > 0 {
		r.Use(httprate.Limit(cfg.APIRateLimit, cfg.APIRateWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(h.tooManyRequests),
		))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(h.originGuard().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.With(h.limitByIPAnd("email")).Post("/login", h.login)
			r.With(h.optionalAuth).Post("/logout", h.logout)
			r.Post("/refresh-token", h.refresh)
			r.With(h.limitByIPAnd("email")).Post("/forgot-password", h.forgotPassword)
			r.With(h.limitByIPAnd("email")).Post("/reset-password", h.resetPassword)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Get("/is-authenticated", h.isAuthenticated)
				r.Post("/send-verification-otp", h.sendVerificationOTP)
				r.Post("/verify-otp", h.verifyOTP)
			})
		})

		r.Route("/mfa", func(r chi.Router) {
			r.With(h.limitByIPAnd("challengeId")).Post("/verify-login", h.mfaVerifyLogin)
			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Post("/setup", h.mfaSetup)
				r.Post("/enable", h.mfaEnable)
				r.Post("/disable", h.mfaDisable)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/", h.listSessions)
			r.Delete("/", h.revokeOtherSessions)
			r.Delete("/{id}", h.revokeSession)
		})

		r.With(h.requireAuth).Get("/user/data", h.userData)

		r.Route("/oauth", func(r chi.Router) {
			r.Get("/urls", h.oauthURLs)
			r.Get("/{provider}", h.oauthStart)
			r.Get("/{provider}/callback", h.oauthCallback)
		})
	})
	return r
}

// originGuard rejects cross-origin unsafe requests unless they come from the
// frontend or a configured CORS origin. Requests without browser metadata
// (no Sec-Fetch-Site, no Origin) pass.
func (h *handler) originGuard() *http.CrossOriginProtection {
	cop := http.NewCrossOriginProtection()
	for _, o := range append([]string{h.cfg.FrontendURL}, h.cfg.CORSOrigins...) {
		if o == "" || o == "*" {
			continue
		}
		if err := cop.AddTrustedOrigin(o); err != nil {
			h.logger.Warn("ignoring trusted origin", "origin", o, "err", err)
		}
	}
	cop.SetDenyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.log(r).Warn("cross-origin request rejected",
			"method", r.Method, "path", r.URL.Path,
			"origin", r.Header.Get("Origin"), "fetch_site", r.Header.Get("Sec-Fetch-Site"))
		h.writeAPIError(w, errCrossOrigin)
	}))
	return cop
}
