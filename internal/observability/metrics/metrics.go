package metrics

import "github.com/prometheus/client_golang/prometheus"

const defaultService = "authority"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	authRegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Total number of registration attempts.",
		},
		[]string{"service", "result"},
	)

	authLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of login attempts.",
		},
		[]string{"service", "result"},
	)

	tokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Total number of tokens issued or refreshed.",
		},
		[]string{"service", "flow", "result"},
	)

	mfaVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_mfa_verifications_total",
			Help: "Total number of second-factor checks by method.",
		},
		[]string{"service", "method", "result"},
	)

	lockoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_lockouts_total",
			Help: "Total number of accounts locked after repeated failures.",
		},
		[]string{"service"},
	)

	sessionsRevokedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sessions_revoked_total",
			Help: "Total number of sessions removed, by scope.",
		},
		[]string{"service", "scope"},
	)
)

// Curried views used by the rest of the service. They are bound to a
// default service name so packages can record metrics in tests without
// registering anything.
var (
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	AuthRegistrationsTotal     *prometheus.CounterVec
	AuthLoginsTotal            *prometheus.CounterVec
	TokensIssuedTotal          *prometheus.CounterVec
	MFAVerificationsTotal      *prometheus.CounterVec
	LockoutsTotal              *prometheus.CounterVec
	SessionsRevokedTotal       *prometheus.CounterVec
)

func init() { curry(defaultService) }

func curry(serviceName string) {
	l := prometheus.Labels{"service": serviceName}
	HTTPRequestsTotal = httpRequestsTotal.MustCurryWith(l)
	HTTPRequestDurationSeconds = httpRequestDurationSeconds.MustCurryWith(l).(*prometheus.HistogramVec)
	AuthRegistrationsTotal = authRegistrationsTotal.MustCurryWith(l)
	AuthLoginsTotal = authLoginsTotal.MustCurryWith(l)
	TokensIssuedTotal = tokensIssuedTotal.MustCurryWith(l)
	MFAVerificationsTotal = mfaVerificationsTotal.MustCurryWith(l)
	LockoutsTotal = lockoutsTotal.MustCurryWith(l)
	SessionsRevokedTotal = sessionsRevokedTotal.MustCurryWith(l)
}

// MustRegister binds the service label and registers every collector with
// the default registry. Call once from main.
func MustRegister(serviceName string) {
	curry(serviceName)
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		authRegistrationsTotal,
		authLoginsTotal,
		tokensIssuedTotal,
		mfaVerificationsTotal,
		lockoutsTotal,
		sessionsRevokedTotal,
	)
}

func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
