package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the identity paths.
type Metrics struct {
	LoginAttempts      *prometheus.CounterVec
	Lockouts           prometheus.Counter
	RateLimited        prometheus.Counter
	SessionsCreated    prometheus.Counter
	SessionsRevoked    prometheus.Counter
	PasswordChanges    prometheus.Counter
	SecurityEvents     *prometheus.CounterVec
	SessionValidations *prometheus.CounterVec
}

// New registers the identity metric set on the supplied registerer. Passing
// nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		Lockouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "account_lockouts_total",
			Help:      "Accounts locked after repeated failures",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "rate_limited_total",
			Help:      "Login attempts rejected by the rate limiter",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "sessions_created_total",
			Help:      "Sessions issued on successful authentication",
		}),
		SessionsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "sessions_revoked_total",
			Help:      "Sessions invalidated by logout or admin action",
		}),
		PasswordChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "password_changes_total",
			Help:      "Successful password changes and resets",
		}),
		SecurityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "security_events_total",
			Help:      "Security events by severity",
		}, []string{"severity"}),
		SessionValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "session_validations_total",
			Help:      "Session validations by outcome",
		}, []string{"outcome"}),
	}
}
