package accounts

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSink is an ActivitySink that turns lifecycle activity into
// Prometheus counters. It can be chained in front of any other sink.
type MetricsSink struct {
	next ActivitySink

	transitions      *prometheus.CounterVec
	rideTransitions  *prometheus.CounterVec
	logins           *prometheus.CounterVec
	registrations    prometheus.Counter
	emailVerified    prometheus.Counter
	passwordResets   prometheus.Counter
	exportsGenerated prometheus.Counter
}

// NewMetricsSink creates the sink and registers its metrics. Pass the next
// sink to keep auditing while counting, or nil to only count.
func NewMetricsSink(reg prometheus.Registerer, next ActivitySink) *MetricsSink {
	s := &MetricsSink{
		next: normalizeActivitySink(next),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_status_transitions_total",
			Help: "Account lifecycle transitions by source and target status.",
		}, []string{"from", "to"}),
		rideTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_ride_transitions_total",
			Help: "Ride status transitions by source and target status.",
		}, []string{"from", "to"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_registrations_total",
			Help: "Completed account registrations.",
		}),
		emailVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_emails_verified_total",
			Help: "Consumed email verification codes.",
		}),
		passwordResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_password_resets_total",
			Help: "Completed password resets.",
		}),
		exportsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_exports_generated_total",
			Help: "Generated admin CSV exports.",
		}),
	}

	reg.MustRegister(
		s.transitions,
		s.rideTransitions,
		s.logins,
		s.registrations,
		s.emailVerified,
		s.passwordResets,
		s.exportsGenerated,
	)

	return s
}

// Record implements ActivitySink.
func (s *MetricsSink) Record(ctx context.Context, event ActivityEvent) error {
	switch event.EventType {
	case ActivityEventAccountStatusChanged:
		s.transitions.WithLabelValues(event.FromStatus, event.ToStatus).Inc()
	case ActivityEventRideStatusChanged:
		s.rideTransitions.WithLabelValues(event.FromStatus, event.ToStatus).Inc()
	case ActivityEventLoginSuccess:
		s.logins.WithLabelValues("success").Inc()
	case ActivityEventLoginFailure:
		s.logins.WithLabelValues("failure").Inc()
	case ActivityEventAccountRegistered:
		s.registrations.Inc()
	case ActivityEventEmailVerified:
		s.emailVerified.Inc()
	case ActivityEventPasswordResetSuccess:
		s.passwordResets.Inc()
	case ActivityEventExportGenerated:
		s.exportsGenerated.Inc()
	}

	return s.next.Record(ctx, event)
}

// MetricsHandler returns an HTTP handler for Prometheus scrapes.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
