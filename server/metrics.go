package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// verificationsTotal counts verifications by verdict code.
	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smimecheck",
			Subsystem: "engine",
			Name:      "verifications_total",
			Help:      "Total number of completed verifications by verdict code",
		},
		[]string{"code"},
	)

	// verificationFailures counts calls that failed outside the
	// verification contract and produced no verdict.
	verificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "smimecheck",
			Subsystem: "engine",
			Name:      "failures_total",
			Help:      "Total number of verifications aborted without a verdict",
		},
	)

	// verificationDuration measures the time spent in one verification.
	verificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "smimecheck",
			Subsystem: "engine",
			Name:      "verification_duration_seconds",
			Help:      "Verification duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// smtpMessagesTotal counts messages received over SMTP.
	smtpMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "smimecheck",
			Subsystem: "smtp",
			Name:      "messages_total",
			Help:      "Total number of messages received over SMTP",
		},
	)

	// httpVerifyRequestsTotal counts verify requests over the HTTP API.
	httpVerifyRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "smimecheck",
			Subsystem: "http",
			Name:      "verify_requests_total",
			Help:      "Total number of verify requests over the HTTP API",
		},
	)
)

// observeVerification records the outcome and duration of one verification.
func observeVerification(code string, d time.Duration) {
	verificationsTotal.WithLabelValues(code).Inc()
	verificationDuration.Observe(d.Seconds())
}
