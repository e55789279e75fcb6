package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shindakun/resetpassword/internal/models"
	"github.com/shindakun/resetpassword/internal/reset"
)

const namespace = "resetpassword"

// Recorder counts reset page events
type Recorder struct {
	sessionChecks *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	providerCalls *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		sessionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_checks_total",
			Help:      "Session guard results on the reset page.",
		}, []string{"result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Reset form submissions by outcome.",
		}, []string{"outcome"}),
		providerCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of identity provider calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}

	reg.MustRegister(r.sessionChecks, r.submissions, r.providerCalls)
	return r
}

// SessionChecked counts a session guard result
func (r *Recorder) SessionChecked(result reset.SessionResult) {
	r.sessionChecks.WithLabelValues(string(result)).Inc()
}

// Submitted counts a form submission
func (r *Recorder) Submitted(outcome models.ResetOutcome) {
	r.submissions.WithLabelValues(string(outcome)).Inc()
}

// ObserveProviderCall records the latency of one provider call
func (r *Recorder) ObserveProviderCall(operation string, err error, seconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.providerCalls.WithLabelValues(operation, status).Observe(seconds)
}
