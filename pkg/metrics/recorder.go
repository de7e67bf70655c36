// Package metrics provides Prometheus recording and querying for the
// recruiter: classifier health, dialogue flow, and vouch outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics surface the rest of the system records against.
type Recorder interface {
	// ObserveClassification records one classifier request.
	ObserveClassification(model, status, errorType string, duration time.Duration)
	// IncDegradedTurn counts a turn handled with the fallback classification.
	IncDegradedTurn()
	// IncTransition counts a conversation step transition.
	IncTransition(from, to string)
	// IncClarification counts one clarification round-trip.
	IncClarification()
	// IncEscalation counts a staff escalation by reason.
	IncEscalation(reason string)
	// IncVouchOutcome counts a resolved vouch by outcome.
	IncVouchOutcome(outcome string)
	// SetActiveWaiters tracks how many reply windows are currently armed.
	SetActiveWaiters(n int)
}

// PrometheusRecorder implements Recorder with promauto collectors.
type PrometheusRecorder struct {
	classifierRequests *prometheus.CounterVec
	classifierDuration *prometheus.HistogramVec
	degradedTurns      prometheus.Counter
	transitions        *prometheus.CounterVec
	clarifications     prometheus.Counter
	escalations        *prometheus.CounterVec
	vouchOutcomes      *prometheus.CounterVec
	activeWaiters      prometheus.Gauge
}

// NewPrometheusRecorder creates and registers the recruiter's collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		classifierRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recruiter_classifier_requests_total",
				Help: "Classifier requests by model, status, and error type",
			},
			[]string{"model", "status", "error_type"},
		),
		classifierDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recruiter_classifier_duration_seconds",
				Help:    "Classifier request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		degradedTurns: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "recruiter_degraded_turns_total",
				Help: "Turns handled with the fallback classification",
			},
		),
		transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recruiter_step_transitions_total",
				Help: "Conversation step transitions",
			},
			[]string{"from", "to"},
		),
		clarifications: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "recruiter_clarifications_total",
				Help: "Clarification prompts sent to visitors",
			},
		),
		escalations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recruiter_escalations_total",
				Help: "Conversations escalated to staff by reason",
			},
			[]string{"reason"},
		),
		vouchOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recruiter_vouch_outcomes_total",
				Help: "Resolved vouch confirmations by outcome",
			},
			[]string{"outcome"},
		),
		activeWaiters: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "recruiter_active_waiters",
				Help: "Reply windows currently armed",
			},
		),
	}
}

// ObserveClassification implements Recorder.
func (p *PrometheusRecorder) ObserveClassification(model, status, errorType string, duration time.Duration) {
	p.classifierRequests.WithLabelValues(model, status, errorType).Inc()
	p.classifierDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// IncDegradedTurn implements Recorder.
func (p *PrometheusRecorder) IncDegradedTurn() { p.degradedTurns.Inc() }

// IncTransition implements Recorder.
func (p *PrometheusRecorder) IncTransition(from, to string) {
	p.transitions.WithLabelValues(from, to).Inc()
}

// IncClarification implements Recorder.
func (p *PrometheusRecorder) IncClarification() { p.clarifications.Inc() }

// IncEscalation implements Recorder.
func (p *PrometheusRecorder) IncEscalation(reason string) {
	p.escalations.WithLabelValues(reason).Inc()
}

// IncVouchOutcome implements Recorder.
func (p *PrometheusRecorder) IncVouchOutcome(outcome string) {
	p.vouchOutcomes.WithLabelValues(outcome).Inc()
}

// SetActiveWaiters implements Recorder.
func (p *PrometheusRecorder) SetActiveWaiters(n int) {
	p.activeWaiters.Set(float64(n))
}

// Nop is a Recorder that discards everything, for tests and disabled
// metrics.
type Nop struct{}

// ObserveClassification implements Recorder.
func (Nop) ObserveClassification(string, string, string, time.Duration) {}

// IncDegradedTurn implements Recorder.
func (Nop) IncDegradedTurn() {}

// IncTransition implements Recorder.
func (Nop) IncTransition(string, string) {}

// IncClarification implements Recorder.
func (Nop) IncClarification() {}

// IncEscalation implements Recorder.
func (Nop) IncEscalation(string) {}

// IncVouchOutcome implements Recorder.
func (Nop) IncVouchOutcome(string) {}

// SetActiveWaiters implements Recorder.
func (Nop) SetActiveWaiters(int) {}
