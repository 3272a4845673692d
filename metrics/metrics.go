// Package metrics exports generation counters to Prometheus.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/coursegen/gate"
	"github.com/c360studio/coursegen/llm"
	"github.com/c360studio/coursegen/model"
)

const namespace = "coursegen"

// Outcome labels for upstream attempts.
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Recorder counts upstream attempts, fallback substitutions, and admission
// denials. A nil *Recorder is valid and records nothing.
type Recorder struct {
	attempts  *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	denied    *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg.
// A nil reg leaves the collectors unregistered.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_attempts_total",
			Help:      "Single upstream generation attempts by category and outcome.",
		}, []string{"category", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Fields filled with synthesized fallback content, by category and reason.",
		}, []string{"category", "reason"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_denied_total",
			Help:      "Requests turned away because the category was busy.",
		}, []string{"category"}),
	}
	if reg != nil {
		reg.MustRegister(r.collectors()...)
	}
	return r
}

// ObserveAttempt implements llm.AttemptObserver.
func (r *Recorder) ObserveAttempt(cat model.Category, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
		if llm.ReasonOf(err) == llm.ReasonTimeout {
			outcome = OutcomeTimeout
		}
	}
	r.attempts.WithLabelValues(string(cat), outcome).Inc()
}

// ObserveFallback records a fallback substitution. err is the failure that
// caused it; a busy gate is reported as reason "busy".
func (r *Recorder) ObserveFallback(cat model.Category, err error) {
	if r == nil {
		return
	}
	reason := string(llm.ReasonOf(err))
	if errors.Is(err, gate.ErrBusy) {
		reason = "busy"
		r.denied.WithLabelValues(string(cat)).Inc()
	}
	r.fallbacks.WithLabelValues(string(cat), reason).Inc()
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{r.attempts, r.fallbacks, r.denied}
}
