// Package metrics provides observability for the flow machines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks flow lifecycle counts and upstream call durations.
type Metrics struct {
	FlowsStarted      prometheus.Counter
	FlowsCompleted    prometheus.Counter
	FlowsReset        prometheus.Counter
	ChallengesIssued  *prometheus.CounterVec
	ChallengeFailures prometheus.Counter
	RequirementsMet   *prometheus.CounterVec
	HandoffOutcomes   *prometheus.CounterVec
	IdentifyDuration  prometheus.Histogram
	ValidateDuration  prometheus.Histogram
}

// New registers and returns all flow metrics.
func New() *Metrics {
	return &Metrics{
		FlowsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriflow_flows_started_total",
			Help: "Total number of flow instances started",
		}),
		FlowsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriflow_flows_completed_total",
			Help: "Total number of flow instances reaching the complete state",
		}),
		FlowsReset: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriflow_flows_reset_total",
			Help: "Total number of full-flow resets",
		}),
		ChallengesIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_challenges_issued_total",
			Help: "Challenges issued, by kind (initial issues and resends)",
		}, []string{"kind"}),
		ChallengeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veriflow_challenge_failures_total",
			Help: "Challenge verification failures (wrong or expired codes)",
		}),
		RequirementsMet: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_requirements_met_total",
			Help: "Onboarding requirements satisfied, by kind",
		}, []string{"kind"}),
		HandoffOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veriflow_handoff_outcomes_total",
			Help: "Device hand-off terminal outcomes",
		}, []string{"outcome"}),
		IdentifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veriflow_identify_duration_seconds",
			Help:    "Duration of upstream identify calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ValidateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veriflow_validate_duration_seconds",
			Help:    "Duration of finalize/process calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// ObserveIdentify records the duration of an identify call.
func (m *Metrics) ObserveIdentify(start time.Time) {
	m.IdentifyDuration.Observe(time.Since(start).Seconds())
}

// ObserveValidate records the duration of a finalize call.
func (m *Metrics) ObserveValidate(start time.Time) {
	m.ValidateDuration.Observe(time.Since(start).Seconds())
}
