package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	ActiveGames          prometheus.Gauge
	PhaseSteps           *prometheus.CounterVec
	ReviewOutcomes       *prometheus.CounterVec
	CollaboratorFailures *prometheus.CounterVec
	BeliefFanoutLatency  prometheus.Histogram
	GamesFinished        *prometheus.CounterVec
	registry             *prometheus.Registry
}

// NewMetrics registers the engine metrics under namespace on a private registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		ActiveGames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_games",
			Help:      "Number of games created and not yet finished",
		}),
		PhaseSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_steps_total",
			Help:      "Moderator steps run, by phase",
		}, []string{"phase"}),
		ReviewOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_outcomes_total",
			Help:      "Review-refine loop commits, by stage and outcome",
		}, []string{"stage", "outcome"}),
		CollaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_failures_total",
			Help:      "Generator calls that failed and fell back, by stage",
		}, []string{"stage"}),
		BeliefFanoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "belief_fanout_seconds",
			Help:      "Time to join a batched belief update",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Finished games, by winning side",
		}, []string{"winner"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.ActiveGames,
		m.PhaseSteps,
		m.ReviewOutcomes,
		m.CollaboratorFailures,
		m.BeliefFanoutLatency,
		m.GamesFinished,
	)
	return m
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncActiveGames counts a created game.
func (m *Metrics) IncActiveGames() {
	if m != nil {
		m.ActiveGames.Inc()
	}
}

// DecActiveGames counts a finished or deleted game.
func (m *Metrics) DecActiveGames() {
	if m != nil {
		m.ActiveGames.Dec()
	}
}

// ObservePhaseStep counts one moderator step in phase.
func (m *Metrics) ObservePhaseStep(phase string) {
	if m != nil {
		m.PhaseSteps.WithLabelValues(phase).Inc()
	}
}

// ObserveReview counts how a review loop ended.
func (m *Metrics) ObserveReview(stage, outcome string) {
	if m != nil {
		m.ReviewOutcomes.WithLabelValues(stage, outcome).Inc()
	}
}

// ObserveCollaboratorFailure counts a failed generator call.
func (m *Metrics) ObserveCollaboratorFailure(stage string) {
	if m != nil {
		m.CollaboratorFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveBeliefFanout records how long one belief fan-out took.
func (m *Metrics) ObserveBeliefFanout(d time.Duration) {
	if m != nil {
		m.BeliefFanoutLatency.Observe(d.Seconds())
	}
}

// ObserveGameFinished counts a finished game by winning side.
func (m *Metrics) ObserveGameFinished(winner string) {
	if m != nil {
		m.GamesFinished.WithLabelValues(winner).Inc()
	}
}
