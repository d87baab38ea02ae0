// Package metrics provides Prometheus instrumentation for the proactive
// operations service.
//
// Metrics exposed:
//   - foresight_cycle_seconds: Histogram of analysis cycle duration
//   - foresight_cycles_total: Counter of cycles by result (completed, skipped)
//   - foresight_points_ingested_total: Counter of accepted metric points
//   - foresight_events_rejected_total: Counter of dropped inbound events by reason
//   - foresight_forecasts_total: Counter of anomaly forecasts by severity
//   - foresight_capacity_predictions_total: Counter of capacity predictions
//   - foresight_risk_assessments_total: Counter of risk assessments by level
//   - foresight_drift_signals_total: Counter of recorded drift signals
//   - foresight_directives_total: Counter of published directives by type
//   - foresight_outbound_failures_total: Counter of failed publish/audit calls by kind
//   - foresight_outbox_dropped_total: Counter of outbound calls dropped on a full queue
//   - foresight_outbox_depth: Gauge of queued outbound calls
//   - foresight_health_events_total: Counter of received health events
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	CycleSeconds        prometheus.Histogram
	CyclesTotal         *prometheus.CounterVec
	PointsIngested      prometheus.Counter
	EventsRejected      *prometheus.CounterVec
	ForecastsTotal      *prometheus.CounterVec
	CapacityPredictions prometheus.Counter
	RiskAssessments     *prometheus.CounterVec
	DriftSignals        prometheus.Counter
	DirectivesTotal     *prometheus.CounterVec
	OutboundFailures    *prometheus.CounterVec
	OutboxDropped       prometheus.Counter
	OutboxDepth         prometheus.Gauge
	HealthEventsTotal   prometheus.Counter
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		CycleSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "foresight_cycle_seconds",
			Help:    "Time spent running one analysis cycle",
			Buckets: prometheus.DefBuckets,
		}),
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_cycles_total",
			Help: "Analysis cycles by result",
		}, []string{"result"}),
		PointsIngested: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_points_ingested_total",
			Help: "Metric points accepted into the buffer",
		}),
		EventsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_events_rejected_total",
			Help: "Inbound events dropped by reason",
		}, []string{"reason"}),
		ForecastsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_forecasts_total",
			Help: "Anomaly forecasts produced by severity",
		}, []string{"severity"}),
		CapacityPredictions: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_capacity_predictions_total",
			Help: "Capacity shortfall predictions produced",
		}),
		RiskAssessments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_risk_assessments_total",
			Help: "Failure risk assessments by level",
		}, []string{"level"}),
		DriftSignals: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_drift_signals_total",
			Help: "Drift signals recorded",
		}),
		DirectivesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_directives_total",
			Help: "Directive events published by type",
		}, []string{"type"}),
		OutboundFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_outbound_failures_total",
			Help: "Failed outbound calls by kind (publish, audit)",
		}, []string{"kind"}),
		OutboxDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_outbox_dropped_total",
			Help: "Outbound calls dropped because the queue was full",
		}),
		OutboxDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "foresight_outbox_depth",
			Help: "Outbound calls waiting in the queue",
		}),
		HealthEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_health_events_total",
			Help: "Health events received",
		}),
	}
}

// RecordCycle records a completed cycle and its duration.
func (m *Metrics) RecordCycle(seconds float64) {
	if m == nil {
		return
	}
	m.CycleSeconds.Observe(seconds)
	m.CyclesTotal.WithLabelValues("completed").Inc()
}

// RecordSkippedCycle records a tick that found a cycle already running.
func (m *Metrics) RecordSkippedCycle() {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues("skipped").Inc()
}

// RecordPoint records an accepted metric point.
func (m *Metrics) RecordPoint() {
	if m == nil {
		return
	}
	m.PointsIngested.Inc()
}

// RecordRejected records a dropped inbound event.
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.EventsRejected.WithLabelValues(reason).Inc()
}

// RecordForecast records an anomaly forecast.
func (m *Metrics) RecordForecast(severity string) {
	if m == nil {
		return
	}
	m.ForecastsTotal.WithLabelValues(severity).Inc()
}

// RecordCapacityPrediction records a capacity prediction.
func (m *Metrics) RecordCapacityPrediction() {
	if m == nil {
		return
	}
	m.CapacityPredictions.Inc()
}

// RecordRiskAssessment records a risk assessment.
func (m *Metrics) RecordRiskAssessment(level string) {
	if m == nil {
		return
	}
	m.RiskAssessments.WithLabelValues(level).Inc()
}

// RecordDriftSignal records a drift signal.
func (m *Metrics) RecordDriftSignal() {
	if m == nil {
		return
	}
	m.DriftSignals.Inc()
}

// RecordDirective records a published directive.
func (m *Metrics) RecordDirective(eventType string) {
	if m == nil {
		return
	}
	m.DirectivesTotal.WithLabelValues(eventType).Inc()
}

// RecordOutboundFailure records a failed publish or audit call.
func (m *Metrics) RecordOutboundFailure(kind string) {
	if m == nil {
		return
	}
	m.OutboundFailures.WithLabelValues(kind).Inc()
}

// RecordOutboxDrop records a call dropped on a full queue.
func (m *Metrics) RecordOutboxDrop() {
	if m == nil {
		return
	}
	m.OutboxDropped.Inc()
}

// SetOutboxDepth sets the current queue depth.
func (m *Metrics) SetOutboxDepth(n int) {
	if m == nil {
		return
	}
	m.OutboxDepth.Set(float64(n))
}

// RecordHealthEvent records a received health event.
func (m *Metrics) RecordHealthEvent() {
	if m == nil {
		return
	}
	m.HealthEventsTotal.Inc()
}
