// Package anomaly evaluates forecast metric levels against per-metric
// ceilings and produces classified, severity-ranked anomaly forecasts.
package anomaly

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/foresight/pkg/timeseries"
)

const (
	// Horizon is how far ahead each metric is forecast.
	Horizon = 30 * time.Minute

	// TrendStrengthTrigger is the trend strength above which an increasing
	// metric near its ceiling is anomalous.
	TrendStrengthTrigger = 0.15

	// NearCeilingRatio is the fraction of the ceiling a trending forecast
	// must exceed.
	NearCeilingRatio = 0.8

	// VolatilityTrigger is the coefficient of variation above which a metric
	// is anomalous regardless of its level.
	VolatilityTrigger = 0.5
)

// Recognized threshold keys.
const (
	LatencyP95        = "latency_p95"
	ErrorRate         = "error_rate"
	CPUUtilization    = "cpu_utilization"
	MemoryUtilization = "memory_utilization"
	DiskUtilization   = "disk_utilization"
)

// DefaultThresholds returns a fresh copy of the built-in metric ceilings.
func DefaultThresholds() map[string]float64 {
	return map[string]float64{
		LatencyP95:        500,
		ErrorRate:         0.01,
		CPUUtilization:    80,
		MemoryUtilization: 85,
		DiskUtilization:   90,
	}
}

// IsRecognizedThreshold reports whether name is a configurable ceiling.
func IsRecognizedThreshold(name string) bool {
	_, ok := DefaultThresholds()[name]
	return ok
}

// Forecaster turns per-metric level forecasts into anomaly forecasts.
// Metrics without a ceiling can still be flagged through volatility.
type Forecaster struct {
	analyzer   *timeseries.Analyzer
	thresholds map[string]float64
	logger     *slog.Logger
	now        func() time.Time
}

// NewForecaster creates a forecaster. overrides replace the default ceiling
// for the metrics they name.
func NewForecaster(analyzer *timeseries.Analyzer, overrides map[string]float64, logger *slog.Logger) *Forecaster {
	if logger == nil {
		logger = slog.Default()
	}

	thresholds := DefaultThresholds()
	maps.Copy(thresholds, overrides)

	return &Forecaster{
		analyzer:   analyzer,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

// Threshold returns the ceiling configured for metric.
func (f *Forecaster) Threshold(metric string) (float64, bool) {
	v, ok := f.thresholds[metric]
	return v, ok
}

// signals is the per-metric analysis a forecast is derived from.
type signals struct {
	forecast   float64
	confidence float64
	trend      timeseries.Trend
	strength   float64
	volatility float64
	threshold  float64
	hasCeiling bool
}

// ForecastNode evaluates every metric of a node, given as metric name to
// series ID, and returns one forecast per anomalous metric in metric-name
// order.
func (f *Forecaster) ForecastNode(nodeID string, metrics map[string]string) []Forecast {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Forecast
	for _, name := range names {
		s := f.analyze(name, metrics[name])
		if !s.anomalous() {
			continue
		}

		fc := f.build(nodeID, name, s)
		f.logger.Debug("anomaly forecast",
			"node_id", nodeID,
			"metric", name,
			"anomaly_type", fc.Type,
			"severity", fc.Severity,
			"forecast", s.forecast,
		)
		out = append(out, fc)
	}
	return out
}

func (f *Forecaster) analyze(metric, seriesID string) signals {
	forecast, confidence := f.analyzer.ForecastNextValue(seriesID, Horizon)
	trend, strength := f.analyzer.DetectTrend(seriesID)
	threshold, ok := f.thresholds[metric]

	return signals{
		forecast:   forecast,
		confidence: confidence,
		trend:      trend,
		strength:   strength,
		volatility: f.analyzer.CalculateVolatility(seriesID),
		threshold:  threshold,
		hasCeiling: ok,
	}
}

func (s signals) anomalous() bool {
	if s.hasCeiling {
		if s.forecast > s.threshold {
			return true
		}
		if s.trend == timeseries.TrendIncreasing && s.strength > TrendStrengthTrigger && s.forecast > NearCeilingRatio*s.threshold {
			return true
		}
	}
	return s.volatility > VolatilityTrigger
}

// combinedScore is the relative overshoot of the ceiling plus the trend
// strength. A metric without a ceiling has an unbounded one and scores 0,
// so volatility alone never ranks above low.
func (s signals) combinedScore() float64 {
	if !s.hasCeiling || s.threshold <= 0 {
		return 0
	}
	return (s.forecast-s.threshold)/s.threshold + s.strength
}

func (s signals) factors(metric string) []string {
	var out []string
	if s.hasCeiling && s.forecast > s.threshold {
		out = append(out, fmt.Sprintf("%s forecast %.4g exceeds threshold %.4g", metric, s.forecast, s.threshold))
	}
	if s.trend == timeseries.TrendIncreasing && s.strength > TrendStrengthTrigger {
		out = append(out, fmt.Sprintf("%s trending %s (strength %.2f)", metric, s.trend, s.strength))
	}
	if s.volatility > VolatilityTrigger {
		out = append(out, fmt.Sprintf("%s volatility %.2f", metric, s.volatility))
	}
	return out
}

func (f *Forecaster) build(nodeID, metric string, s signals) Forecast {
	now := f.now()
	kind := Classify(metric)

	return Forecast{
		ID:                  uuid.NewString(),
		NodeID:              nodeID,
		Metric:              metric,
		Type:                kind,
		PredictedTime:       now.Add(Horizon),
		PredictedValue:      s.forecast,
		Confidence:          s.confidence,
		Severity:            SeverityFor(s.combinedScore()),
		ContributingFactors: s.factors(metric),
		RecommendedAction:   RecommendedAction(kind, nodeID),
		CreatedAt:           now,
	}
}

// Classify maps a metric name to an anomaly type by substring.
func Classify(metric string) Type {
	name := strings.ToLower(metric)
	switch {
	case strings.Contains(name, "latency"):
		return LatencySpike
	case strings.Contains(name, "error"):
		return ErrorRateIncrease
	case strings.Contains(name, "cpu"), strings.Contains(name, "memory"):
		return ResourceExhaustion
	case strings.Contains(name, "capacity"):
		return CapacitySaturation
	default:
		return TrafficAnomaly
	}
}

// SeverityFor bands a combined score.
func SeverityFor(score float64) Severity {
	switch {
	case score > 0.5:
		return SeverityCritical
	case score > 0.3:
		return SeverityHigh
	case score > 0.15:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

// RecommendedAction returns the canned preventive action for an anomaly type.
func RecommendedAction(t Type, nodeID string) string {
	switch t {
	case LatencySpike:
		return fmt.Sprintf("Pre-scale %s and warm caches ahead of the predicted latency spike", nodeID)
	case ErrorRateIncrease:
		return fmt.Sprintf("Review recent changes on %s and prepare a rollback", nodeID)
	case ResourceExhaustion:
		return fmt.Sprintf("Provision additional CPU/memory for %s before exhaustion", nodeID)
	case CapacitySaturation:
		return fmt.Sprintf("Expand capacity for %s ahead of saturation", nodeID)
	default:
		return fmt.Sprintf("Inspect traffic patterns on %s and enable rate limiting if needed", nodeID)
	}
}
