// Package drift tracks how far metrics have moved from their first observed
// value and estimates when the movement becomes critical.
package drift

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/foresight/pkg/timeseries"
)

const (
	// SignalThreshold is the absolute drift percentage above which a signal
	// is emitted.
	SignalThreshold = 10.0

	// CriticalThreshold is the absolute drift percentage considered critical.
	CriticalThreshold = 50.0
)

// Signal records a metric that has drifted from its baseline. It is never
// changed after it is created.
type Signal struct {
	ID                    string     `json:"id"`
	NodeID                string     `json:"node_id"`
	Metric                string     `json:"metric"`
	Baseline              float64    `json:"baseline"`
	Current               float64    `json:"current"`
	DriftPercentage       float64    `json:"drift_percentage"`
	DriftVelocity         float64    `json:"drift_velocity"`
	EstimatedCriticalTime *time.Time `json:"estimated_critical_time,omitempty"`
	DetectedAt            time.Time  `json:"detected_at"`
}

// Detector keeps one baseline per metric. It is safe for concurrent use.
type Detector struct {
	analyzer *timeseries.Analyzer
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	baselines map[string]float64
}

// NewDetector creates a detector. Drift velocity is read from the trend of
// the metric's series in analyzer.
func NewDetector(analyzer *timeseries.Analyzer, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		analyzer:  analyzer,
		logger:    logger,
		now:       time.Now,
		baselines: make(map[string]float64),
	}
}

// EstablishBaseline stores value as the metric's baseline unless one is
// already recorded. It reports whether the value was stored.
func (d *Detector) EstablishBaseline(metricID string, value float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.baselines[metricID]; ok {
		return false
	}
	d.baselines[metricID] = value
	return true
}

// Baseline returns the recorded baseline for metricID.
func (d *Detector) Baseline(metricID string) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.baselines[metricID]
	return v, ok
}

// Detect compares current with the metric's baseline. The first observation
// of a metric becomes its baseline and never signals. metricID doubles as
// the series the drift velocity is read from.
func (d *Detector) Detect(nodeID, metricID string, current float64) (Signal, bool) {
	if d.EstablishBaseline(metricID, current) {
		d.logger.Debug("baseline established", "node_id", nodeID, "metric", metricID, "value", current)
		return Signal{}, false
	}

	baseline, _ := d.Baseline(metricID)
	pct := Percentage(baseline, current)
	if math.Abs(pct) <= SignalThreshold {
		return Signal{}, false
	}

	_, velocity := d.analyzer.DetectTrend(metricID)
	now := d.now()

	return Signal{
		ID:                    uuid.NewString(),
		NodeID:                nodeID,
		Metric:                metricID,
		Baseline:              baseline,
		Current:               current,
		DriftPercentage:       pct,
		DriftVelocity:         velocity,
		EstimatedCriticalTime: CriticalTime(pct, velocity, now),
		DetectedAt:            now,
	}, true
}

// Percentage is the signed change from baseline in percent, or 0 for a zero
// baseline.
func Percentage(baseline, current float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (current - baseline) / baseline * 100
}

// CriticalTime estimates when drift reaches CriticalThreshold at the given
// velocity. It returns nil for a non-positive velocity and now when the
// threshold has already been passed.
func CriticalTime(pct, velocity float64, now time.Time) *time.Time {
	if velocity <= 0 {
		return nil
	}

	remaining := CriticalThreshold - math.Abs(pct)
	if remaining <= 0 {
		return &now
	}

	hours := remaining / (velocity * 100)
	at := now.Add(time.Duration(hours * float64(time.Hour)))
	return &at
}
