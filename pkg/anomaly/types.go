package anomaly

import (
	"fmt"
	"time"
)

// Type classifies the kind of anomaly a forecast predicts.
type Type int

const (
	LatencySpike Type = iota + 1
	ErrorRateIncrease
	ResourceExhaustion
	CapacitySaturation
	TrafficAnomaly
)

func (t Type) String() string {
	switch t {
	case LatencySpike:
		return "latency_spike"
	case ErrorRateIncrease:
		return "error_rate_increase"
	case ResourceExhaustion:
		return "resource_exhaustion"
	case CapacitySaturation:
		return "capacity_saturation"
	case TrafficAnomaly:
		return "traffic_anomaly"
	default:
		return fmt.Sprintf("anomaly_type(%d)", int(t))
	}
}

// MarshalText encodes the type by name.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Severity is an ordered band: Low < Moderate < High < Critical.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityModerate
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityModerate:
		return "moderate"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Actionable reports whether the severity warrants a preventive directive.
func (s Severity) Actionable() bool {
	return s >= SeverityHigh
}

// Forecast is a predicted anomaly for one metric of one node. Apart from
// Prevented, a forecast is never changed after it is created.
type Forecast struct {
	ID                  string    `json:"id"`
	NodeID              string    `json:"node_id"`
	Metric              string    `json:"metric"`
	Type                Type      `json:"anomaly_type"`
	PredictedTime       time.Time `json:"predicted_time"`
	PredictedValue      float64   `json:"predicted_value"`
	Confidence          float64   `json:"confidence"`
	Severity            Severity  `json:"severity"`
	ContributingFactors []string  `json:"contributing_factors"`
	RecommendedAction   string    `json:"recommended_action"`
	CreatedAt           time.Time `json:"created_at"`
	Prevented           bool      `json:"prevented"`
}
