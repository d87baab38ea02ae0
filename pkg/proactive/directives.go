package proactive

import (
	"time"

	"github.com/HatiCode/foresight/pkg/anomaly"
	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/drift"
	"github.com/HatiCode/foresight/pkg/risk"
)

// Outbound directive event types.
const (
	EventPreventiveAction    = "proactive.preventive_action"
	EventCapacityScaling     = "proactive.capacity_scaling"
	EventMaintenanceRequired = "proactive.maintenance_required"
	EventDriftDetected       = "proactive.drift_detected"
)

// Audit actions, one per record kind.
const (
	ActionAnomalyForecast    = "anomaly_forecast"
	ActionCapacityPrediction = "capacity_prediction"
	ActionRiskAssessment     = "risk_assessment"
	ActionDriftDetection     = "drift_detection"
)

// DriftDirectiveThreshold is the absolute drift percentage above which a
// drift signal is also published as a directive.
const DriftDirectiveThreshold = 20.0

// PreventiveAction is the payload of EventPreventiveAction.
type PreventiveAction struct {
	ForecastID           string           `json:"forecast_id"`
	AnomalyType          anomaly.Type     `json:"anomaly_type"`
	Severity             anomaly.Severity `json:"severity"`
	Action               string           `json:"action"`
	Confidence           float64          `json:"confidence"`
	TimeToAnomalyMinutes float64          `json:"time_to_anomaly_minutes"`
}

// CapacityScaling is the payload of EventCapacityScaling.
type CapacityScaling struct {
	PredictionID          string           `json:"prediction_id"`
	Shortfall             float64          `json:"shortfall"`
	RecommendedScaling    capacity.Scaling `json:"recommended_scaling"`
	Confidence            float64          `json:"confidence"`
	TimeToShortageMinutes float64          `json:"time_to_shortage_minutes"`
}

// MaintenanceRequired is the payload of EventMaintenanceRequired.
type MaintenanceRequired struct {
	AssessmentID           string     `json:"assessment_id"`
	RiskLevel              risk.Level `json:"risk_level"`
	RiskScore              float64    `json:"risk_score"`
	TimeToFailureHours     *float64   `json:"time_to_failure_hours"`
	RecommendedMaintenance []string   `json:"recommended_maintenance"`
}

// DriftDetected is the payload of EventDriftDetected.
type DriftDetected struct {
	SignalID              string     `json:"signal_id"`
	Metric                string     `json:"metric"`
	DriftPercentage       float64    `json:"drift_percentage"`
	EstimatedCriticalTime *time.Time `json:"estimated_critical_time"`
}

func preventiveAction(f anomaly.Forecast, now time.Time) PreventiveAction {
	return PreventiveAction{
		ForecastID:           f.ID,
		AnomalyType:          f.Type,
		Severity:             f.Severity,
		Action:               f.RecommendedAction,
		Confidence:           f.Confidence,
		TimeToAnomalyMinutes: f.PredictedTime.Sub(now).Minutes(),
	}
}

func capacityScaling(p capacity.Prediction, now time.Time) CapacityScaling {
	return CapacityScaling{
		PredictionID:          p.ID,
		Shortfall:             p.Shortfall,
		RecommendedScaling:    p.RecommendedScaling,
		Confidence:            p.Confidence,
		TimeToShortageMinutes: p.PredictedTime.Sub(now).Minutes(),
	}
}

func maintenanceRequired(a risk.Assessment) MaintenanceRequired {
	return MaintenanceRequired{
		AssessmentID:           a.ID,
		RiskLevel:              a.Level,
		RiskScore:              a.Score,
		TimeToFailureHours:     a.TimeToFailureHours,
		RecommendedMaintenance: a.RecommendedMaintenance,
	}
}

func driftDetected(s drift.Signal) DriftDetected {
	return DriftDetected{
		SignalID:              s.ID,
		Metric:                s.Metric,
		DriftPercentage:       s.DriftPercentage,
		EstimatedCriticalTime: s.EstimatedCriticalTime,
	}
}
