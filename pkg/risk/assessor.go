// Package risk scores the likelihood that a node fails soon from its age,
// current health, recent incidents and dependencies.
package risk

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Factor names as they appear in Assessment.Factors.
const (
	FactorAge        = "age_risk"
	FactorHealth     = "health_risk"
	FactorIncident   = "incident_risk"
	FactorDependency = "dependency_risk"
)

// IncidentWindow is how far back incidents count toward incident risk.
const IncidentWindow = 30 * 24 * time.Hour

// DefaultDependencyRisk is the dependency score used when no scorer is
// configured.
const DefaultDependencyRisk = 0.3

// Level is an ordered risk band: Minimal < Low < Moderate < High < Critical.
type Level int

const (
	LevelMinimal Level = iota + 1
	LevelLow
	LevelModerate
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelLow:
		return "low"
	case LevelModerate:
		return "moderate"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("risk_level(%d)", int(l))
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Actionable reports whether the level warrants a maintenance directive.
func (l Level) Actionable() bool {
	return l >= LevelHigh
}

// Incident is a past failure or outage on a node.
type Incident struct {
	At      time.Time `json:"at" yaml:"at"`
	Summary string    `json:"summary,omitempty" yaml:"summary"`
}

// Assessment is a point-in-time failure-risk score for a node. It is never
// changed after it is created.
type Assessment struct {
	ID                     string             `json:"id"`
	NodeID                 string             `json:"node_id"`
	Level                  Level              `json:"risk_level"`
	Score                  float64            `json:"risk_score"`
	Factors                map[string]float64 `json:"risk_factors"`
	TimeToFailureHours     *float64           `json:"time_to_failure_estimate,omitempty"`
	RecommendedMaintenance []string           `json:"recommended_maintenance"`
	AssessedAt             time.Time          `json:"assessed_at"`
}

// DependencyScorer returns a dependency risk in [0, 1] for a node.
type DependencyScorer func(nodeID string) float64

// Assessor computes assessments. It keeps no state between calls.
type Assessor struct {
	dependency DependencyScorer
	logger     *slog.Logger
	now        func() time.Time
}

// NewAssessor creates an assessor. A nil scorer scores every node at
// DefaultDependencyRisk.
func NewAssessor(dependency DependencyScorer, logger *slog.Logger) *Assessor {
	if logger == nil {
		logger = slog.Default()
	}
	if dependency == nil {
		dependency = func(string) float64 { return DefaultDependencyRisk }
	}
	return &Assessor{dependency: dependency, logger: logger, now: time.Now}
}

// Assess scores a node. health maps metric names to their current values.
func (a *Assessor) Assess(nodeID string, health map[string]float64, ageDays float64, incidents []Incident) Assessment {
	now := a.now()

	factors := map[string]float64{
		FactorAge:        AgeRisk(ageDays),
		FactorHealth:     HealthRisk(health),
		FactorIncident:   IncidentRisk(incidents, now),
		FactorDependency: clamp01(a.dependency(nodeID)),
	}

	score := clamp01((factors[FactorAge] + factors[FactorHealth] + factors[FactorIncident] + factors[FactorDependency]) / 4)
	level := LevelFor(score)

	assessment := Assessment{
		ID:                     uuid.NewString(),
		NodeID:                 nodeID,
		Level:                  level,
		Score:                  score,
		Factors:                factors,
		TimeToFailureHours:     TimeToFailure(score),
		RecommendedMaintenance: maintenance(nodeID, factors, level),
		AssessedAt:             now,
	}

	a.logger.Debug("risk assessed",
		"node_id", nodeID,
		"risk_score", score,
		"risk_level", level,
	)
	return assessment
}

// AgeRisk is a step function over component age in days.
func AgeRisk(ageDays float64) float64 {
	switch {
	case ageDays < 30:
		return 0.1
	case ageDays < 90:
		return 0.2
	case ageDays < 180:
		return 0.4
	case ageDays < 365:
		return 0.6
	default:
		return 0.8
	}
}

// HealthRisk is the fraction of metrics that look unhealthy. A metric is
// unhealthy when its name mentions errors and it exceeds 0.01, mentions
// latency and exceeds 1000, or mentions cpu and exceeds 80.
func HealthRisk(health map[string]float64) float64 {
	if len(health) == 0 {
		return 0
	}
	unhealthy := 0
	for name, v := range health {
		if isUnhealthy(name, v) {
			unhealthy++
		}
	}
	return float64(unhealthy) / float64(len(health))
}

func isUnhealthy(metric string, v float64) bool {
	name := strings.ToLower(metric)
	switch {
	case strings.Contains(name, "error"):
		return v > 0.01
	case strings.Contains(name, "latency"):
		return v > 1000
	case strings.Contains(name, "cpu"):
		return v > 80
	default:
		return false
	}
}

// IncidentRisk scores the number of incidents within IncidentWindow of now.
func IncidentRisk(incidents []Incident, now time.Time) float64 {
	cutoff := now.Add(-IncidentWindow)
	recent := 0
	for _, inc := range incidents {
		if !inc.At.Before(cutoff) && !inc.At.After(now) {
			recent++
		}
	}
	switch {
	case recent >= 5:
		return 0.9
	case recent >= 3:
		return 0.6
	case recent >= 1:
		return 0.3
	default:
		return 0.1
	}
}

// LevelFor bands a risk score.
func LevelFor(score float64) Level {
	switch {
	case score > 0.7:
		return LevelCritical
	case score > 0.5:
		return LevelHigh
	case score > 0.3:
		return LevelModerate
	case score > 0.15:
		return LevelLow
	default:
		return LevelMinimal
	}
}

// TimeToFailure buckets a score into an estimated number of hours, or nil
// when the score is below 0.3.
func TimeToFailure(score float64) *float64 {
	var hours float64
	switch {
	case score < 0.3:
		return nil
	case score > 0.7:
		hours = 24
	case score > 0.5:
		hours = 72
	default:
		hours = 168
	}
	return &hours
}

// Per-factor triggers for maintenance recommendations.
const (
	ageTrigger        = 0.6
	healthTrigger     = 0.3
	incidentTrigger   = 0.6
	dependencyTrigger = 0.5
)

func maintenance(nodeID string, factors map[string]float64, level Level) []string {
	var out []string
	if factors[FactorAge] >= ageTrigger {
		out = append(out, "Schedule hardware and software refresh for ageing components")
	}
	if factors[FactorHealth] > healthTrigger {
		out = append(out, "Investigate degraded health metrics and tune resource limits")
	}
	if factors[FactorIncident] >= incidentTrigger {
		out = append(out, "Run a root-cause review of recent incidents")
	}
	if factors[FactorDependency] > dependencyTrigger {
		out = append(out, "Audit upstream dependencies for single points of failure")
	}
	if level.Actionable() {
		out = append(out, fmt.Sprintf("Plan preemptive replacement or failover for %s", nodeID))
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
