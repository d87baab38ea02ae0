package proactive

import (
	"maps"
	"slices"
	"time"

	"github.com/HatiCode/foresight/pkg/risk"
)

// cycle runs the three analysis stages in order. It must only be called
// while c.cycling is held.
func (c *Coordinator) cycle() {
	start := time.Now()
	c.logger.Debug("starting cycle")

	forecasts, directives := c.forecastStage()
	predictions := c.capacityStage()
	assessments, maintenance := c.riskStage()

	duration := time.Since(start)
	c.metrics.RecordCycle(duration.Seconds())
	c.logger.Info("cycle complete",
		"forecasts", forecasts,
		"preventive_actions", directives,
		"capacity_predictions", predictions,
		"assessments", assessments,
		"maintenance_required", maintenance,
		"duration_ms", duration.Milliseconds(),
	)
}

func (c *Coordinator) forecastStage() (int, int) {
	total, actionable := 0, 0

	for _, nodeID := range slices.Sorted(maps.Keys(c.cfg.Watch.Nodes)) {
		for _, f := range c.forecaster.ForecastNode(nodeID, c.cfg.Watch.Nodes[nodeID]) {
			total++
			c.forecasts.Append(f)
			c.metrics.RecordForecast(f.Severity.String())
			c.appendAudit(ActionAnomalyForecast, nodeID, f)

			if f.Severity.Actionable() {
				actionable++
				c.publish(EventPreventiveAction, nodeID, preventiveAction(f, c.now()))
			}
		}
	}
	return total, actionable
}

func (c *Coordinator) capacityStage() int {
	emitted := 0

	for _, r := range c.cfg.Watch.Resources {
		p, ok := c.predictor.Predict(r.ResourceType, r.CurrentCapacity, r.DemandSeries)
		if !ok {
			continue
		}
		emitted++
		c.predictions.Append(p)
		c.metrics.RecordCapacityPrediction()
		c.appendAudit(ActionCapacityPrediction, r.ResourceType, p)
		c.publish(EventCapacityScaling, r.ResourceType, capacityScaling(p, c.now()))
	}
	return emitted
}

func (c *Coordinator) riskStage() (int, int) {
	now := c.now()
	total, actionable := 0, 0

	for _, sys := range c.cfg.Watch.Systems {
		a := c.assessor.Assess(sys.NodeID, c.health(sys), ageDays(sys.CommissionedAt, now), c.incidentsFor(sys))
		total++
		c.assessments.Append(a)
		c.metrics.RecordRiskAssessment(a.Level.String())
		c.appendAudit(ActionRiskAssessment, sys.NodeID, a)

		if a.Level.Actionable() {
			actionable++
			c.publish(EventMaintenanceRequired, sys.NodeID, maintenanceRequired(a))
		}
	}
	return total, actionable
}

// health reads the latest value of each of the system's health series.
// Series with no data are left out.
func (c *Coordinator) health(sys SystemWatch) map[string]float64 {
	out := make(map[string]float64, len(sys.Metrics))
	for metric, seriesID := range sys.Metrics {
		if p, ok := c.buffer.Latest(seriesID); ok {
			out[metric] = p.Value
		}
	}
	return out
}

func ageDays(commissioned, now time.Time) float64 {
	if commissioned.IsZero() || commissioned.After(now) {
		return 0
	}
	return now.Sub(commissioned).Hours() / 24
}

func (c *Coordinator) incidentsFor(sys SystemWatch) []risk.Incident {
	c.incidentsMu.Lock()
	defer c.incidentsMu.Unlock()

	recorded := c.incidents[sys.NodeID]
	out := make([]risk.Incident, 0, len(sys.Incidents)+len(recorded))
	out = append(out, sys.Incidents...)
	return append(out, recorded...)
}
