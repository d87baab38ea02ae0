package proactive

import (
	"slices"
	"time"

	"github.com/HatiCode/foresight/pkg/anomaly"
	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/drift"
	"github.com/HatiCode/foresight/pkg/risk"
	"github.com/HatiCode/foresight/pkg/timeseries"
)

// Forecasts returns the retained anomaly forecasts, oldest first.
func (c *Coordinator) Forecasts() []anomaly.Forecast { return c.forecasts.List() }

// CapacityPredictions returns the retained capacity predictions.
func (c *Coordinator) CapacityPredictions() []capacity.Prediction { return c.predictions.List() }

// Assessments returns the retained risk assessments.
func (c *Coordinator) Assessments() []risk.Assessment { return c.assessments.List() }

// DriftSignals returns the retained drift signals.
func (c *Coordinator) DriftSignals() []drift.Signal { return c.signals.List() }

// DrainForecasts returns and forgets the retained anomaly forecasts.
func (c *Coordinator) DrainForecasts() []anomaly.Forecast { return c.forecasts.Drain() }

// DrainCapacityPredictions returns and forgets the retained capacity predictions.
func (c *Coordinator) DrainCapacityPredictions() []capacity.Prediction { return c.predictions.Drain() }

// DrainAssessments returns and forgets the retained risk assessments.
func (c *Coordinator) DrainAssessments() []risk.Assessment { return c.assessments.Drain() }

// DrainDriftSignals returns and forgets the retained drift signals.
func (c *Coordinator) DrainDriftSignals() []drift.Signal { return c.signals.Drain() }

// MarkPrevented flags a retained forecast as prevented. It reports whether
// the forecast was found.
func (c *Coordinator) MarkPrevented(forecastID string) bool {
	n := c.forecasts.Update(
		func(f *anomaly.Forecast) bool { return f.ID == forecastID },
		func(f *anomaly.Forecast) { f.Prevented = true },
	)
	return n > 0
}

// RecordIncident adds an incident to a node's history for risk assessment.
// Incidents older than risk.IncidentWindow no longer count and are pruned.
func (c *Coordinator) RecordIncident(nodeID string, at time.Time, summary string) {
	cutoff := c.now().Add(-risk.IncidentWindow)

	c.incidentsMu.Lock()
	defer c.incidentsMu.Unlock()

	kept := slices.DeleteFunc(c.incidents[nodeID], func(i risk.Incident) bool {
		return i.At.Before(cutoff)
	})
	c.incidents[nodeID] = append(kept, risk.Incident{At: at, Summary: summary})
}

// RegisterKnownEvent adds a scheduled demand multiplier for capacity
// forecasting.
func (c *Coordinator) RegisterKnownEvent(name string, at time.Time, multiplier float64) {
	c.predictor.RegisterKnownEvent(name, at, multiplier)
}

// Buffer exposes the metric buffer.
func (c *Coordinator) Buffer() *timeseries.Buffer { return c.buffer }
