package proactive

import (
	"context"
	"errors"
	"math"

	"github.com/HatiCode/foresight/pkg/audit"
	"github.com/HatiCode/foresight/pkg/bus"
	"github.com/HatiCode/foresight/pkg/drift"
	"github.com/HatiCode/foresight/pkg/timeseries"
)

// Reasons an inbound metric event is rejected.
const (
	rejectNoValue    = "no_value"
	rejectNoMetric   = "no_metric"
	rejectNoResource = "no_resource"
)

// Ingest stores a metric event's value and checks it for drift. It is the
// handler subscribed to metric events and may be called directly.
func (c *Coordinator) Ingest(ctx context.Context, ev bus.Event) error {
	if !c.ingesting.Load() {
		return ErrNotInitialized
	}

	sample, err := bus.ParseMetric(ev)
	if err != nil {
		c.metrics.RecordRejected(rejectReason(err))
		c.logger.Warn("rejected metric event", "event_type", ev.Type, "resource", ev.Resource, "error", err)
		return err
	}

	seriesID := sample.SeriesID()
	c.buffer.AddPoint(seriesID, timeseries.NewPoint(sample.Timestamp, sample.Value, map[string]string{
		"resource": sample.Resource,
		"metric":   sample.Metric,
		"source":   ev.Source,
	}))
	c.metrics.RecordPoint()

	signal, ok := c.detector.Detect(sample.Resource, seriesID, sample.Value)
	if !ok {
		return nil
	}
	c.recordDrift(signal)
	return nil
}

func (c *Coordinator) handleMetric(ctx context.Context, ev bus.Event) {
	_ = c.Ingest(ctx, ev)
}

func (c *Coordinator) handleHealth(_ context.Context, ev bus.Event) {
	c.metrics.RecordHealthEvent()
	c.logger.Debug("health event received", "event_type", ev.Type, "resource", ev.Resource)
}

func (c *Coordinator) recordDrift(s drift.Signal) {
	c.signals.Append(s)
	c.metrics.RecordDriftSignal()
	c.appendAudit(ActionDriftDetection, s.NodeID, s)

	c.logger.Info("drift detected",
		"node_id", s.NodeID,
		"series_id", s.Metric,
		"drift_percentage", s.DriftPercentage,
		"drift_velocity", s.DriftVelocity,
	)

	if math.Abs(s.DriftPercentage) > DriftDirectiveThreshold {
		c.publish(EventDriftDetected, s.NodeID, driftDetected(s))
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, bus.ErrNoValue):
		return rejectNoValue
	case errors.Is(err, bus.ErrNoMetric):
		return rejectNoMetric
	case errors.Is(err, bus.ErrNoResource):
		return rejectNoResource
	default:
		return "invalid"
	}
}

// publish queues a directive. Failures are logged and never returned.
func (c *Coordinator) publish(eventType, resource string, payload any) {
	ev, err := bus.NewEvent(eventType, c.cfg.Source, c.cfg.Actor, resource, payload)
	if err != nil {
		c.logger.Error("failed to build directive", "event_type", eventType, "error", err)
		return
	}
	if err := c.outbox.Publish(ev); err != nil {
		c.logger.Warn("directive not queued", "event_type", eventType, "resource", resource, "error", err)
		return
	}
	c.metrics.RecordDirective(eventType)
}

// appendAudit queues an audit entry carrying the full record.
func (c *Coordinator) appendAudit(action, resource string, record any) {
	entry := audit.NewEntry(c.cfg.Actor, action, resource, c.cfg.Subsystem, record)
	if err := c.outbox.Audit(entry); err != nil {
		c.logger.Warn("audit entry not queued", "action", action, "resource", resource, "error", err)
	}
}
