// Package bus connects the service to the platform's publish/subscribe
// transport. Inbound metric and health events arrive through Subscribe and
// outbound directives leave through Publish.
//
// Two implementations are provided:
//   - MemoryBus: in-process delivery, for tests and embedded use
//   - RedisBus:  Redis PUBLISH/PSUBSCRIBE, channel name = prefix + event type
//
// Event types are dotted names ("metrics.cpu_utilization",
// "proactive.preventive_action"). Subscription patterns use glob syntax, so
// "metrics.*" matches every metric event.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Inbound event classes.
const (
	MetricsPattern = "metrics.*"
	HealthPattern  = "health.*"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus: closed")

// Event is the envelope exchanged over the bus.
type Event struct {
	Type      string          `json:"event_type"`
	Source    string          `json:"source"`
	Actor     string          `json:"actor,omitempty"`
	Resource  string          `json:"resource"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an event, encoding payload as JSON.
func NewEvent(eventType, source, actor, resource string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{
		Type:      eventType,
		Source:    source,
		Actor:     actor,
		Resource:  resource,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Handler consumes a delivered event. Handlers run on the delivery path and
// must not block.
type Handler func(ctx context.Context, ev Event)

// Subscription is an active pattern subscription.
type Subscription interface {
	Close() error
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus is the publish/subscribe transport.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, pattern string, h Handler) (Subscription, error)
}

// MetricSample is the measurement carried by a "metrics.*" event.
type MetricSample struct {
	Resource  string
	Metric    string
	Value     float64
	Timestamp time.Time
}

// SeriesID is the buffer key the sample is stored under.
func (s MetricSample) SeriesID() string {
	return SeriesKey(s.Resource, s.Metric)
}

// SeriesKey joins a resource and a metric name into a series ID.
func SeriesKey(resource, metric string) string {
	return resource + ":" + metric
}

// Reasons a metric event is rejected.
var (
	ErrNoResource = errors.New("metric event has no resource")
	ErrNoMetric   = errors.New("metric event has no metric name")
	ErrNoValue    = errors.New("metric event has no numeric value")
)

// ParseMetric extracts the measurement from a metric event. The metric name
// comes from payload.metric, falling back to the event type suffix; the
// resource from the envelope, falling back to payload.resource.
func ParseMetric(ev Event) (MetricSample, error) {
	payload := gjson.ParseBytes(ev.Payload)

	value := payload.Get("value")
	if value.Type != gjson.Number {
		return MetricSample{}, ErrNoValue
	}

	metric := payload.Get("metric").String()
	if metric == "" {
		metric = strings.TrimPrefix(ev.Type, "metrics.")
		if metric == ev.Type {
			metric = ""
		}
	}
	if metric == "" {
		return MetricSample{}, ErrNoMetric
	}

	resource := ev.Resource
	if resource == "" {
		resource = payload.Get("resource").String()
	}
	if resource == "" {
		return MetricSample{}, ErrNoResource
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return MetricSample{
		Resource:  resource,
		Metric:    metric,
		Value:     value.Float(),
		Timestamp: ts,
	}, nil
}
