package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent("proactive.drift_detected", "proactive_operations", "proactive-ai", "node-1",
		map[string]any{"drift_percentage": 25.0})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	if ev.Type != "proactive.drift_detected" || ev.Resource != "node-1" {
		t.Errorf("unexpected envelope: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}

	var payload map[string]float64
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["drift_percentage"] != 25 {
		t.Errorf("drift_percentage = %v, want 25", payload["drift_percentage"])
	}
}

func TestNewEvent_Unencodable(t *testing.T) {
	if _, err := NewEvent("x", "s", "", "r", make(chan int)); err == nil {
		t.Error("expected error for unencodable payload")
	}
}

func TestParseMetric(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		ev      Event
		want    MetricSample
		wantErr error
	}{
		{
			name: "metric from payload",
			ev: Event{
				Type:      "metrics.reported",
				Resource:  "node-1",
				Payload:   json.RawMessage(`{"metric":"latency_p95","value":87.5}`),
				Timestamp: ts,
			},
			want: MetricSample{Resource: "node-1", Metric: "latency_p95", Value: 87.5, Timestamp: ts},
		},
		{
			name: "metric from event type",
			ev: Event{
				Type:      "metrics.cpu_utilization",
				Resource:  "node-2",
				Payload:   json.RawMessage(`{"value":42}`),
				Timestamp: ts,
			},
			want: MetricSample{Resource: "node-2", Metric: "cpu_utilization", Value: 42, Timestamp: ts},
		},
		{
			name: "resource from payload",
			ev: Event{
				Type:      "metrics.error_rate",
				Payload:   json.RawMessage(`{"resource":"api","value":0.02}`),
				Timestamp: ts,
			},
			want: MetricSample{Resource: "api", Metric: "error_rate", Value: 0.02, Timestamp: ts},
		},
		{
			name:    "string value",
			ev:      Event{Type: "metrics.cpu", Resource: "n", Payload: json.RawMessage(`{"value":"42"}`)},
			wantErr: ErrNoValue,
		},
		{
			name:    "missing value",
			ev:      Event{Type: "metrics.cpu", Resource: "n", Payload: json.RawMessage(`{}`)},
			wantErr: ErrNoValue,
		},
		{
			name:    "missing resource",
			ev:      Event{Type: "metrics.cpu", Payload: json.RawMessage(`{"value":1}`)},
			wantErr: ErrNoResource,
		},
		{
			name:    "no metric name",
			ev:      Event{Type: "telemetry", Resource: "n", Payload: json.RawMessage(`{"value":1}`)},
			wantErr: ErrNoMetric,
		},
		{
			name:    "bare prefix",
			ev:      Event{Type: "metrics.", Resource: "n", Payload: json.RawMessage(`{"value":1}`)},
			wantErr: ErrNoMetric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMetric(tt.ev)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseMetric() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMetric() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseMetric() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMetric_DefaultsTimestamp(t *testing.T) {
	got, err := ParseMetric(Event{Type: "metrics.cpu", Resource: "n", Payload: json.RawMessage(`{"value":1}`)})
	if err != nil {
		t.Fatalf("ParseMetric() error = %v", err)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to default to now")
	}
}

func TestMemoryBus_PatternRouting(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var metrics, health []string
	if _, err := b.Subscribe(ctx, MetricsPattern, func(_ context.Context, ev Event) {
		metrics = append(metrics, ev.Type)
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := b.Subscribe(ctx, HealthPattern, func(_ context.Context, ev Event) {
		health = append(health, ev.Type)
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for _, typ := range []string{"metrics.cpu", "health.degraded", "proactive.drift_detected", "metrics.latency_p95"} {
		if err := b.Publish(ctx, Event{Type: typ}); err != nil {
			t.Fatalf("Publish(%s) error = %v", typ, err)
		}
	}

	if len(metrics) != 2 || metrics[0] != "metrics.cpu" || metrics[1] != "metrics.latency_p95" {
		t.Errorf("metrics subscriber got %v", metrics)
	}
	if len(health) != 1 || health[0] != "health.degraded" {
		t.Errorf("health subscriber got %v", health)
	}
}

func TestMemoryBus_SubscriptionClose(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	count := 0
	sub, err := b.Subscribe(ctx, "*", func(context.Context, Event) { count++ })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	_ = b.Publish(ctx, Event{Type: "a"})
	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	_ = sub.Close()
	_ = b.Publish(ctx, Event{Type: "b"})

	if count != 1 {
		t.Errorf("handler called %d times, want 1", count)
	}
}

func TestMemoryBus_BadPattern(t *testing.T) {
	b := NewMemoryBus()
	if _, err := b.Subscribe(context.Background(), "[", func(context.Context, Event) {}); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	_ = b.Close()

	if err := b.Publish(ctx, Event{Type: "a"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() error = %v, want ErrClosed", err)
	}
	if _, err := b.Subscribe(ctx, "*", func(context.Context, Event) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() error = %v, want ErrClosed", err)
	}
}

func TestMemoryBus_ConcurrentPublish(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var mu sync.Mutex
	received := 0
	_, _ = b.Subscribe(ctx, "metrics.*", func(context.Context, Event) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Publish(ctx, Event{Type: "metrics.cpu"})
		}()
	}
	wg.Wait()

	if received != 50 {
		t.Errorf("received %d events, want 50", received)
	}
}

func TestSeriesKey(t *testing.T) {
	if got := SeriesKey("node-1", "cpu_utilization"); got != "node-1:cpu_utilization" {
		t.Errorf("SeriesKey() = %s", got)
	}
	s := MetricSample{Resource: "api", Metric: "latency_p95"}
	if got := s.SeriesID(); got != "api:latency_p95" {
		t.Errorf("SeriesID() = %s", got)
	}
}
