package proactive

import (
	"fmt"
	"net/http"
	"time"

	"github.com/HatiCode/foresight/pkg/adapters"
	"github.com/HatiCode/foresight/pkg/anomaly"
	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/outbox"
	"github.com/HatiCode/foresight/pkg/risk"
	"github.com/HatiCode/foresight/pkg/storage"
	"github.com/HatiCode/foresight/pkg/timeseries"
)

// Defaults.
const (
	DefaultInterval  = 180 * time.Second
	DefaultActor     = "proactive-ai"
	DefaultSource    = "proactive_operations"
	DefaultSubsystem = "proactive_operations"

	defaultBackfillWindow = time.Hour
)

// ResourceWatch is a capacity-managed resource.
type ResourceWatch struct {
	ResourceType    string  `yaml:"resource_type"`
	CurrentCapacity float64 `yaml:"current_capacity"`
	DemandSeries    string  `yaml:"demand_series"`
}

// SystemWatch is a node whose failure risk is assessed every cycle.
// Metrics maps health metric names to the series holding them.
type SystemWatch struct {
	NodeID         string            `yaml:"node_id"`
	CommissionedAt time.Time         `yaml:"commissioned_at"`
	Metrics        map[string]string `yaml:"metrics"`
	Incidents      []risk.Incident   `yaml:"incidents"`
}

// Backfill seeds one series from an external source during Init.
type Backfill struct {
	SeriesID string          `yaml:"series_id"`
	Window   time.Duration   `yaml:"window"`
	Source   adapters.Config `yaml:"source"`
}

// Watch is the set of things the coordinator analyzes.
type Watch struct {
	// Thresholds override the default anomaly ceilings.
	Thresholds map[string]float64 `yaml:"thresholds"`
	// Nodes maps node IDs to metric name -> series ID.
	Nodes       map[string]map[string]string `yaml:"nodes"`
	Resources   []ResourceWatch              `yaml:"resources"`
	Systems     []SystemWatch                `yaml:"systems"`
	KnownEvents []capacity.KnownEvent        `yaml:"known_events"`
	Backfill    []Backfill                   `yaml:"backfill"`
}

// Validate checks the watch for values the analysis cannot use.
func (w Watch) Validate() error {
	for name, v := range w.Thresholds {
		if !anomaly.IsRecognizedThreshold(name) {
			return fmt.Errorf("unknown threshold %q", name)
		}
		if v <= 0 {
			return fmt.Errorf("threshold %q must be > 0", name)
		}
	}
	for node, metrics := range w.Nodes {
		if node == "" {
			return fmt.Errorf("node ID cannot be empty")
		}
		for metric, series := range metrics {
			if series == "" {
				return fmt.Errorf("node %s metric %s has no series", node, metric)
			}
		}
	}
	for i, r := range w.Resources {
		if r.ResourceType == "" || r.DemandSeries == "" {
			return fmt.Errorf("resource %d needs resource_type and demand_series", i)
		}
		if r.CurrentCapacity < 0 {
			return fmt.Errorf("resource %s current_capacity must be >= 0", r.ResourceType)
		}
	}
	for i, s := range w.Systems {
		if s.NodeID == "" {
			return fmt.Errorf("system %d needs node_id", i)
		}
	}
	for _, ev := range w.KnownEvents {
		if ev.Name == "" || ev.Time.IsZero() {
			return fmt.Errorf("known event needs name and time")
		}
		if ev.Multiplier <= 0 {
			return fmt.Errorf("known event %s multiplier must be > 0", ev.Name)
		}
	}
	for i, b := range w.Backfill {
		if b.SeriesID == "" {
			return fmt.Errorf("backfill %d needs series_id", i)
		}
		if _, err := adapters.New(b.Source); err != nil {
			return fmt.Errorf("backfill %s: %w", b.SeriesID, err)
		}
	}
	return nil
}

// Config configures a Coordinator.
type Config struct {
	Interval         time.Duration
	BufferCapacity   int
	HistoryCapacity  int
	HistoryRetention time.Duration
	SeasonPeriod     int

	Watch  Watch
	Outbox outbox.Config

	// Dependency scores dependency risk per node; nil uses the fixed
	// default.
	Dependency risk.DependencyScorer

	// HTTPClient is used by backfill sources; nil uses each source's
	// default client.
	HTTPClient *http.Client

	// Actor, Source and Subsystem label outbound events and audit entries.
	Actor     string
	Source    string
	Subsystem string
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = timeseries.DefaultCapacity
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = storage.DefaultCapacity
	}
	if c.HistoryRetention <= 0 {
		c.HistoryRetention = storage.DefaultRetention
	}
	if c.Actor == "" {
		c.Actor = DefaultActor
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if c.Subsystem == "" {
		c.Subsystem = DefaultSubsystem
	}
	return c
}
