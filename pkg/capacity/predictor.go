// Package capacity forecasts resource demand and recommends scaling when
// the forecast outgrows current capacity.
package capacity

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/foresight/pkg/timeseries"
)

const (
	// Horizon is how far ahead demand is forecast.
	Horizon = 60 * time.Minute

	// EventWindow bounds how far ahead a known event affects demand.
	EventWindow = 2 * time.Hour

	// SeasonalMultiplier is applied to demand on seasonal series.
	SeasonalMultiplier = 1.2

	// TrendStrengthTrigger is the strength above which an increasing trend
	// inflates demand.
	TrendStrengthTrigger = 0.1

	// ShortfallRatio is the fraction of current capacity a shortfall must
	// exceed to be reported.
	ShortfallRatio = 0.1

	// Headroom is the multiplicative buffer on the recommended target.
	Headroom = 1.2

	// BufferPercentage is Headroom expressed as a percentage.
	BufferPercentage = 20.0

	// zeroCapacityScaleFactor is reported when there is no current capacity
	// to scale from.
	zeroCapacityScaleFactor = 2.0
)

// KnownEvent is a scheduled occurrence expected to multiply demand, such as
// a product launch or a marketing campaign.
type KnownEvent struct {
	Name       string    `json:"name" yaml:"name"`
	Time       time.Time `json:"time" yaml:"time"`
	Multiplier float64   `json:"multiplier" yaml:"multiplier"`
}

// Scaling is the recommended change for a predicted shortfall.
type Scaling struct {
	ScaleFactor      float64 `json:"scale_factor"`
	TargetCapacity   float64 `json:"target_capacity"`
	BufferPercentage float64 `json:"buffer_percentage"`
	ScaleUpBy        float64 `json:"scale_up_by"`
}

// Prediction is a forecast capacity shortfall. It is never changed after it
// is created.
type Prediction struct {
	ID                 string    `json:"id"`
	ResourceType       string    `json:"resource_type"`
	CurrentCapacity    float64   `json:"current_capacity"`
	PredictedDemand    float64   `json:"predicted_demand"`
	PredictedTime      time.Time `json:"predicted_time"`
	Shortfall          float64   `json:"shortfall"`
	Confidence         float64   `json:"confidence"`
	TriggeringEvents   []string  `json:"triggering_events"`
	RecommendedScaling Scaling   `json:"recommended_scaling"`
	CreatedAt          time.Time `json:"created_at"`
}

// Predictor adjusts forecast demand for seasonality, trend and known events
// and reports meaningful shortfalls. It is safe for concurrent use.
type Predictor struct {
	analyzer     *timeseries.Analyzer
	seasonPeriod int
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.RWMutex
	events []KnownEvent
}

// NewPredictor creates a predictor. seasonPeriod is the number of points in
// one season; <= 0 selects timeseries.DefaultSeasonPeriod.
func NewPredictor(analyzer *timeseries.Analyzer, seasonPeriod int, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}
	if seasonPeriod <= 0 {
		seasonPeriod = timeseries.DefaultSeasonPeriod
	}
	return &Predictor{
		analyzer:     analyzer,
		seasonPeriod: seasonPeriod,
		logger:       logger,
		now:          time.Now,
	}
}

// RegisterKnownEvent records an event that multiplies demand while it falls
// inside the next EventWindow.
func (p *Predictor) RegisterKnownEvent(name string, at time.Time, multiplier float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, KnownEvent{Name: name, Time: at, Multiplier: multiplier})
	p.logger.Debug("registered known event", "name", name, "time", at, "multiplier", multiplier)
}

// KnownEvents returns the registered events ordered by time.
func (p *Predictor) KnownEvents() []KnownEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]KnownEvent, len(p.events))
	copy(out, p.events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// upcoming returns the largest multiplier among events in [now, now+EventWindow]
// and their names. Overlapping events do not compound.
func (p *Predictor) upcoming(now time.Time) (float64, []string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	multiplier := 1.0
	var names []string
	found := false
	for _, ev := range p.events {
		if ev.Time.Before(now) || ev.Time.After(now.Add(EventWindow)) {
			continue
		}
		if !found || ev.Multiplier > multiplier {
			multiplier = ev.Multiplier
		}
		found = true
		names = append(names, ev.Name)
	}
	return multiplier, names
}

// Predict forecasts demand on demandSeries and returns a prediction when the
// adjusted demand exceeds currentCapacity by more than ShortfallRatio of it.
func (p *Predictor) Predict(resourceType string, currentCapacity float64, demandSeries string) (Prediction, bool) {
	now := p.now()

	demand, confidence := p.analyzer.ForecastNextValue(demandSeries, Horizon)

	var triggers []string
	if p.analyzer.DetectSeasonality(demandSeries, p.seasonPeriod) {
		demand *= SeasonalMultiplier
		triggers = append(triggers, "seasonal pattern")
	}

	if trend, strength := p.analyzer.DetectTrend(demandSeries); trend == timeseries.TrendIncreasing && strength > TrendStrengthTrigger {
		demand *= 1 + strength
		triggers = append(triggers, fmt.Sprintf("increasing trend (strength %.2f)", strength))
	}

	multiplier, events := p.upcoming(now)
	demand *= multiplier
	triggers = append(triggers, events...)

	shortfall := demand - currentCapacity
	if shortfall <= ShortfallRatio*currentCapacity {
		return Prediction{}, false
	}

	pred := Prediction{
		ID:                 uuid.NewString(),
		ResourceType:       resourceType,
		CurrentCapacity:    currentCapacity,
		PredictedDemand:    demand,
		PredictedTime:      now.Add(Horizon),
		Shortfall:          shortfall,
		Confidence:         confidence,
		TriggeringEvents:   triggers,
		RecommendedScaling: RecommendScaling(demand, currentCapacity),
		CreatedAt:          now,
	}

	p.logger.Debug("capacity shortfall predicted",
		"resource_type", resourceType,
		"current_capacity", currentCapacity,
		"predicted_demand", demand,
		"shortfall", shortfall,
	)
	return pred, true
}

// RecommendScaling sizes a target with Headroom over demand.
func RecommendScaling(demand, current float64) Scaling {
	factor := zeroCapacityScaleFactor
	if current != 0 {
		factor = demand / current
	}
	target := demand * Headroom
	return Scaling{
		ScaleFactor:      factor,
		TargetCapacity:   target,
		BufferPercentage: BufferPercentage,
		ScaleUpBy:        target - current,
	}
}
