package timeseries

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

const (
	// SmoothingFactor is the weight given to the newest observation by
	// exponential smoothing.
	SmoothingFactor = 0.3

	// MinForecastPoints is the smallest series ForecastNextValue and
	// CalculateVolatility will work with.
	MinForecastPoints = 10

	// MinTrendPoints is the smallest series DetectTrend will work with.
	MinTrendPoints = 20

	// StatsWindow is the number of recent points used for variance,
	// volatility and trend comparison.
	StatsWindow = 20

	// StableThreshold is the relative change below which a trend is stable.
	StableThreshold = 0.05

	// SeasonalCorrelation is the Pearson correlation both window pairs must
	// exceed for a series to count as seasonal.
	SeasonalCorrelation = 0.7

	// DefaultSeasonPeriod is the period, in points, used when none is given.
	DefaultSeasonPeriod = 24

	confidenceEpsilon = 1e-6
)

// Trend is the direction reported by DetectTrend.
type Trend int

const (
	TrendStable Trend = iota
	TrendIncreasing
	TrendDecreasing
)

func (t Trend) String() string {
	switch t {
	case TrendIncreasing:
		return "increasing"
	case TrendDecreasing:
		return "decreasing"
	default:
		return "stable"
	}
}

// MarshalText encodes the trend by name.
func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Analyzer runs closed-form forecasting and pattern detection over the
// series held in a Buffer. All methods return neutral values rather than
// errors when a series is too short.
type Analyzer struct {
	buffer *Buffer
}

// NewAnalyzer creates an analyzer reading from buffer.
func NewAnalyzer(buffer *Buffer) *Analyzer {
	return &Analyzer{buffer: buffer}
}

// Buffer returns the buffer the analyzer reads from.
func (a *Analyzer) Buffer() *Buffer {
	return a.buffer
}

// ForecastNextValue returns a smoothed level estimate for the series and a
// confidence in [0, 1].
//
// The level comes from exponential smoothing (alpha = SmoothingFactor)
// applied across every buffered point. Confidence is
// 1 - variance(last 20) / (level + epsilon), floored at 0. The horizon
// documents the intended lookahead and does not change the level.
// Series shorter than MinForecastPoints yield (0, 0).
func (a *Analyzer) ForecastNextValue(seriesID string, horizon time.Duration) (float64, float64) {
	_ = horizon

	values := a.buffer.Values(seriesID, 0)
	if len(values) < MinForecastPoints {
		return 0, 0
	}

	level := exponentialSmoothing(values, SmoothingFactor)

	recent := tail(values, StatsWindow)
	variance := stat.Variance(recent, nil)

	denominator := level + confidenceEpsilon
	if denominator <= 0 || math.IsNaN(variance) {
		return level, 0
	}

	return level, clamp01(1 - variance/denominator)
}

// DetectTrend compares the mean of the first and second halves of the most
// recent 20 points. A relative change below 5% is stable; otherwise the
// direction follows the sign and the strength is the absolute relative
// change. Series shorter than MinTrendPoints are stable with strength 0.
func (a *Analyzer) DetectTrend(seriesID string) (Trend, float64) {
	values := a.buffer.Values(seriesID, StatsWindow)
	if len(values) < MinTrendPoints {
		return TrendStable, 0
	}

	half := len(values) / 2
	older := stat.Mean(values[:half], nil)
	recent := stat.Mean(values[half:], nil)

	if older == 0 {
		return TrendStable, 0
	}

	change := (recent - older) / math.Abs(older)
	strength := math.Abs(change)
	if strength < StableThreshold {
		return TrendStable, strength
	}
	if change > 0 {
		return TrendIncreasing, strength
	}
	return TrendDecreasing, strength
}

// CalculateVolatility returns the coefficient of variation (stdev / mean)
// over the last 20 points. Series shorter than MinForecastPoints, or with a
// zero mean, yield 0.
func (a *Analyzer) CalculateVolatility(seriesID string) float64 {
	values := a.buffer.Values(seriesID, StatsWindow)
	if len(values) < MinForecastPoints {
		return 0
	}

	mean, stddev := stat.MeanStdDev(values, nil)
	if mean == 0 || math.IsNaN(stddev) {
		return 0
	}
	return stddev / mean
}

// DetectSeasonality reports whether the most recent 3*period points split
// into three consecutive windows whose neighbouring pairs are each
// correlated above SeasonalCorrelation. Series shorter than 3*period are not
// seasonal. A period <= 0 selects DefaultSeasonPeriod.
func (a *Analyzer) DetectSeasonality(seriesID string, period int) bool {
	if period <= 0 {
		period = DefaultSeasonPeriod
	}

	values := a.buffer.Values(seriesID, 3*period)
	if len(values) < 3*period {
		return false
	}

	first := values[:period]
	second := values[period : 2*period]
	third := values[2*period:]

	return pearson(first, second) > SeasonalCorrelation &&
		pearson(second, third) > SeasonalCorrelation
}

func exponentialSmoothing(values []float64, alpha float64) float64 {
	level := values[0]
	for _, v := range values[1:] {
		level += alpha * (v - level)
	}
	return level
}

// pearson returns 0 where the correlation is undefined (a constant window).
func pearson(x, y []float64) float64 {
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
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
