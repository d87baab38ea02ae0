package anomaly

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/HatiCode/foresight/pkg/timeseries"
)

func newTestForecaster(t *testing.T, overrides map[string]float64) (*Forecaster, *timeseries.Buffer) {
	t.Helper()
	buf := timeseries.NewBuffer(0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewForecaster(timeseries.NewAnalyzer(buf), overrides, logger), buf
}

func feed(buf *timeseries.Buffer, seriesID string, values ...float64) {
	start := time.Now().Add(-time.Duration(len(values)) * time.Minute)
	for i, v := range values {
		buf.AddPoint(seriesID, timeseries.NewPoint(start.Add(time.Duration(i)*time.Minute), v, nil))
	}
}

func repeat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestForecastNode_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		wantCount int
	}{
		{name: "equal to threshold", value: 100, wantCount: 0},
		{name: "one percent over", value: 101, wantCount: 1},
		{name: "below threshold", value: 50, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, buf := newTestForecaster(t, map[string]float64{CPUUtilization: 100})
			feed(buf, "node-1:cpu", repeat(30, tt.value)...)

			got := f.ForecastNode("node-1", map[string]string{CPUUtilization: "node-1:cpu"})
			if len(got) != tt.wantCount {
				t.Fatalf("len(forecasts) = %d, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}

			fc := got[0]
			if fc.Severity < SeverityLow {
				t.Errorf("Severity = %v, want >= low", fc.Severity)
			}
			if fc.Type != ResourceExhaustion {
				t.Errorf("Type = %v, want %v", fc.Type, ResourceExhaustion)
			}
			if fc.NodeID != "node-1" || fc.ID == "" {
				t.Errorf("forecast identity not populated: %+v", fc)
			}
			if fc.Confidence < 0 || fc.Confidence > 1 {
				t.Errorf("Confidence = %v, want within [0,1]", fc.Confidence)
			}
			if fc.Prevented {
				t.Error("new forecast should not be marked prevented")
			}
			if got := fc.PredictedTime.Sub(fc.CreatedAt); got != Horizon {
				t.Errorf("PredictedTime - CreatedAt = %v, want %v", got, Horizon)
			}
			if len(fc.ContributingFactors) == 0 {
				t.Error("ContributingFactors should explain the forecast")
			}
		})
	}
}

func TestForecastNode_TrendingNearCeiling(t *testing.T) {
	f, buf := newTestForecaster(t, nil)

	// Ends around 75-79: under the 80 ceiling but above 0.8x with a strong rise.
	values := append(repeat(10, 60), repeat(9, 78)...)
	values = append(values, 79)
	feed(buf, "n:cpu", values...)

	got := f.ForecastNode("n", map[string]string{CPUUtilization: "n:cpu"})
	if len(got) != 1 {
		t.Fatalf("len(forecasts) = %d, want 1", len(got))
	}
	if got[0].PredictedValue >= 80 {
		t.Fatalf("PredictedValue = %v, test expects it under the ceiling", got[0].PredictedValue)
	}
}

func TestForecastNode_VolatilityWithoutCeiling(t *testing.T) {
	f, buf := newTestForecaster(t, nil)

	values := make([]float64, 20)
	for i := range values {
		if i%2 == 0 {
			values[i] = 5
		} else {
			values[i] = 500
		}
	}
	feed(buf, "n:rps", values...)

	got := f.ForecastNode("n", map[string]string{"requests_per_second": "n:rps"})
	if len(got) != 1 {
		t.Fatalf("len(forecasts) = %d, want 1", len(got))
	}
	if got[0].Type != TrafficAnomaly {
		t.Errorf("Type = %v, want %v", got[0].Type, TrafficAnomaly)
	}
}

func TestForecastNode_NoCeilingRanksLow(t *testing.T) {
	f, buf := newTestForecaster(t, nil)

	// Alternating series whose swing widens in the second half: volatile and
	// rising, but with no configured ceiling.
	values := make([]float64, 40)
	for i := range values {
		switch {
		case i%2 == 0:
			values[i] = 1
		case i < 20:
			values[i] = 10
		default:
			values[i] = 30
		}
	}
	feed(buf, "n:rps", values...)

	got := f.ForecastNode("n", map[string]string{"requests_per_second": "n:rps"})
	if len(got) != 1 {
		t.Fatalf("len(forecasts) = %d, want 1", len(got))
	}
	if got[0].Severity != SeverityLow {
		t.Errorf("Severity = %v, want low without a ceiling", got[0].Severity)
	}
	if got[0].Severity.Actionable() {
		t.Error("forecast without a ceiling should not warrant a directive")
	}
}

func TestForecastNode_InsufficientDataIsQuiet(t *testing.T) {
	f, buf := newTestForecaster(t, nil)
	feed(buf, "n:lat", repeat(5, 10_000)...)

	if got := f.ForecastNode("n", map[string]string{LatencyP95: "n:lat"}); len(got) != 0 {
		t.Errorf("forecasts = %v, want none for a short series", got)
	}
}

func TestForecastNode_SeverityFromOvershoot(t *testing.T) {
	f, buf := newTestForecaster(t, nil)
	feed(buf, "n:lat", repeat(30, 1000)...)

	got := f.ForecastNode("n", map[string]string{LatencyP95: "n:lat"})
	if len(got) != 1 {
		t.Fatalf("len(forecasts) = %d, want 1", len(got))
	}
	if got[0].Severity != SeverityCritical {
		t.Errorf("Severity = %v, want critical for a 100%% overshoot", got[0].Severity)
	}
	if got[0].Type != LatencySpike {
		t.Errorf("Type = %v, want %v", got[0].Type, LatencySpike)
	}
}

func TestClassify(t *testing.T) {
	tests := map[string]Type{
		"latency_p95":         LatencySpike,
		"http_error_rate":     ErrorRateIncrease,
		"cpu_utilization":     ResourceExhaustion,
		"Memory_Utilization":  ResourceExhaustion,
		"capacity_used":       CapacitySaturation,
		"disk_utilization":    TrafficAnomaly,
		"requests_per_second": TrafficAnomaly,
	}
	for metric, want := range tests {
		if got := Classify(metric); got != want {
			t.Errorf("Classify(%q) = %v, want %v", metric, got, want)
		}
	}
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Severity
	}{
		{0.0, SeverityLow},
		{0.15, SeverityLow},
		{0.16, SeverityModerate},
		{0.3, SeverityModerate},
		{0.31, SeverityHigh},
		{0.5, SeverityHigh},
		{0.51, SeverityCritical},
	}
	for _, tt := range tests {
		if got := SeverityFor(tt.score); got != tt.want {
			t.Errorf("SeverityFor(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestSeverity_Actionable(t *testing.T) {
	if SeverityModerate.Actionable() {
		t.Error("moderate should not be actionable")
	}
	if !SeverityHigh.Actionable() || !SeverityCritical.Actionable() {
		t.Error("high and critical should be actionable")
	}
}

func TestNewForecaster_Overrides(t *testing.T) {
	f, _ := newTestForecaster(t, map[string]float64{ErrorRate: 0.05})

	if got, _ := f.Threshold(ErrorRate); got != 0.05 {
		t.Errorf("Threshold(error_rate) = %v, want 0.05", got)
	}
	if got, _ := f.Threshold(DiskUtilization); got != 90 {
		t.Errorf("Threshold(disk_utilization) = %v, want default 90", got)
	}
	if _, ok := f.Threshold("unknown"); ok {
		t.Error("unknown metric should have no ceiling")
	}
}
