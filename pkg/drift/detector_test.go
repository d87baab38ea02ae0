package drift

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/HatiCode/foresight/pkg/timeseries"
)

var fixedNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestDetector() (*Detector, *timeseries.Buffer) {
	buf := timeseries.NewBuffer(0)
	d := NewDetector(timeseries.NewAnalyzer(buf), slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.now = func() time.Time { return fixedNow }
	return d, buf
}

func TestDetect_FirstObservationNeverSignals(t *testing.T) {
	d, _ := newTestDetector()

	if _, ok := d.Detect("node", "node:cpu", 1e9); ok {
		t.Fatal("first observation should not signal drift")
	}
	if b, ok := d.Baseline("node:cpu"); !ok || b != 1e9 {
		t.Errorf("Baseline() = (%v, %v), want (1e9, true)", b, ok)
	}
}

func TestDetect_SignedDrift(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		want    bool
		wantPct float64
	}{
		{name: "within tolerance", current: 110, want: false},
		{name: "upward drift", current: 125, want: true, wantPct: 25},
		{name: "downward drift", current: 70, want: true, wantPct: -30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDetector()
			d.Detect("node", "m", 100)

			sig, ok := d.Detect("node", "m", tt.current)
			if ok != tt.want {
				t.Fatalf("Detect() signalled = %v, want %v", ok, tt.want)
			}
			if !ok {
				return
			}
			if math.Abs(sig.DriftPercentage-tt.wantPct) > 1e-9 {
				t.Errorf("DriftPercentage = %v, want %v", sig.DriftPercentage, tt.wantPct)
			}
			if sig.Baseline != 100 || sig.Current != tt.current {
				t.Errorf("Baseline/Current = %v/%v, want 100/%v", sig.Baseline, sig.Current, tt.current)
			}
			if sig.EstimatedCriticalTime != nil {
				t.Errorf("EstimatedCriticalTime = %v, want nil without a trend", sig.EstimatedCriticalTime)
			}
		})
	}
}

func TestDetect_BaselineIsSticky(t *testing.T) {
	d, _ := newTestDetector()
	d.Detect("node", "m", 100)
	d.Detect("node", "m", 200)

	if d.EstablishBaseline("m", 5) {
		t.Error("EstablishBaseline should not replace an existing baseline")
	}
	if b, _ := d.Baseline("m"); b != 100 {
		t.Errorf("Baseline() = %v, want 100", b)
	}
}

func TestDetect_ZeroBaseline(t *testing.T) {
	d, _ := newTestDetector()
	d.Detect("node", "m", 0)

	if _, ok := d.Detect("node", "m", 50); ok {
		t.Error("zero baseline should yield 0% drift and no signal")
	}
}

func TestDetect_VelocityFromTrend(t *testing.T) {
	d, buf := newTestDetector()
	for i := 0; i < 20; i++ {
		v := 100.0
		if i >= 10 {
			v = 120
		}
		buf.AddPoint("m", timeseries.NewPoint(fixedNow.Add(time.Duration(i)*time.Minute), v, nil))
	}

	d.Detect("node", "m", 100)
	sig, ok := d.Detect("node", "m", 120)
	if !ok {
		t.Fatal("Detect() should signal a 20% drift")
	}
	if math.Abs(sig.DriftVelocity-0.2) > 1e-9 {
		t.Errorf("DriftVelocity = %v, want 0.2", sig.DriftVelocity)
	}

	// remaining 30 / (0.2*100) = 1.5h
	want := fixedNow.Add(90 * time.Minute)
	if sig.EstimatedCriticalTime == nil || !sig.EstimatedCriticalTime.Equal(want) {
		t.Errorf("EstimatedCriticalTime = %v, want %v", sig.EstimatedCriticalTime, want)
	}
}

func TestCriticalTime(t *testing.T) {
	if got := CriticalTime(30, 0, fixedNow); got != nil {
		t.Errorf("CriticalTime(velocity 0) = %v, want nil", got)
	}
	if got := CriticalTime(-60, 0.5, fixedNow); got == nil || !got.Equal(fixedNow) {
		t.Errorf("CriticalTime(past threshold) = %v, want now", got)
	}
	if got := CriticalTime(40, 0.1, fixedNow); got == nil || !got.Equal(fixedNow.Add(time.Hour)) {
		t.Errorf("CriticalTime(40%%, 0.1) = %v, want now+1h", got)
	}
}
