package detect

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

func obsWithValues(values ...float64) []telemetry.Observation {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	obs := make([]telemetry.Observation, len(values))
	for i, v := range values {
		obs[i] = telemetry.Observation{
			ID:        fmt.Sprintf("obs-%d", i),
			AssetID:   "rocket-1",
			Metric:    "engine_temp",
			Timestamp: base.Add(time.Duration(i) * 18 * time.Second),
			Value:     v,
		}
	}
	return obs
}

func TestEstimateBaseline_MeanAndStdDev(t *testing.T) {
	p := telemetry.Pair{AssetID: "rocket-1", Metric: "engine_temp"}
	from := time.Date(2026, 8, 1, 11, 50, 0, 0, time.UTC)
	to := from.Add(10 * time.Minute)

	b, err := estimateBaseline(p, from, to, obsWithValues(1, 2, 3, 4, 5))
	if err != nil {
		t.Fatalf("estimateBaseline() error = %v", err)
	}

	if b.Mean != 3 {
		t.Errorf("Mean = %v, want 3", b.Mean)
	}
	if want := math.Sqrt(2.5); math.Abs(b.StdDev-want) > 1e-12 {
		t.Errorf("StdDev = %v, want %v", b.StdDev, want)
	}
	if b.SampleCount != 5 {
		t.Errorf("SampleCount = %d, want 5", b.SampleCount)
	}
	if b.AssetID != "rocket-1" || b.Metric != "engine_temp" {
		t.Errorf("pair = %s/%s, want rocket-1/engine_temp", b.AssetID, b.Metric)
	}
	if !b.WindowStart.Equal(from) || !b.WindowEnd.Equal(to) {
		t.Errorf("window = [%v, %v], want [%v, %v]", b.WindowStart, b.WindowEnd, from, to)
	}
}

func TestEstimateBaseline_UnbiasedDenominator(t *testing.T) {
	p := telemetry.Pair{AssetID: "rocket-1", Metric: "fuel_pressure"}
	now := time.Now().UTC()

	b, err := estimateBaseline(p, now.Add(-10*time.Minute), now, obsWithValues(10, 20))
	if err != nil {
		t.Fatalf("estimateBaseline() error = %v", err)
	}

	// Sample std dev divides by n-1: sqrt((25+25)/1), not sqrt(50/2).
	if want := math.Sqrt(50); math.Abs(b.StdDev-want) > 1e-12 {
		t.Errorf("StdDev = %v, want %v", b.StdDev, want)
	}
}

func TestEstimateBaseline_InsufficientSample(t *testing.T) {
	p := telemetry.Pair{AssetID: "rocket-1", Metric: "velocity"}
	now := time.Now().UTC()

	for _, n := range []int{0, 1} {
		values := make([]float64, n)
		_, err := estimateBaseline(p, now.Add(-10*time.Minute), now, obsWithValues(values...))
		if !errors.Is(err, ErrInsufficientSample) {
			t.Errorf("estimateBaseline() with %d observations: error = %v, want ErrInsufficientSample", n, err)
		}
	}
}

func TestEstimateBaseline_IdenticalValues(t *testing.T) {
	p := telemetry.Pair{AssetID: "rocket-1", Metric: "battery_voltage"}
	now := time.Now().UTC()

	b, err := estimateBaseline(p, now.Add(-10*time.Minute), now, obsWithValues(24.8, 24.8, 24.8, 24.8))
	if err != nil {
		t.Fatalf("estimateBaseline() error = %v", err)
	}

	if b.Mean != 24.8 {
		t.Errorf("Mean = %v, want 24.8", b.Mean)
	}
	if b.StdDev != 0 {
		t.Errorf("StdDev = %v, want 0 for identical values", b.StdDev)
	}
}
