package detect

import (
	"math"
	"testing"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

func TestScore_FlagsLargeDeviation(t *testing.T) {
	b := telemetry.Baseline{Mean: 2669.58, StdDev: 122.6}

	flagged, dev := score(3249.22, b, 3.0)

	if !flagged {
		t.Fatal("expected value far above the mean to be flagged")
	}
	if math.Abs(dev-4.7279) > 0.001 {
		t.Errorf("deviation = %.4f, want ~4.7279", dev)
	}
}

func TestScore_ThresholdIsInclusive(t *testing.T) {
	b := telemetry.Baseline{Mean: 0, StdDev: 1}

	tests := []struct {
		name    string
		value   float64
		flagged bool
	}{
		{"exactly at threshold", 3.0, true},
		{"just below threshold", 2.9999, false},
		{"above threshold", 3.1, true},
		{"negative exactly at threshold", -3.0, true},
		{"well inside", 1.5, false},
		{"equal to mean", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flagged, _ := score(tt.value, b, 3.0)
			if flagged != tt.flagged {
				t.Errorf("score(%v) flagged = %v, want %v", tt.value, flagged, tt.flagged)
			}
		})
	}
}

func TestScore_UsesDeviationMagnitude(t *testing.T) {
	b := telemetry.Baseline{Mean: 100, StdDev: 10}

	flagged, dev := score(60, b, 3.0)

	if !flagged {
		t.Fatal("expected drop below the mean to be flagged")
	}
	if dev != 4.0 {
		t.Errorf("deviation = %v, want 4", dev)
	}
}

func TestScore_ZeroVariance(t *testing.T) {
	b := telemetry.Baseline{Mean: 42.5, StdDev: 0}

	flagged, dev := score(42.5, b, 3.0)
	if flagged || dev != 0 {
		t.Errorf("value equal to flat mean: flagged = %v, deviation = %v, want false, 0", flagged, dev)
	}

	flagged, dev = score(43.0, b, 3.0)
	if !flagged {
		t.Error("value departing from a flat baseline must be flagged")
	}
	if dev != 3.0 {
		t.Errorf("deviation = %v, want the configured threshold", dev)
	}
	if math.IsNaN(dev) || math.IsInf(dev, 0) {
		t.Errorf("deviation must be finite, got %v", dev)
	}
}

func TestExplanation_Format(t *testing.T) {
	got := explanation("rocket-1", "engine_temp", 3249.22, 4.73, 2669.58)
	want := "Anomaly detected for rocket-1/engine_temp: Value 3249.22 is 4.73 standard deviations from the mean of 2669.58."
	if got != want {
		t.Errorf("explanation = %q, want %q", got, want)
	}
}

func TestExplanation_WholeNumberValue(t *testing.T) {
	got := explanation("rocket-1", "fuel_pressure", 150.0, 3.52, 324.89)
	want := "Anomaly detected for rocket-1/fuel_pressure: Value 150 is 3.52 standard deviations from the mean of 324.89."
	if got != want {
		t.Errorf("explanation = %q, want %q", got, want)
	}
}
