package seed

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// metricProfile describes one metric's nominal band and the value injected
// when an anomalous reading is requested.
type metricProfile struct {
	name      string
	lo, hi    float64
	anomaly   float64
	unit      string
	anomalous bool
}

// metricProfiles covers a launch-phase sensor suite. Only the metrics marked
// anomalous receive their anomaly value, so a demo scan flags exactly those.
var metricProfiles = []metricProfile{
	{name: "engine_temp", lo: 600, hi: 650, anomaly: 850, unit: "C", anomalous: true},
	{name: "fuel_pressure", lo: 300, hi: 350, anomaly: 150, unit: "PSI", anomalous: true},
	{name: "altitude", lo: 1000, hi: 2000, anomaly: 50, unit: "m"},
	{name: "velocity", lo: 500, hi: 600, anomaly: 1200, unit: "m/s"},
	{name: "battery_voltage", lo: 24, hi: 26, anomaly: 15, unit: "V"},
	{name: "fuel_level", lo: 70, hi: 90, anomaly: 20, unit: "%"},
	{name: "acceleration_x", lo: -2, hi: 2, anomaly: 25, unit: "m/s^2"},
	{name: "acceleration_y", lo: -2, hi: 2, anomaly: -20, unit: "m/s^2"},
	{name: "acceleration_z", lo: 8, hi: 12, anomaly: 30, unit: "m/s^2", anomalous: true},
	{name: "gyroscope_x", lo: -5, hi: 5, anomaly: 45, unit: "deg/s"},
	{name: "gyroscope_y", lo: -5, hi: 5, anomaly: -40, unit: "deg/s"},
	{name: "gyroscope_z", lo: -5, hi: 5, anomaly: 50, unit: "deg/s"},
}

const (
	// demoPoints readings per metric at demoInterval spacing, ending one
	// interval before now. The trailing anomalyPoints carry the anomaly
	// value for anomalous metrics.
	demoPoints    = 30
	demoInterval  = 18 * time.Second
	anomalyPoints = 5
)

// demoEvents generates one demo flight: demoPoints readings for each profile,
// spaced demoInterval apart with the newest reading demoInterval before now.
// Values are uniform draws from the nominal band, rounded to two decimals.
func demoEvents(assetID string, now time.Time, withAnomalies bool) []telemetry.IngestEvent {
	events := make([]telemetry.IngestEvent, 0, len(metricProfiles)*demoPoints)
	for _, p := range metricProfiles {
		for i := 0; i < demoPoints; i++ {
			v := p.lo + rand.Float64()*(p.hi-p.lo) //nolint:gosec // G404: seed data uses weak RNG intentionally
			if withAnomalies && p.anomalous && i >= demoPoints-anomalyPoints {
				v = p.anomaly
			}
			events = append(events, telemetry.IngestEvent{
				AssetID:   assetID,
				Timestamp: now.Add(-time.Duration(demoPoints-i) * demoInterval),
				Metric:    p.name,
				Value:     math.Round(v*100) / 100,
				Unit:      p.unit,
				Tags:      map[string]string{"source": "seed"},
			})
		}
	}
	return events
}
