package detect

import (
	"fmt"
	"math"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// score evaluates one value against a baseline. The returned deviation is
// what gets recorded: |z| normally, the configured threshold when the
// baseline has zero variance and the value departs from the mean. The
// deviation is always finite.
func score(value float64, b telemetry.Baseline, threshold float64) (flagged bool, deviation float64) {
	if b.StdDev == 0 {
		// A flat window means any departure from the mean is anomalous, but
		// the z-score itself is undefined. Record the threshold as a finite
		// stand-in consistent with the decision rule.
		if value == b.Mean {
			return false, 0
		}
		return true, threshold
	}
	z := (value - b.Mean) / b.StdDev
	deviation = math.Abs(z)
	return deviation >= threshold, deviation
}

// explanation renders the human-readable summary attached to every anomaly
// record. Deterministic: the same inputs always produce the same string.
func explanation(assetID, metric string, value, deviation, mean float64) string {
	return fmt.Sprintf("Anomaly detected for %s/%s: Value %v is %.2f standard deviations from the mean of %.2f.",
		assetID, metric, value, deviation, mean)
}
