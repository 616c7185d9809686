package detect

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// minSamples is the smallest window size with a defined sample standard
// deviation.
const minSamples = 2

// estimateBaseline computes the mean and unbiased sample standard deviation
// of the observations in one window. It returns ErrInsufficientSample when
// the window holds fewer than two observations.
func estimateBaseline(p telemetry.Pair, from, to time.Time, obs []telemetry.Observation) (telemetry.Baseline, error) {
	if len(obs) < minSamples {
		return telemetry.Baseline{}, fmt.Errorf("%w: %d observations for %s/%s", ErrInsufficientSample, len(obs), p.AssetID, p.Metric)
	}

	values := make([]float64, len(obs))
	for i := range obs {
		values[i] = obs[i].Value
	}
	mean, stdDev := stat.MeanStdDev(values, nil)

	return telemetry.Baseline{
		AssetID:     p.AssetID,
		Metric:      p.Metric,
		WindowStart: from,
		WindowEnd:   to,
		SampleCount: len(obs),
		Mean:        mean,
		StdDev:      stdDev,
	}, nil
}
