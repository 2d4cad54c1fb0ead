package analysis

import (
	"math/rand"
	"time"

	"peak_analyzer/internal/model"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// makeSamples builds a chronological series starting at t0.
func makeSamples(values []float64, interval time.Duration) []model.Sample {
	samples := make([]model.Sample, len(values))
	for i, v := range values {
		samples[i] = model.Sample{
			Index:     i,
			Timestamp: t0.Add(time.Duration(i) * interval),
			PowerKW:   v,
		}
	}
	return samples
}

func constantValues(n int, v float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return values
}

// randomValues draws a rough daily-shaped load with occasional spikes.
// Values are rounded to whole kW so ties are common.
func randomValues(rng *rand.Rand, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		v := 80 + 40*rng.Float64()
		if rng.Intn(50) == 0 {
			v += 100 * rng.Float64()
		}
		values[i] = float64(int(v))
	}
	return values
}

// bruteForceExceedance scans every sample without relying on sort order.
func bruteForceExceedance(samples []model.Sample, thresholdKW, intervalHours float64) (map[int]float64, float64) {
	excess := make(map[int]float64)
	var energy float64
	for _, s := range samples {
		if s.PowerKW > thresholdKW {
			excess[s.Index] = s.PowerKW - thresholdKW
			energy += (s.PowerKW - thresholdKW) * intervalHours
		}
	}
	return excess, energy
}
