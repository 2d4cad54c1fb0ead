package analysis

import (
	"math"
	"sort"
	"strconv"

	"peak_analyzer/internal/model"
)

// Ladder is the fixed set of candidate percentiles, highest first.
var Ladder = []float64{100, 99.5, 99, 98, 97, 95, 90, 85, 80}

// ThresholdLevel is one candidate shaving threshold derived from the
// load-duration curve.
type ThresholdLevel struct {
	Label      string  `json:"label"`
	Percentile float64 `json:"percentile"`
	PowerKW    float64 `json:"power_kw"`
	// Rank is the position in Ladder, 0 being P100.
	Rank int `json:"rank"`
}

// SortDescending returns a copy of samples ordered by power, highest first.
// Equal powers keep chronological order.
func SortDescending(samples []model.Sample) []model.Sample {
	sorted := make([]model.Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PowerKW != sorted[j].PowerKW {
			return sorted[i].PowerKW > sorted[j].PowerKW
		}
		return sorted[i].Index < sorted[j].Index
	})
	return sorted
}

// RankIndex maps a percentile onto a position of an n-long descending array.
// It is rank based, not interpolated.
func RankIndex(n int, percentile float64) int {
	exceedanceFraction := (100 - percentile) / 100
	exactCount := float64(n) * exceedanceFraction
	idx := int(math.Ceil(exactCount))
	if idx > n-1 {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// AnalyzeThresholds derives one ThresholdLevel per Ladder percentile and
// returns them together with the descending-sorted copy they were read from.
func AnalyzeThresholds(samples []model.Sample) ([]ThresholdLevel, []model.Sample, error) {
	if len(samples) == 0 {
		return nil, nil, ErrEmptySeries
	}

	sorted := SortDescending(samples)
	levels := make([]ThresholdLevel, 0, len(Ladder))
	for rank, p := range Ladder {
		levels = append(levels, ThresholdLevel{
			Label:      PercentileLabel(p),
			Percentile: p,
			PowerKW:    sorted[RankIndex(len(sorted), p)].PowerKW,
			Rank:       rank,
		})
	}
	return levels, sorted, nil
}

// PercentileLabel formats 99.5 as "P99.5".
func PercentileLabel(p float64) string {
	return "P" + strconv.FormatFloat(p, 'f', -1, 64)
}
