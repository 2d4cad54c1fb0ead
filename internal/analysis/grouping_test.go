package analysis

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peak_analyzer/internal/model"
)

func event(index int, ts time.Time, powerKW, thresholdKW float64) ExceedanceEvent {
	return ExceedanceEvent{
		Sample:    model.Sample{Index: index, Timestamp: ts, PowerKW: powerKW},
		Threshold: ThresholdLevel{PowerKW: thresholdKW},
		ExcessKW:  powerKW - thresholdKW,
	}
}

func TestGroupStrict_Contiguous(t *testing.T) {
	// deliberately out of order, as extraction yields them by power
	events := []ExceedanceEvent{
		event(5, t0.Add(5*time.Hour), 150, 100),
		event(3, t0.Add(3*time.Hour), 130, 100),
		event(4, t0.Add(4*time.Hour), 110, 100),
		event(9, t0.Add(9*time.Hour), 120, 100),
	}
	blocks := GroupStrict(events, time.Hour)
	require.Len(t, blocks, 2)

	first := blocks[0]
	assert.Equal(t, 3, first.StartIndex)
	assert.Equal(t, 5, first.EndIndex)
	assert.Len(t, first.Events, 3)
	assert.InDelta(t, 3.0, first.DurationHours, 1e-9)
	assert.InDelta(t, 150.0, first.MaxPowerKW, 1e-9)
	assert.InDelta(t, 130.0, first.AvgPowerKW, 1e-9)
	assert.InDelta(t, 50.0, first.MaxExcessKW, 1e-9)
	assert.InDelta(t, 90.0, first.TotalExcessEnergyKWh, 1e-9)
	assert.Equal(t, t0.Add(3*time.Hour), first.Start)
	assert.Equal(t, t0.Add(6*time.Hour), first.End)

	assert.Equal(t, 9, blocks[1].StartIndex)
	assert.InDelta(t, 20.0, blocks[1].TotalExcessEnergyKWh, 1e-9)
}

func TestGrouping_Empty(t *testing.T) {
	assert.Nil(t, GroupStrict(nil, time.Hour))
	assert.Nil(t, GroupWithTolerance(nil, time.Hour, DefaultToleranceFactor))
}

func TestGroupWithTolerance_Gaps(t *testing.T) {
	tests := []struct {
		name         string
		gap          time.Duration
		indexGap     int
		wantTolerant int
		wantStrict   int
	}{
		{"adjacent hour", 60 * time.Minute, 1, 1, 1},
		{"jitter within tolerance", 80 * time.Minute, 1, 1, 1},
		{"boundary 90 minutes", 90 * time.Minute, 2, 1, 2},
		{"skipped sample", 120 * time.Minute, 2, 2, 2},
		{"index gap with adjacent timestamps", 60 * time.Minute, 2, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := []ExceedanceEvent{
				event(10, t0, 120, 100),
				event(10+tt.indexGap, t0.Add(tt.gap), 130, 100),
			}
			assert.Len(t, GroupWithTolerance(events, time.Hour, DefaultToleranceFactor), tt.wantTolerant)
			assert.Len(t, GroupStrict(events, time.Hour), tt.wantStrict)
		})
	}
}

func TestGroupWithTolerance_CustomFactor(t *testing.T) {
	events := []ExceedanceEvent{
		event(0, t0, 120, 100),
		event(2, t0.Add(2*time.Hour), 130, 100),
	}
	assert.Len(t, GroupWithTolerance(events, time.Hour, 1.5), 2)
	assert.Len(t, GroupWithTolerance(events, time.Hour, 2.5), 1)
}

func TestGroupWithTolerance_MissingTimestamps(t *testing.T) {
	events := []ExceedanceEvent{
		event(0, time.Time{}, 120, 100),
		event(1, time.Time{}, 130, 100),
		event(2, t0.Add(2*time.Hour), 125, 100),
		event(3, t0.Add(3*time.Hour), 125, 100),
	}
	tolerant := GroupWithTolerance(events, time.Hour, DefaultToleranceFactor)
	require.Len(t, tolerant, 3)
	assert.True(t, tolerant[0].Start.IsZero())
	assert.Len(t, tolerant[2].Events, 2)

	strict := GroupStrict(events, time.Hour)
	require.Len(t, strict, 1)
	assert.Equal(t, t0.Add(2*time.Hour), strict[0].Start)
}

func TestGroupStrict_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 30; trial++ {
		samples := makeSamples(randomValues(rng, 500+rng.Intn(1500)), time.Hour)
		levels, sorted, err := AnalyzeThresholds(samples)
		require.NoError(t, err)

		for _, level := range levels {
			ex := ExtractExceedances(sorted, level, 1)
			for _, blocks := range [][]EventBlock{
				GroupStrict(ex.Events, time.Hour),
				GroupWithTolerance(ex.Events, time.Hour, DefaultToleranceFactor),
			} {
				var count int
				var energy float64
				for _, b := range blocks {
					count += len(b.Events)
					energy += b.TotalExcessEnergyKWh
				}
				require.Equal(t, ex.Count(), count)
				require.InDelta(t, ex.ExcessEnergyKWh, energy, 1e-6)
			}

			for _, b := range GroupStrict(ex.Events, time.Hour) {
				for i := 1; i < len(b.Events); i++ {
					require.Equal(t, b.Events[i-1].Sample.Index+1, b.Events[i].Sample.Index)
				}
			}
		}
	}
}
