package analysis

import (
	"sort"
	"time"
)

// DefaultToleranceFactor lets tolerant grouping absorb timestamp jitter of
// up to half an interval.
const DefaultToleranceFactor = 1.5

// EventBlock is a run of chronologically consecutive exceedance events.
type EventBlock struct {
	Start                time.Time         `json:"start,omitzero"`
	End                  time.Time         `json:"end,omitzero"`
	StartIndex           int               `json:"start_index"`
	EndIndex             int               `json:"end_index"`
	Events               []ExceedanceEvent `json:"events"`
	DurationHours        float64           `json:"duration_hours"`
	MaxPowerKW           float64           `json:"max_power_kw"`
	AvgPowerKW           float64           `json:"avg_power_kw"`
	MaxExcessKW          float64           `json:"max_excess_kw"`
	TotalExcessEnergyKWh float64           `json:"total_excess_energy_kwh"`
}

// GroupStrict merges events whose sample indices are adjacent. Used for
// storage sizing, which only cares about uninterrupted discharge runs.
func GroupStrict(events []ExceedanceEvent, interval time.Duration) []EventBlock {
	return group(chronological(events), interval, func(prev, cur ExceedanceEvent) bool {
		return cur.Sample.Index-prev.Sample.Index <= 1
	})
}

// GroupWithTolerance merges events whose timestamps lie within
// toleranceFactor intervals of each other. Events without a timestamp are
// never merged.
func GroupWithTolerance(events []ExceedanceEvent, interval time.Duration, toleranceFactor float64) []EventBlock {
	maxGap := time.Duration(float64(interval) * toleranceFactor)
	return group(chronological(events), interval, func(prev, cur ExceedanceEvent) bool {
		if !prev.Sample.HasTimestamp() || !cur.Sample.HasTimestamp() {
			return false
		}
		gap := cur.Sample.Timestamp.Sub(prev.Sample.Timestamp)
		if gap < 0 {
			gap = -gap
		}
		return gap <= maxGap
	})
}

func chronological(events []ExceedanceEvent) []ExceedanceEvent {
	ordered := make([]ExceedanceEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Sample.Index < ordered[j].Sample.Index
	})
	return ordered
}

func group(ordered []ExceedanceEvent, interval time.Duration, joins func(prev, cur ExceedanceEvent) bool) []EventBlock {
	if len(ordered) == 0 {
		return nil
	}

	var blocks []EventBlock
	start := 0
	for i := 1; i < len(ordered); i++ {
		if !joins(ordered[i-1], ordered[i]) {
			blocks = append(blocks, newBlock(ordered[start:i], interval))
			start = i
		}
	}
	return append(blocks, newBlock(ordered[start:], interval))
}

func newBlock(events []ExceedanceEvent, interval time.Duration) EventBlock {
	intervalHours := interval.Hours()
	b := EventBlock{
		Events:        events,
		StartIndex:    events[0].Sample.Index,
		EndIndex:      events[len(events)-1].Sample.Index,
		DurationHours: float64(len(events)) * intervalHours,
	}

	var sumPower float64
	for _, ev := range events {
		sumPower += ev.Sample.PowerKW
		b.TotalExcessEnergyKWh += ev.ExcessKW * intervalHours
		if ev.Sample.PowerKW > b.MaxPowerKW {
			b.MaxPowerKW = ev.Sample.PowerKW
		}
		if ev.ExcessKW > b.MaxExcessKW {
			b.MaxExcessKW = ev.ExcessKW
		}
		if ev.Sample.HasTimestamp() {
			if b.Start.IsZero() || ev.Sample.Timestamp.Before(b.Start) {
				b.Start = ev.Sample.Timestamp
			}
			if end := ev.Sample.Timestamp.Add(interval); end.After(b.End) {
				b.End = end
			}
		}
	}
	b.AvgPowerKW = sumPower / float64(len(events))
	return b
}
