package simulator

import (
	"math"
	"time"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/model"
)

// shaveTolerance absorbs float noise when checking whether an interval was
// brought down to the threshold.
const shaveTolerance = 1e-9

const hoursPerYear = 8760

// ReplayResult summarizes a battery replayed against a full load profile.
type ReplayResult struct {
	Config              BatteryConfig   `json:"config"`
	ThresholdKW         float64         `json:"threshold_kw"`
	ExceedanceIntervals int             `json:"exceedance_intervals"`
	ShavedIntervals     int             `json:"shaved_intervals"`
	ShavedKWh           float64         `json:"shaved_kwh"`
	UnshavedKWh         float64         `json:"unshaved_kwh"`
	ResidualPeakKW      float64         `json:"residual_peak_kw"`
	Cycles              float64         `json:"cycles"`
	AnnualCycles        float64         `json:"annual_cycles"`
	SuccessRate         float64         `json:"success_rate"`
	MinSoCPercent       float64         `json:"min_soc_percent"`
	TimeAtSoCPctHours   map[int]float64 `json:"time_at_soc_pct_hours"`
}

// PeakReductionKW is how far the replay lowered the peak below originalPeakKW.
func (r *ReplayResult) PeakReductionKW(originalPeakKW float64) float64 {
	return math.Max(originalPeakKW-r.ResidualPeakKW, 0)
}

// Replay runs a battery over samples in chronological order and reports how
// well it holds the load at thresholdKW.
func Replay(samples []model.Sample, intervalMinutes int, thresholdKW float64, cfg BatteryConfig) (*ReplayResult, error) {
	if len(samples) == 0 {
		return nil, analysis.ErrEmptySeries
	}
	if err := analysis.ValidateInterval(intervalMinutes); err != nil {
		return nil, err
	}

	hours := (time.Duration(intervalMinutes) * time.Minute).Hours()
	b := NewBattery(cfg)
	res := &ReplayResult{
		Config:        cfg,
		ThresholdKW:   thresholdKW,
		MinSoCPercent: b.SoCPercent(),
	}

	for _, s := range samples {
		r := b.Process(s.PowerKW, thresholdKW, hours)
		if r.AdjustedLoadKW > res.ResidualPeakKW {
			res.ResidualPeakKW = r.AdjustedLoadKW
		}
		if r.SoCPercent < res.MinSoCPercent {
			res.MinSoCPercent = r.SoCPercent
		}
		if s.PowerKW <= thresholdKW {
			continue
		}

		res.ExceedanceIntervals++
		res.ShavedKWh += r.BatteryPowerKW * hours
		if over := r.AdjustedLoadKW - thresholdKW; over > shaveTolerance {
			res.UnshavedKWh += over * hours
		} else {
			res.ShavedIntervals++
		}
	}

	res.Cycles = b.Cycles()
	res.AnnualCycles = res.Cycles * hoursPerYear / (float64(len(samples)) * hours)
	res.SuccessRate = 1
	if res.ExceedanceIntervals > 0 {
		res.SuccessRate = float64(res.ShavedIntervals) / float64(res.ExceedanceIntervals)
	}
	res.TimeAtSoCPctHours = b.TimeAtSoCPctHours
	return res, nil
}

// SweepRow is one scaled configuration in a sweep.
type SweepRow struct {
	Factor float64       `json:"factor"`
	Result *ReplayResult `json:"result"`
}

// Sweep replays base scaled by every factor.
func Sweep(samples []model.Sample, intervalMinutes int, thresholdKW float64, base BatteryConfig, factors []float64) ([]SweepRow, error) {
	rows := make([]SweepRow, 0, len(factors))
	for _, f := range factors {
		res, err := Replay(samples, intervalMinutes, thresholdKW, base.Scaled(f))
		if err != nil {
			return nil, err
		}
		rows = append(rows, SweepRow{Factor: f, Result: res})
	}
	return rows, nil
}
