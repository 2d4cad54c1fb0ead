package analysis

import (
	"fmt"
	"math"
	"sync"
	"time"

	"peak_analyzer/internal/model"
)

// SupportedIntervals lists the accepted sample granularities in minutes.
var SupportedIntervals = []int{15, 60}

// Options tune an Engine. The zero value is not usable; start from DefaultOptions.
type Options struct {
	ToleranceFactor float64      `json:"tolerance_factor" yaml:"tolerance_factor"`
	Sizing          SizingParams `json:"sizing" yaml:"sizing"`
	// Parallel analyzes the threshold ladder concurrently. Output is identical.
	Parallel bool `json:"parallel" yaml:"parallel"`
}

func DefaultOptions() Options {
	return Options{
		ToleranceFactor: DefaultToleranceFactor,
		Sizing:          DefaultSizingParams(),
	}
}

// Request is one load profile to analyze.
type Request struct {
	Samples         []model.Sample
	IntervalMinutes int
}

// ThresholdRow aggregates one threshold level with its exceedance
// statistics, rating and block lists.
type ThresholdRow struct {
	Level      ThresholdLevel `json:"level"`
	EventCount int            `json:"event_count"`
	// ExactHours is the fractional share of the series the percentile
	// nominally leaves above it. ActualHours counts the intervals that really
	// exceed the threshold; ties and rounding make them differ.
	ExactHours       float64           `json:"exact_hours"`
	ActualHours      float64           `json:"actual_hours"`
	ExcessEnergyKWh  float64           `json:"excess_energy_kwh"`
	PeakReductionPct float64           `json:"peak_reduction_pct"`
	PeakReductionKW  float64           `json:"peak_reduction_kw"`
	Rating           Rating            `json:"rating"`
	StrictBlocks     []EventBlock      `json:"strict_blocks"`
	Blocks           []EventBlock      `json:"blocks"`
	Events           []ExceedanceEvent `json:"-"`
}

// Result is the complete output of one analysis run.
type Result struct {
	PeakPowerKW          float64               `json:"peak_power_kw"`
	AvgPowerKW           float64               `json:"avg_power_kw"`
	TotalHoursEquivalent float64               `json:"total_hours_equivalent"`
	IntervalMinutes      int                   `json:"interval_minutes"`
	SampleCount          int                   `json:"sample_count"`
	ThresholdRows        []ThresholdRow        `json:"threshold_rows"`
	Recommended          *ThresholdRow         `json:"recommended,omitempty"`
	SizingRecommendation *SizingRecommendation `json:"sizing_recommendation,omitempty"`
	Warnings             []Warning             `json:"warnings,omitempty"`
}

// Engine runs load-duration analyses. It holds no per-run state and is safe
// for concurrent use.
type Engine struct {
	opts Options
}

func New(opts Options) *Engine {
	if opts.ToleranceFactor <= 0 {
		opts.ToleranceFactor = DefaultToleranceFactor
	}
	return &Engine{opts: opts}
}

func (e *Engine) Options() Options {
	return e.opts
}

// ValidateInterval checks that minutes is a supported sample granularity.
func ValidateInterval(minutes int) error {
	for _, m := range SupportedIntervals {
		if minutes == m {
			return nil
		}
	}
	return fmt.Errorf("%w: %d minutes (supported: %v)", ErrInvalidInterval, minutes, SupportedIntervals)
}

// Analyze computes thresholds, exceedances, ratings, blocks and the storage
// sizing recommendation for a load profile.
func (e *Engine) Analyze(req Request) (*Result, error) {
	if len(req.Samples) == 0 {
		return nil, ErrEmptySeries
	}
	if err := ValidateInterval(req.IntervalMinutes); err != nil {
		return nil, err
	}

	samples := make([]model.Sample, len(req.Samples))
	copy(samples, req.Samples)
	model.Reindex(samples)

	interval := time.Duration(req.IntervalMinutes) * time.Minute

	var sum float64
	missingTimestamps, irregular := false, false
	for i, s := range samples {
		if math.IsNaN(s.PowerKW) || math.IsInf(s.PowerKW, 0) || s.PowerKW < 0 {
			return nil, fmt.Errorf("%w: index %d has power %v", ErrInvalidSample, s.Index, s.PowerKW)
		}
		sum += s.PowerKW
		if !s.HasTimestamp() {
			missingTimestamps = true
		} else if i > 0 && samples[i-1].HasTimestamp() && s.Timestamp.Sub(samples[i-1].Timestamp) != interval {
			irregular = true
		}
	}

	levels, sorted, err := AnalyzeThresholds(samples)
	if err != nil {
		return nil, err
	}

	intervalHours := interval.Hours()
	peak := levels[0].PowerKW

	rows := make([]ThresholdRow, len(levels))
	if e.opts.Parallel {
		var wg sync.WaitGroup
		for i, level := range levels {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rows[i] = e.analyzeLevel(sorted, level, peak, interval)
			}()
		}
		wg.Wait()
	} else {
		for i, level := range levels {
			rows[i] = e.analyzeLevel(sorted, level, peak, interval)
		}
	}

	n := len(samples)
	res := &Result{
		PeakPowerKW:          peak,
		AvgPowerKW:           sum / float64(n),
		TotalHoursEquivalent: float64(n) * intervalHours,
		IntervalMinutes:      req.IntervalMinutes,
		SampleCount:          n,
		ThresholdRows:        rows,
	}

	if levels[0].PowerKW == levels[len(levels)-1].PowerKW {
		res.Warnings = append(res.Warnings, WarningFlatLoad)
	}
	if missingTimestamps {
		res.Warnings = append(res.Warnings, WarningMissingTimestamps)
	}
	if irregular {
		res.Warnings = append(res.Warnings, WarningIrregularInterval)
	}

	idx, ok := SelectRecommended(rows)
	if !ok {
		res.Warnings = append(res.Warnings, WarningNoRecommendation)
		return res, nil
	}
	recommended := rows[idx]
	res.Recommended = &recommended
	if sizing, ok := SizeStorage(recommended.StrictBlocks, recommended.Level.PowerKW, e.opts.Sizing); ok {
		res.SizingRecommendation = sizing
	}
	return res, nil
}

func (e *Engine) analyzeLevel(sorted []model.Sample, level ThresholdLevel, peakKW float64, interval time.Duration) ThresholdRow {
	intervalHours := interval.Hours()
	ex := ExtractExceedances(sorted, level, intervalHours)
	pct := PeakReductionPct(peakKW, level.PowerKW)
	actualHours := float64(ex.Count()) * intervalHours

	return ThresholdRow{
		Level:            level,
		EventCount:       ex.Count(),
		ExactHours:       float64(len(sorted)) * (100 - level.Percentile) / 100 * intervalHours,
		ActualHours:      actualHours,
		ExcessEnergyKWh:  ex.ExcessEnergyKWh,
		PeakReductionPct: pct,
		PeakReductionKW:  peakKW - level.PowerKW,
		Rating:           Classify(actualHours, pct),
		StrictBlocks:     GroupStrict(ex.Events, interval),
		Blocks:           GroupWithTolerance(ex.Events, interval, e.opts.ToleranceFactor),
		Events:           ex.Events,
	}
}
