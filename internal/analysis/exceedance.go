package analysis

import "peak_analyzer/internal/model"

// ExceedanceEvent is a single sample above a threshold.
type ExceedanceEvent struct {
	Sample    model.Sample   `json:"sample"`
	Threshold ThresholdLevel `json:"-"`
	ExcessKW  float64        `json:"excess_kw"`
}

// Exceedance collects a threshold's events in descending power order.
type Exceedance struct {
	Events          []ExceedanceEvent
	ExcessEnergyKWh float64
}

func (e Exceedance) Count() int {
	return len(e.Events)
}

// ExtractExceedances scans a descending-sorted series and stops at the first
// sample at or below the threshold. Input not sorted descending yields
// truncated results.
func ExtractExceedances(sorted []model.Sample, level ThresholdLevel, intervalHours float64) Exceedance {
	var ex Exceedance
	for _, s := range sorted {
		if s.PowerKW <= level.PowerKW {
			break
		}
		excess := s.PowerKW - level.PowerKW
		ex.Events = append(ex.Events, ExceedanceEvent{
			Sample:    s,
			Threshold: level,
			ExcessKW:  excess,
		})
		ex.ExcessEnergyKWh += excess * intervalHours
	}
	return ex
}

// PeakReductionPct is the share of the peak removed by shaving down to thresholdKW.
func PeakReductionPct(peakKW, thresholdKW float64) float64 {
	if peakKW <= 0 {
		return 0
	}
	return (peakKW - thresholdKW) / peakKW * 100
}
