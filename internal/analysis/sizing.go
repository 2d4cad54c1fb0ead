package analysis

const (
	DefaultDepthOfDischarge = 0.8
	DefaultSafetyMargin     = 1.2
)

type SizingParams struct {
	DepthOfDischarge float64 `json:"depth_of_discharge" yaml:"depth_of_discharge"`
	SafetyMargin     float64 `json:"safety_margin" yaml:"safety_margin"`
}

func DefaultSizingParams() SizingParams {
	return SizingParams{
		DepthOfDischarge: DefaultDepthOfDischarge,
		SafetyMargin:     DefaultSafetyMargin,
	}
}

// SizingRecommendation is a heuristic lower bound for a storage system that
// covers the single worst historical exceedance run. It does not account
// for cumulative annual duty.
type SizingRecommendation struct {
	CapacityKWh       float64    `json:"capacity_kwh"`
	PowerKW           float64    `json:"power_kw"`
	ThresholdKW       float64    `json:"threshold_kw"`
	BasisBlock        EventBlock `json:"basis_block"`
	MaxPowerDeficitKW float64    `json:"max_power_deficit_kw"`
	DepthOfDischarge  float64    `json:"depth_of_discharge"`
	SafetyMargin      float64    `json:"safety_margin"`
}

// SizeStorage sizes for the block with the most excess energy. Blocks are
// expected to come from GroupStrict. Returns false when there is nothing to
// size for.
func SizeStorage(blocks []EventBlock, thresholdKW float64, params SizingParams) (*SizingRecommendation, bool) {
	if params.DepthOfDischarge <= 0 || params.DepthOfDischarge > 1 {
		params.DepthOfDischarge = DefaultDepthOfDischarge
	}
	if params.SafetyMargin <= 0 {
		params.SafetyMargin = DefaultSafetyMargin
	}

	largest := -1
	var maxDeficit float64
	for i, b := range blocks {
		if len(b.Events) == 0 {
			continue
		}
		if largest < 0 || b.TotalExcessEnergyKWh > blocks[largest].TotalExcessEnergyKWh {
			largest = i
		}
		if b.MaxExcessKW > maxDeficit {
			maxDeficit = b.MaxExcessKW
		}
	}
	if largest < 0 {
		return nil, false
	}

	basis := blocks[largest]
	return &SizingRecommendation{
		CapacityKWh:       basis.TotalExcessEnergyKWh / params.DepthOfDischarge * params.SafetyMargin,
		PowerKW:           maxDeficit * params.SafetyMargin,
		ThresholdKW:       thresholdKW,
		BasisBlock:        basis,
		MaxPowerDeficitKW: maxDeficit,
		DepthOfDischarge:  params.DepthOfDischarge,
		SafetyMargin:      params.SafetyMargin,
	}, true
}
