package optimizer

import (
	"peak_analyzer/internal/model"
)

// Params are the economic and technical inputs the optimizer needs beyond
// the load profile.
type Params struct {
	CapexPerKWh         float64 `json:"capex_per_kwh" yaml:"capex_per_kwh"`
	CapexPerKW          float64 `json:"capex_per_kw" yaml:"capex_per_kw"`
	DepthOfDischarge    float64 `json:"depth_of_discharge" yaml:"depth_of_discharge"`
	RoundTripEfficiency float64 `json:"round_trip_efficiency" yaml:"round_trip_efficiency"`
	MaxCRate            float64 `json:"max_c_rate" yaml:"max_c_rate"`
}

func DefaultParams() Params {
	return Params{
		CapexPerKWh:         350,
		CapexPerKW:          150,
		DepthOfDischarge:    0.8,
		RoundTripEfficiency: 0.9,
		MaxCRate:            1,
	}
}

// Request is the optimizer's wire contract.
type Request struct {
	LoadProfileKW          []float64 `json:"loadProfileKW"`
	IntervalMinutes        int       `json:"intervalMinutes"`
	PeakShavingThresholdKW float64   `json:"peakShavingThresholdKW"`
	BessCapexPerKWh        float64   `json:"bessCapexPerKwh"`
	BessCapexPerKW         float64   `json:"bessCapexPerKw"`
	DepthOfDischarge       float64   `json:"depthOfDischarge"`
	RoundTripEfficiency    float64   `json:"roundTripEfficiency"`
	MaxCRate               float64   `json:"maxCRate"`
}

type Response struct {
	OptimalCapacityKWh    float64  `json:"optimalCapacityKwh"`
	OptimalPowerKW        float64  `json:"optimalPowerKw"`
	CRateActual           float64  `json:"cRateActual"`
	TotalAnnualCycles     float64  `json:"totalAnnualCycles"`
	ExpectedLifetimeYears float64  `json:"expectedLifetimeYears"`
	CapexTotal            float64  `json:"capexTotal"`
	Warnings              []string `json:"warnings"`
}

// BuildRequest assembles a request for the samples in chronological order.
func BuildRequest(samples []model.Sample, intervalMinutes int, thresholdKW float64, p Params) Request {
	load := make([]float64, len(samples))
	for i, s := range samples {
		load[i] = s.PowerKW
	}
	return Request{
		LoadProfileKW:          load,
		IntervalMinutes:        intervalMinutes,
		PeakShavingThresholdKW: thresholdKW,
		BessCapexPerKWh:        p.CapexPerKWh,
		BessCapexPerKW:         p.CapexPerKW,
		DepthOfDischarge:       p.DepthOfDischarge,
		RoundTripEfficiency:    p.RoundTripEfficiency,
		MaxCRate:               p.MaxCRate,
	}
}
