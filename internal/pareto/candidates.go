package pareto

import (
	"fmt"
	"math"

	"peak_analyzer/internal/analysis"
)

// DefaultScaleFactors span the heuristic sizing from half to one and a half times.
var DefaultScaleFactors = []float64{0.5, 0.75, 1, 1.25, 1.5}

// ScaleCandidates builds a candidate grid around a heuristic sizing. NPV and
// cycles are left for the caller to fill in.
func ScaleCandidates(sizing *analysis.SizingRecommendation, factors []float64) []Candidate {
	if sizing == nil {
		return nil
	}
	if len(factors) == 0 {
		factors = DefaultScaleFactors
	}
	out := make([]Candidate, 0, len(factors))
	for _, f := range factors {
		if f <= 0 {
			continue
		}
		out = append(out, Candidate{
			Label:       fmt.Sprintf("x%g", f),
			PowerKW:     sizing.PowerKW * f,
			CapacityKWh: sizing.CapacityKWh * f,
		})
	}
	return out
}

// SimpleNPV discounts a constant annual saving over years and subtracts capex.
func SimpleNPV(annualSavings, capex, discountRate float64, years int) float64 {
	npv := -capex
	for y := 1; y <= years; y++ {
		npv += annualSavings / math.Pow(1+discountRate, float64(y))
	}
	return npv
}

// Payback returns simple payback in years, or 0 if savings never cover capex.
func Payback(capex, annualSavings float64) float64 {
	if annualSavings <= 0 || capex < 0 {
		return 0
	}
	return capex / annualSavings
}

// Economics prices a candidate from its size and the value of shaved peaks.
type Economics struct {
	CapexPerKWh    float64 `json:"capex_per_kwh" yaml:"capex_per_kwh"`
	CapexPerKW     float64 `json:"capex_per_kw" yaml:"capex_per_kw"`
	DemandChargeKW float64 `json:"demand_charge_per_kw_year" yaml:"demand_charge_per_kw_year"`
	DiscountRate   float64 `json:"discount_rate" yaml:"discount_rate"`
	LifetimeYears  int     `json:"lifetime_years" yaml:"lifetime_years"`
}

// Capex returns the investment for a candidate.
func (e Economics) Capex(c Candidate) float64 {
	return c.CapacityKWh*e.CapexPerKWh + c.PowerKW*e.CapexPerKW
}

// Annotate fills NPV, payback and cycles for a candidate that reduces the
// billed peak by peakReductionKW and runs annualCycles full cycles per year.
func (e Economics) Annotate(c Candidate, peakReductionKW, annualCycles float64) Candidate {
	capex := e.Capex(c)
	savings := peakReductionKW * e.DemandChargeKW
	c.NPV = SimpleNPV(savings, capex, e.DiscountRate, e.LifetimeYears)
	c.PaybackYears = Payback(capex, savings)
	c.AnnualCycles = annualCycles
	return c
}
