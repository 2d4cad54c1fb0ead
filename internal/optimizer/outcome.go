package optimizer

import (
	"context"

	"peak_analyzer/internal/analysis"
)

// Optimizer is anything that can size a battery for a request.
type Optimizer interface {
	Optimize(ctx context.Context, req Request) (*Response, error)
}

// Divergence compares the optimizer's sizing with the heuristic. Ratios
// above 1 mean the optimizer chose a larger system.
type Divergence struct {
	CapacityRatio float64 `json:"capacity_ratio"`
	PowerRatio    float64 `json:"power_ratio"`
}

// Outcome is the recoverable result of an optimizer call. When the call
// failed, HeuristicOnly is set and the heuristic sizing remains the answer.
type Outcome struct {
	Response      *Response   `json:"response,omitempty"`
	Error         string      `json:"error,omitempty"`
	HeuristicOnly bool        `json:"heuristic_only"`
	Divergence    *Divergence `json:"divergence,omitempty"`
}

// Run calls opt and folds any failure into the outcome instead of
// returning it.
func Run(ctx context.Context, opt Optimizer, req Request, heuristic *analysis.SizingRecommendation) Outcome {
	if opt == nil {
		return Outcome{Error: ErrRemoteOptimizer.Error() + ": not configured", HeuristicOnly: true}
	}
	resp, err := opt.Optimize(ctx, req)
	if err != nil {
		return Outcome{Error: err.Error(), HeuristicOnly: true}
	}

	out := Outcome{Response: resp}
	if heuristic != nil && heuristic.CapacityKWh > 0 && heuristic.PowerKW > 0 {
		out.Divergence = &Divergence{
			CapacityRatio: resp.OptimalCapacityKWh / heuristic.CapacityKWh,
			PowerRatio:    resp.OptimalPowerKW / heuristic.PowerKW,
		}
	}
	return out
}
