package report

import (
	"fmt"
	"io"
	"time"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/optimizer"
	"peak_analyzer/internal/pareto"
	"peak_analyzer/internal/simulator"
)

// Printer writes human-readable analysis tables.
type Printer struct {
	w     io.Writer
	color bool
}

func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color}
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) rating(r analysis.Rating) string {
	s := StyleFor(r)
	text := fmt.Sprintf("%-2s %-14s", s.Symbol, s.Label)
	if p.color {
		return s.Paint(text)
	}
	return text
}

// Summary prints the headline figures of a result.
func (p *Printer) Summary(source string, res *analysis.Result) {
	p.printf("Peak Shaving Analysis")
	if source != "" {
		p.printf(": %s", source)
	}
	p.printf("\n")
	p.printf("  Samples: %d at %d min (%.1f h)\n", res.SampleCount, res.IntervalMinutes, res.TotalHoursEquivalent)
	p.printf("  Peak: %s   Average: %s   Load factor: %.2f\n",
		formatKW(res.PeakPowerKW), formatKW(res.AvgPowerKW), safeDivide(res.AvgPowerKW, res.PeakPowerKW))
	for _, w := range res.Warnings {
		p.printf("  Warning: %s\n", w)
	}
	p.printf("\n")
}

// Rows prints the threshold ladder.
func (p *Printer) Rows(res *analysis.Result) {
	p.printf("  Threshold Ladder:\n")
	p.printf("   %6s │ %10s │ %6s │ %8s │ %8s │ %11s │ %9s │ %6s │ %s\n",
		"Level", "Threshold", "Events", "Exact h", "Actual h", "Excess", "Reduction", "Blocks", "Rating")
	p.printf("  ────────┼────────────┼────────┼──────────┼──────────┼─────────────┼───────────┼────────┼──────────────────\n")
	for _, row := range res.ThresholdRows {
		marker := ""
		if res.Recommended != nil && res.Recommended.Level.Rank == row.Level.Rank {
			marker = " ← recommended"
		}
		p.printf("   %6s │ %10s │ %6d │ %8.2f │ %8.2f │ %11s │ %8.1f%% │ %6d │ %s%s\n",
			row.Level.Label,
			formatKW(row.Level.PowerKW),
			row.EventCount,
			row.ExactHours,
			row.ActualHours,
			formatKWh(row.ExcessEnergyKWh),
			row.PeakReductionPct,
			len(row.Blocks),
			p.rating(row.Rating),
			marker,
		)
	}
	p.printf("\n")
}

// Blocks prints up to limit blocks in chronological order. limit <= 0
// prints all of them.
func (p *Printer) Blocks(title string, blocks []analysis.EventBlock, limit int) {
	p.printf("  %s (%d):\n", title, len(blocks))
	if len(blocks) == 0 {
		p.printf("    none\n\n")
		return
	}
	p.printf("   %16s │ %16s │ %8s │ %10s │ %11s\n", "Start", "End", "Duration", "Max", "Excess")
	p.printf("  ──────────────────┼──────────────────┼──────────┼────────────┼─────────────\n")
	for i, b := range blocks {
		if limit > 0 && i >= limit {
			p.printf("   ... %d more\n", len(blocks)-limit)
			break
		}
		p.printf("   %16s │ %16s │ %6.2f h │ %10s │ %11s\n",
			blockTime(b.Start, b.StartIndex),
			blockTime(b.End, b.EndIndex),
			b.DurationHours,
			formatKW(b.MaxPowerKW),
			formatKWh(b.TotalExcessEnergyKWh),
		)
	}
	p.printf("\n")
}

// Sizing prints the heuristic storage recommendation.
func (p *Printer) Sizing(s *analysis.SizingRecommendation) {
	if s == nil {
		p.printf("  Storage Sizing: no recommendation\n\n")
		return
	}
	p.printf("  Storage Sizing (heuristic):\n")
	p.printf("    Threshold:     %s\n", formatKW(s.ThresholdKW))
	p.printf("    Capacity:      %s\n", formatKWh(s.CapacityKWh))
	p.printf("    Power:         %s\n", formatKW(s.PowerKW))
	p.printf("    Worst block:   %s over %.2f h from %s\n",
		formatKWh(s.BasisBlock.TotalExcessEnergyKWh), s.BasisBlock.DurationHours,
		blockTime(s.BasisBlock.Start, s.BasisBlock.StartIndex))
	p.printf("    Max deficit:   %s\n", formatKW(s.MaxPowerDeficitKW))
	p.printf("    DoD %.0f%%, safety margin %.2f\n\n", s.DepthOfDischarge*100, s.SafetyMargin)
}

// Optimization prints a remote optimizer outcome next to the heuristic.
func (p *Printer) Optimization(o *optimizer.Outcome) {
	if o == nil {
		return
	}
	p.printf("  Remote Optimizer:\n")
	if o.HeuristicOnly {
		p.printf("    Unavailable, heuristic sizing only (%s)\n\n", o.Error)
		return
	}
	r := o.Response
	p.printf("    Capacity:      %s\n", formatKWh(r.OptimalCapacityKWh))
	p.printf("    Power:         %s (C-rate %.2f)\n", formatKW(r.OptimalPowerKW), r.CRateActual)
	p.printf("    Cycles/year:   %.1f   Lifetime: %.1f years   Capex: %.0f\n",
		r.TotalAnnualCycles, r.ExpectedLifetimeYears, r.CapexTotal)
	if o.Divergence != nil {
		p.printf("    vs heuristic:  capacity x%.2f, power x%.2f\n", o.Divergence.CapacityRatio, o.Divergence.PowerRatio)
	}
	for _, w := range r.Warnings {
		p.printf("    Warning: %s\n", w)
	}
	p.printf("\n")
}

// Sweep prints a battery-size comparison at a fixed threshold.
func (p *Printer) Sweep(rows []simulator.SweepRow, originalPeakKW float64) {
	if len(rows) == 0 {
		return
	}
	p.printf("  Battery Size Comparison (threshold %s):\n", formatKW(rows[0].Result.ThresholdKW))
	p.printf("   %6s │ %11s │ %10s │ %11s │ %11s │ %10s │ %7s │ %7s\n",
		"Scale", "Capacity", "Power", "Shaved", "Unshaved", "Residual", "Success", "Cycles")
	p.printf("  ────────┼─────────────┼────────────┼─────────────┼─────────────┼────────────┼─────────┼────────\n")
	for _, row := range rows {
		r := row.Result
		p.printf("   %5.2fx │ %11s │ %10s │ %11s │ %11s │ %10s │ %6.1f%% │ %7.2f\n",
			row.Factor,
			formatKWh(r.Config.CapacityKWh),
			formatKW(r.Config.MaxPowerKW),
			formatKWh(r.ShavedKWh),
			formatKWh(r.UnshavedKWh),
			formatKW(r.ResidualPeakKW),
			r.SuccessRate*100,
			r.AnnualCycles,
		)
	}
	p.printf("  Original peak: %s\n\n", formatKW(originalPeakKW))
}

// Pareto prints every candidate with its frontier membership and picks.
func (p *Printer) Pareto(sel *pareto.Selection) {
	picked := make(map[int][]pareto.Strategy)
	for _, s := range pareto.Strategies {
		if idx, ok := sel.Picks[s]; ok {
			picked[idx] = append(picked[idx], s)
		}
	}

	p.printf("  Pareto Candidates:\n")
	p.printf("   %8s │ %11s │ %10s │ %12s │ %7s │ %7s │ %s\n",
		"Label", "Capacity", "Power", "NPV", "Cycles", "Payback", "Frontier")
	p.printf("  ──────────┼─────────────┼────────────┼──────────────┼─────────┼─────────┼──────────\n")
	for i, c := range sel.Candidates {
		frontier := "dominated"
		if !c.Dominated {
			frontier = "yes"
		}
		payback := "never"
		if c.PaybackYears > 0 {
			payback = fmt.Sprintf("%.1f y", c.PaybackYears)
		}
		marker := ""
		if picks := picked[i]; len(picks) > 0 {
			marker = fmt.Sprintf(" ← %v", picks)
		}
		p.printf("   %8s │ %11s │ %10s │ %12.0f │ %7.1f │ %7s │ %s%s\n",
			c.Label, formatKWh(c.CapacityKWh), formatKW(c.PowerKW), c.NPV, c.AnnualCycles, payback, frontier, marker)
	}
	p.printf("\n")
}

func blockTime(t time.Time, index int) string {
	if t.IsZero() {
		return fmt.Sprintf("#%d", index)
	}
	return t.Format("2006-01-02 15:04")
}

func formatKW(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.2f MW", v/1000)
	}
	return fmt.Sprintf("%.1f kW", v)
}

func formatKWh(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.1f MWh", v/1000)
	}
	return fmt.Sprintf("%.1f kWh", v)
}

func safeDivide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
