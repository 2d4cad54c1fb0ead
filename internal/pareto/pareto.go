package pareto

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNoCandidates     = errors.New("no pareto candidates")
	ErrInvalidCandidate = errors.New("invalid pareto candidate")
)

// Strategy names a way of picking one point from the frontier.
type Strategy string

const (
	NPVMax    Strategy = "npv_max"
	CyclesMax Strategy = "cycles_max"
	Balanced  Strategy = "balanced"
)

// Strategies lists every supported strategy in presentation order.
var Strategies = []Strategy{NPVMax, CyclesMax, Balanced}

// Candidate is one storage configuration with externally supplied economics.
type Candidate struct {
	Label        string  `json:"label,omitempty"`
	PowerKW      float64 `json:"power_kw"`
	CapacityKWh  float64 `json:"capacity_kwh"`
	NPV          float64 `json:"npv"`
	AnnualCycles float64 `json:"annual_cycles"`
	PaybackYears float64 `json:"payback_years"` // 0 when the candidate never pays back
	Dominated    bool    `json:"dominated"`
}

// Dominates reports whether a is at least as good as b on both objectives
// and strictly better on one.
func Dominates(a, b Candidate) bool {
	if a.NPV < b.NPV || a.AnnualCycles < b.AnnualCycles {
		return false
	}
	return a.NPV > b.NPV || a.AnnualCycles > b.AnnualCycles
}

// MarkDominated returns a copy of candidates with Dominated set by an
// exhaustive pairwise comparison.
func MarkDominated(candidates []Candidate) []Candidate {
	marked := make([]Candidate, len(candidates))
	copy(marked, candidates)
	for i := range marked {
		marked[i].Dominated = false
		for j := range candidates {
			if i != j && Dominates(candidates[j], candidates[i]) {
				marked[i].Dominated = true
				break
			}
		}
	}
	return marked
}

// Selection is the outcome of strategy selection. Frontier and Picks hold
// indices into Candidates.
type Selection struct {
	Candidates []Candidate      `json:"candidates"`
	Frontier   []int            `json:"frontier"`
	Picks      map[Strategy]int `json:"picks"`
}

// Pick returns the candidate chosen for strategy s.
func (s *Selection) Pick(strategy Strategy) (Candidate, bool) {
	idx, ok := s.Picks[strategy]
	if !ok {
		return Candidate{}, false
	}
	return s.Candidates[idx], true
}

// FrontierCandidates returns the non-dominated candidates in input order.
func (s *Selection) FrontierCandidates() []Candidate {
	out := make([]Candidate, 0, len(s.Frontier))
	for _, idx := range s.Frontier {
		out = append(out, s.Candidates[idx])
	}
	return out
}

// Select marks dominance and applies every strategy to the frontier.
func Select(candidates []Candidate) (*Selection, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	for i, c := range candidates {
		if !finite(c.NPV) || !finite(c.AnnualCycles) || !finite(c.PaybackYears) {
			return nil, fmt.Errorf("%w: candidate %d has non-finite values", ErrInvalidCandidate, i)
		}
	}

	sel := &Selection{
		Candidates: MarkDominated(candidates),
		Picks:      make(map[Strategy]int, len(Strategies)),
	}
	for i, c := range sel.Candidates {
		if !c.Dominated {
			sel.Frontier = append(sel.Frontier, i)
		}
	}

	sel.Picks[NPVMax] = sel.best(func(c Candidate) float64 { return c.NPV }, func(c Candidate) float64 { return c.AnnualCycles })
	sel.Picks[CyclesMax] = sel.best(func(c Candidate) float64 { return c.AnnualCycles }, func(c Candidate) float64 { return c.NPV })
	sel.Picks[Balanced] = sel.knee()
	return sel, nil
}

// best picks the frontier maximum of primary. Ties go to the shorter
// payback, then to the higher secondary, then to input order.
func (s *Selection) best(primary, secondary func(Candidate) float64) int {
	bestIdx := s.Frontier[0]
	for _, idx := range s.Frontier[1:] {
		c, b := s.Candidates[idx], s.Candidates[bestIdx]
		switch {
		case primary(c) > primary(b):
			bestIdx = idx
		case primary(c) < primary(b):
		case paybackKey(c) < paybackKey(b):
			bestIdx = idx
		case paybackKey(c) > paybackKey(b):
		case secondary(c) > secondary(b):
			bestIdx = idx
		}
	}
	return bestIdx
}

// knee picks the frontier point closest to the ideal corner after min-max
// normalizing both objectives across the frontier. An axis with no spread
// normalizes to 1 for every point.
func (s *Selection) knee() int {
	if len(s.Frontier) == 1 {
		return s.Frontier[0]
	}

	minNPV, maxNPV := math.Inf(1), math.Inf(-1)
	minCyc, maxCyc := math.Inf(1), math.Inf(-1)
	for _, idx := range s.Frontier {
		c := s.Candidates[idx]
		minNPV, maxNPV = math.Min(minNPV, c.NPV), math.Max(maxNPV, c.NPV)
		minCyc, maxCyc = math.Min(minCyc, c.AnnualCycles), math.Max(maxCyc, c.AnnualCycles)
	}

	bestIdx := -1
	bestDist := math.Inf(1)
	for _, idx := range s.Frontier {
		c := s.Candidates[idx]
		dn := 1 - normalize(c.NPV, minNPV, maxNPV)
		dc := 1 - normalize(c.AnnualCycles, minCyc, maxCyc)
		dist := math.Hypot(dn, dc)

		if bestIdx < 0 || dist < bestDist {
			bestIdx, bestDist = idx, dist
			continue
		}
		if dist > bestDist {
			continue
		}
		b := s.Candidates[bestIdx]
		if paybackKey(c) < paybackKey(b) || (paybackKey(c) == paybackKey(b) && c.NPV > b.NPV) {
			bestIdx = idx
		}
	}
	return bestIdx
}

func normalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 1
	}
	return (v - lo) / (hi - lo)
}

func paybackKey(c Candidate) float64 {
	if c.PaybackYears <= 0 {
		return math.Inf(1)
	}
	return c.PaybackYears
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
