package analysis

import "fmt"

// Rating is the qualitative feasibility of shaving down to a threshold.
type Rating int

const (
	Unfavorable Rating = iota
	Possible
	Favorable
	VeryFavorable
)

var ratingNames = map[Rating]string{
	Unfavorable:   "unfavorable",
	Possible:      "possible",
	Favorable:     "favorable",
	VeryFavorable: "very_favorable",
}

func (r Rating) String() string {
	if name, ok := ratingNames[r]; ok {
		return name
	}
	return fmt.Sprintf("rating(%d)", int(r))
}

func (r Rating) MarshalText() ([]byte, error) {
	if _, ok := ratingNames[r]; !ok {
		return nil, fmt.Errorf("unknown rating %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Rating) UnmarshalText(text []byte) error {
	for rating, name := range ratingNames {
		if name == string(text) {
			*r = rating
			return nil
		}
	}
	return fmt.Errorf("unknown rating %q", string(text))
}

// Classification boundaries. Evaluated in order, first match wins.
const (
	veryFavorableMaxHours = 50
	veryFavorableMinPct   = 5
	favorableMaxHours     = 200
	favorableMinPct       = 3
	possibleMaxHours      = 500
)

// Classify rates a threshold from the hours spent above it and the
// percentage of the peak it removes.
func Classify(hoursAbove, peakReductionPct float64) Rating {
	switch {
	case hoursAbove <= veryFavorableMaxHours && peakReductionPct >= veryFavorableMinPct:
		return VeryFavorable
	case hoursAbove <= favorableMaxHours && peakReductionPct >= favorableMinPct:
		return Favorable
	case hoursAbove <= possibleMaxHours:
		return Possible
	default:
		return Unfavorable
	}
}

// SelectRecommended returns the index of the first VeryFavorable row, else
// the first Favorable one. Rows must be ordered from the highest percentile
// down. Rows nothing exceeds are skipped.
func SelectRecommended(rows []ThresholdRow) (int, bool) {
	for _, want := range []Rating{VeryFavorable, Favorable} {
		for i, row := range rows {
			if row.EventCount > 0 && row.Rating == want {
				return i, true
			}
		}
	}
	return -1, false
}
