package analysis

import "errors"

var (
	// ErrEmptySeries is returned when the load profile has no samples.
	ErrEmptySeries = errors.New("empty sample series")
	// ErrInvalidInterval is returned for a non-positive or unsupported interval.
	ErrInvalidInterval = errors.New("invalid sample interval")
	// ErrInvalidSample is returned for NaN, infinite or negative power values.
	ErrInvalidSample = errors.New("invalid sample")
)

// Warning flags a data-quality condition that degraded the analysis
// without failing it.
type Warning string

const (
	// WarningFlatLoad means every threshold collapsed to the same power.
	WarningFlatLoad Warning = "flat_load"
	// WarningMissingTimestamps means some samples had no timestamp, so
	// tolerant grouping treated them as isolated events.
	WarningMissingTimestamps Warning = "missing_timestamps"
	// WarningIrregularInterval means two neighbouring timestamped samples are
	// not exactly one interval apart, so index-contiguous blocks may span
	// missing or repeated time.
	WarningIrregularInterval Warning = "irregular_interval"
	// WarningNoRecommendation means no threshold rated favorable enough to size for.
	WarningNoRecommendation Warning = "no_recommendation"
)
