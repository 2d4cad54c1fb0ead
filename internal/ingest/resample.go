package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"peak_analyzer/internal/model"
)

// DefaultMaxGapFill is how many consecutive empty buckets Resample
// interpolates before giving up with ErrDataGap.
const DefaultMaxGapFill = 3

// ErrDataGap is returned when an export is missing more consecutive
// intervals than the resampler may fill.
var ErrDataGap = errors.New("gap in readings")

// Resample averages irregular power readings into fixed-interval samples in
// kW. Buckets are aligned to the interval in UTC. Runs of up to maxFill empty
// buckets are filled by linear interpolation, so sample indices stay one
// interval apart; a longer run fails with ErrDataGap.
func Resample(readings []model.Reading, interval time.Duration, maxFill int) ([]model.Sample, error) {
	if len(readings) == 0 || interval <= 0 {
		return nil, nil
	}

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[time.Time]*bucket)
	var first, last time.Time
	for i, r := range readings {
		key := r.Timestamp.UTC().Truncate(interval)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.sum += toKW(r.Value, r.Unit)
		b.count++
		if i == 0 || key.Before(first) {
			first = key
		}
		if i == 0 || key.After(last) {
			last = key
		}
	}

	samples := make([]model.Sample, 0, int(last.Sub(first)/interval)+1)
	missing := 0
	for k := first; !k.After(last); k = k.Add(interval) {
		b, ok := buckets[k]
		if !ok {
			missing++
			samples = append(samples, model.Sample{Index: len(samples), Timestamp: k})
			continue
		}
		v := b.sum / float64(b.count)
		if missing > 0 {
			if missing > maxFill {
				return nil, fmt.Errorf("%w: %d intervals missing from %s to %s",
					ErrDataGap, missing, k.Add(-time.Duration(missing)*interval).Format(time.RFC3339), k.Format(time.RFC3339))
			}
			interpolate(samples[len(samples)-missing-1:], v)
			missing = 0
		}
		samples = append(samples, model.Sample{Index: len(samples), Timestamp: k, PowerKW: v})
	}
	return samples, nil
}

// interpolate fills run[1:] on a straight line from run[0] to next.
func interpolate(run []model.Sample, next float64) {
	from := run[0].PowerKW
	steps := float64(len(run))
	for i := 1; i < len(run); i++ {
		run[i].PowerKW = from + (next-from)*float64(i)/steps
	}
}

func toKW(value float64, unit string) float64 {
	if strings.EqualFold(unit, "W") {
		return value / 1000
	}
	return value
}

// ResampledParser adapts a Home Assistant export to a fixed-interval load
// profile.
type ResampledParser struct {
	Source   *HomeAssistantParser
	Interval time.Duration
	// ClampNegative turns export (negative grid power) into zero load.
	ClampNegative bool
	// MaxGapFill is the longest run of empty intervals to interpolate.
	MaxGapFill int
}

func NewResampledParser(source *HomeAssistantParser, interval time.Duration) *ResampledParser {
	return &ResampledParser{Source: source, Interval: interval, ClampNegative: true, MaxGapFill: DefaultMaxGapFill}
}

func (p *ResampledParser) Parse(r io.Reader) ([]model.Sample, error) {
	readings, err := p.Source.Parse(r)
	if err != nil {
		return nil, err
	}
	samples, err := Resample(readings, p.Interval, p.MaxGapFill)
	if err != nil {
		return nil, err
	}
	if p.ClampNegative {
		for i := range samples {
			if samples[i].PowerKW < 0 {
				samples[i].PowerKW = 0
			}
		}
	}
	return samples, nil
}
