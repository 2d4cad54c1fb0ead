package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sample is one fixed-interval power value of a load profile.
type Sample struct {
	// Index is the position in the original chronological series.
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp,omitzero"` // zero when the source row had no timestamp
	PowerKW   float64   `json:"power_kw"`
}

var errMissingPower = errors.New("sample has no power_kw")

// UnmarshalJSON accepts power as power_kw or powerKW, and treats a null or
// empty timestamp as missing.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var in struct {
		Index        int      `json:"index"`
		Timestamp    string   `json:"timestamp"`
		PowerKW      *float64 `json:"power_kw"`
		PowerKWAlias *float64 `json:"powerKW"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return err
	}

	*s = Sample{Index: in.Index}
	switch {
	case in.PowerKW != nil:
		s.PowerKW = *in.PowerKW
	case in.PowerKWAlias != nil:
		s.PowerKW = *in.PowerKWAlias
	default:
		return errMissingPower
	}
	if in.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, in.Timestamp)
		if err != nil {
			return fmt.Errorf("sample timestamp: %w", err)
		}
		s.Timestamp = ts
	}
	return nil
}

// HasTimestamp reports whether the sample carries a usable timestamp.
func (s Sample) HasTimestamp() bool {
	return !s.Timestamp.IsZero()
}

// Reading is a raw meter value before resampling onto a fixed interval.
type Reading struct {
	Timestamp time.Time
	SensorID  string
	Value     float64
	Unit      string
}

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Span returns the covered duration, or zero for an empty range.
func (tr TimeRange) Span() time.Duration {
	if tr.Start.IsZero() || tr.End.Before(tr.Start) {
		return 0
	}
	return tr.End.Sub(tr.Start)
}

// SamplesTimeRange returns the first and last timestamped samples' range.
func SamplesTimeRange(samples []Sample) (TimeRange, bool) {
	var tr TimeRange
	found := false
	for _, s := range samples {
		if !s.HasTimestamp() {
			continue
		}
		if !found || s.Timestamp.Before(tr.Start) {
			tr.Start = s.Timestamp
		}
		if !found || s.Timestamp.After(tr.End) {
			tr.End = s.Timestamp
		}
		found = true
	}
	return tr, found
}

// Reindex assigns chronological indices in slice order.
func Reindex(samples []Sample) []Sample {
	for i := range samples {
		samples[i].Index = i
	}
	return samples
}
