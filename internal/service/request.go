package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/ingest"
	"peak_analyzer/internal/model"
)

// ErrBadRequest marks requests that are malformed before reaching the engine.
var ErrBadRequest = errors.New("bad request")

// AnalysisRequest is the wire form of an analysis submitted over HTTP or
// websocket. Exactly one of Samples or CSV is set.
type AnalysisRequest struct {
	Source          string         `json:"source,omitempty"`
	IntervalMinutes int            `json:"interval_minutes"`
	Samples         []model.Sample `json:"samples,omitempty"`
	CSV             string         `json:"csv,omitempty"`
	Format          string         `json:"format,omitempty"`
	// Unit of Home Assistant sensor values, "W" (default) or "kW".
	Unit string `json:"unit,omitempty"`
}

// UnmarshalJSON also accepts intervalMinutes and rejects unknown fields.
func (r *AnalysisRequest) UnmarshalJSON(data []byte) error {
	type plain AnalysisRequest
	var in struct {
		plain
		IntervalMinutesAlias *int `json:"intervalMinutes"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return err
	}
	*r = AnalysisRequest(in.plain)
	if r.IntervalMinutes == 0 && in.IntervalMinutesAlias != nil {
		r.IntervalMinutes = *in.IntervalMinutesAlias
	}
	return nil
}

// EngineRequest converts the wire request, parsing CSV content if given.
func (r AnalysisRequest) EngineRequest() (analysis.Request, error) {
	if err := analysis.ValidateInterval(r.IntervalMinutes); err != nil {
		return analysis.Request{}, err
	}

	switch {
	case len(r.Samples) > 0 && r.CSV != "":
		return analysis.Request{}, fmt.Errorf("%w: set either samples or csv, not both", ErrBadRequest)
	case r.CSV != "":
		parser, err := ingest.NewParser(r.Format, time.Duration(r.IntervalMinutes)*time.Minute, r.Unit)
		if err != nil {
			return analysis.Request{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		samples, err := parser.Parse(strings.NewReader(r.CSV))
		if err != nil {
			return analysis.Request{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return analysis.Request{Samples: samples, IntervalMinutes: r.IntervalMinutes}, nil
	default:
		return analysis.Request{Samples: r.Samples, IntervalMinutes: r.IntervalMinutes}, nil
	}
}

// IsClientError reports whether err was caused by the request content.
func IsClientError(err error) bool {
	return errors.Is(err, ErrBadRequest) ||
		errors.Is(err, analysis.ErrEmptySeries) ||
		errors.Is(err, analysis.ErrInvalidInterval) ||
		errors.Is(err, analysis.ErrInvalidSample)
}
