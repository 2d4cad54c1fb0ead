package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"peak_analyzer/internal/model"
)

var profileTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ProfileParser parses fixed-interval load profiles.
//
// Expected format:
//
//	timestamp,power_kw
//	2024-01-01T00:00:00Z,84.2
//	,91.0
//
// The timestamp column may be blank; such samples are kept without one.
type ProfileParser struct {
	// Location for timestamps without a zone. Defaults to UTC.
	Location *time.Location
}

func NewProfileParser() *ProfileParser {
	return &ProfileParser{Location: time.UTC}
}

func (p *ProfileParser) Parse(r io.Reader) ([]model.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if err := validateColumns(header, "timestamp", "power_kw"); err != nil {
		return nil, err
	}

	var samples []model.Sample
	lineNum := 1
	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected 2 fields, got %d", lineNum, len(record))
		}

		power, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing power %q: %w", lineNum, record[1], err)
		}
		ts, err := p.parseTime(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		samples = append(samples, model.Sample{
			Index:     len(samples),
			Timestamp: ts,
			PowerKW:   power,
		})
	}
	return samples, nil
}

func (p *ProfileParser) parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range profileTimeLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q", s)
}

func validateColumns(header []string, expected ...string) error {
	if len(header) < len(expected) {
		return fmt.Errorf("expected at least %d columns, got %d", len(expected), len(header))
	}
	for i, col := range expected {
		if strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")) != col {
			return fmt.Errorf("expected column %d to be %q, got %q", i, col, header[i])
		}
	}
	return nil
}
