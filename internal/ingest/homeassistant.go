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

// HomeAssistantParser parses Home Assistant history exports of a power sensor.
//
// Expected format:
//
//	entity_id,state,last_changed
//	sensor.xxx_power,759.59,2024-11-21T13:00:00.000Z
type HomeAssistantParser struct {
	// Unit of the sensor values, "W" or "kW".
	Unit string
}

func NewHomeAssistantParser(unit string) *HomeAssistantParser {
	return &HomeAssistantParser{Unit: unit}
}

// Parse returns the raw readings. Rows whose state is not numeric, such as
// "unavailable", are skipped.
func (p *HomeAssistantParser) Parse(r io.Reader) ([]model.Reading, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if err := validateColumns(header, "entity_id", "state", "last_changed"); err != nil {
		return nil, err
	}

	var readings []model.Reading
	lineNum := 1 // header was line 1

	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}

		reading, err := p.parseRecord(record, lineNum)
		if err != nil {
			continue
		}
		readings = append(readings, reading)
	}

	return readings, nil
}

func (p *HomeAssistantParser) parseRecord(record []string, lineNum int) (model.Reading, error) {
	if len(record) < 3 {
		return model.Reading{}, fmt.Errorf("line %d: expected 3 fields, got %d", lineNum, len(record))
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: parsing value %q: %w", lineNum, record[1], err)
	}

	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(record[2]))
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: parsing timestamp %q: %w", lineNum, record[2], err)
	}

	return model.Reading{
		Timestamp: ts,
		SensorID:  strings.TrimSpace(record[0]),
		Value:     value,
		Unit:      p.Unit,
	}, nil
}
