package ingest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"peak_analyzer/internal/model"
)

// Parser reads a load profile from a source and returns its samples in
// chronological order.
type Parser interface {
	Parse(r io.Reader) ([]model.Sample, error)
}

// Supported input formats.
const (
	FormatProfile       = "profile"
	FormatHomeAssistant = "ha"
)

// Sensor units accepted for Home Assistant exports.
const (
	UnitWatt     = "W"
	UnitKilowatt = "kW"
)

// NormalizeUnit maps a unit name to UnitWatt or UnitKilowatt. Empty means watts.
func NormalizeUnit(unit string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "", "w":
		return UnitWatt, nil
	case "kw":
		return UnitKilowatt, nil
	default:
		return "", fmt.Errorf("unknown sensor unit %q (want %q or %q)", unit, UnitWatt, UnitKilowatt)
	}
}

// NewParser returns the parser for a named format. Home Assistant exports
// are read in unit and resampled onto interval.
func NewParser(format string, interval time.Duration, unit string) (Parser, error) {
	switch format {
	case FormatProfile, "":
		return NewProfileParser(), nil
	case FormatHomeAssistant:
		u, err := NormalizeUnit(unit)
		if err != nil {
			return nil, err
		}
		return NewResampledParser(NewHomeAssistantParser(u), interval), nil
	default:
		return nil, fmt.Errorf("unknown input format %q (want %q or %q)", format, FormatProfile, FormatHomeAssistant)
	}
}
