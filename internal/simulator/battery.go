package simulator

import (
	"math"

	"peak_analyzer/internal/analysis"
)

// BatteryConfig holds the parameters of a peak-shaving battery.
type BatteryConfig struct {
	CapacityKWh        float64 `json:"capacity_kwh"`
	MaxPowerKW         float64 `json:"max_power_kw"`
	DischargeToPercent float64 `json:"discharge_to_percent"`
	ChargeToPercent    float64 `json:"charge_to_percent"`
}

// ConfigFromSizing turns a heuristic sizing into a battery whose usable
// window matches the sizing's depth of discharge.
func ConfigFromSizing(s *analysis.SizingRecommendation) BatteryConfig {
	return BatteryConfig{
		CapacityKWh:        s.CapacityKWh,
		MaxPowerKW:         s.PowerKW,
		DischargeToPercent: (1 - s.DepthOfDischarge) * 100,
		ChargeToPercent:    100,
	}
}

// Scaled returns the config with capacity and power multiplied by f.
func (c BatteryConfig) Scaled(f float64) BatteryConfig {
	c.CapacityKWh *= f
	c.MaxPowerKW *= f
	return c
}

// ProcessResult is returned by Battery.Process for each interval.
type ProcessResult struct {
	BatteryPowerKW float64 // positive = discharging, negative = charging
	AdjustedLoadKW float64
	SoCPercent     float64
}

// Battery shaves load above a threshold and recharges from the headroom
// below it.
type Battery struct {
	config BatteryConfig

	// State
	SoCKWh  float64
	PowerKW float64

	// Stats
	TotalThroughputKWh float64
	TimeAtSoCPctHours  map[int]float64 // 10% buckets
}

// NewBattery creates a battery starting full at its charge ceiling.
func NewBattery(cfg BatteryConfig) *Battery {
	b := &Battery{config: cfg}
	b.Reset()
	return b
}

func (b *Battery) Config() BatteryConfig {
	return b.config
}

func (b *Battery) floorKWh() float64 {
	return b.config.CapacityKWh * b.config.DischargeToPercent / 100
}

func (b *Battery) ceilKWh() float64 {
	return b.config.CapacityKWh * b.config.ChargeToPercent / 100
}

// Process handles one fixed-length interval of load. Above the threshold
// the battery discharges by the excess, capped by its power rating and the
// energy left above the floor. Below it the battery charges from the
// headroom without pushing the load over the threshold.
func (b *Battery) Process(loadKW, thresholdKW, hours float64) ProcessResult {
	var powerKW float64 // positive = discharge, negative = charge

	if hours > 0 {
		switch {
		case loadKW > thresholdKW:
			powerKW = math.Min(loadKW-thresholdKW, b.config.MaxPowerKW)
			if maxDrain := b.SoCKWh - b.floorKWh(); powerKW*hours > maxDrain {
				powerKW = math.Max(maxDrain, 0) / hours
			}
		case loadKW < thresholdKW:
			powerKW = -math.Min(thresholdKW-loadKW, b.config.MaxPowerKW)
			if maxFill := b.ceilKWh() - b.SoCKWh; -powerKW*hours > maxFill {
				powerKW = -math.Max(maxFill, 0) / hours
			}
		}

		energyKWh := powerKW * hours
		b.SoCKWh -= energyKWh
		b.TotalThroughputKWh += math.Abs(energyKWh)
		b.recordStats(hours)
	}

	b.PowerKW = powerKW
	return ProcessResult{
		BatteryPowerKW: powerKW,
		AdjustedLoadKW: loadKW - powerKW,
		SoCPercent:     b.SoCPercent(),
	}
}

func (b *Battery) SoCPercent() float64 {
	if b.config.CapacityKWh <= 0 {
		return 0
	}
	return b.SoCKWh / b.config.CapacityKWh * 100
}

// recordStats accumulates the time-at-SoC histogram.
func (b *Battery) recordStats(hours float64) {
	bucket := int(math.Floor(b.SoCPercent()/10)) * 10
	if bucket < 0 {
		bucket = 0
	}
	if bucket > 100 {
		bucket = 100
	}
	b.TimeAtSoCPctHours[bucket] += hours
}

// Cycles returns the equivalent full cycle count.
func (b *Battery) Cycles() float64 {
	if b.config.CapacityKWh <= 0 {
		return 0
	}
	return b.TotalThroughputKWh / 2 / b.config.CapacityKWh
}

// Reset clears state and stats, setting SoC to the charge ceiling.
func (b *Battery) Reset() {
	b.SoCKWh = b.ceilKWh()
	b.PowerKW = 0
	b.TotalThroughputKWh = 0
	b.TimeAtSoCPctHours = make(map[int]float64)
}
