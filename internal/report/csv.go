package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"peak_analyzer/internal/analysis"
)

// RowColumns is the header of WriteRowsCSV.
var RowColumns = []string{
	"label", "percentile", "threshold_kw", "event_count", "exact_hours", "actual_hours",
	"excess_energy_kwh", "peak_reduction_kw", "peak_reduction_pct", "rating",
	"strict_blocks", "blocks", "recommended",
}

// BlockColumns is the header of WriteBlocksCSV.
var BlockColumns = []string{
	"label", "block", "start", "end", "start_index", "end_index", "duration_hours",
	"max_power_kw", "avg_power_kw", "max_excess_kw", "total_excess_energy_kwh",
}

// WriteRowsCSV writes one line per threshold level.
func WriteRowsCSV(w io.Writer, res *analysis.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RowColumns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, row := range res.ThresholdRows {
		recommended := res.Recommended != nil && res.Recommended.Level.Rank == row.Level.Rank
		record := []string{
			row.Level.Label,
			num(row.Level.Percentile),
			num(row.Level.PowerKW),
			strconv.Itoa(row.EventCount),
			num(row.ExactHours),
			num(row.ActualHours),
			num(row.ExcessEnergyKWh),
			num(row.PeakReductionKW),
			num(row.PeakReductionPct),
			row.Rating.String(),
			strconv.Itoa(len(row.StrictBlocks)),
			strconv.Itoa(len(row.Blocks)),
			strconv.FormatBool(recommended),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row %s: %w", row.Level.Label, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBlocksCSV writes the tolerant blocks of every threshold level.
func WriteBlocksCSV(w io.Writer, res *analysis.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(BlockColumns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, row := range res.ThresholdRows {
		for i, b := range row.Blocks {
			record := []string{
				row.Level.Label,
				strconv.Itoa(i),
				csvTime(b.Start),
				csvTime(b.End),
				strconv.Itoa(b.StartIndex),
				strconv.Itoa(b.EndIndex),
				num(b.DurationHours),
				num(b.MaxPowerKW),
				num(b.AvgPowerKW),
				num(b.MaxExcessKW),
				num(b.TotalExcessEnergyKWh),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("writing block %s/%d: %w", row.Level.Label, i, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func csvTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
