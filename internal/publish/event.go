package publish

import (
	"time"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/store"
)

// Event types.
const (
	EventSessionAnalyzed  = "session.analyzed"
	EventSessionOptimized = "session.optimized"
)

// SessionEvent is the compact summary sent downstream for a session. The
// full result stays in the API.
type SessionEvent struct {
	Type            string             `json:"type"`
	SessionID       string             `json:"session_id"`
	CreatedAt       time.Time          `json:"created_at"`
	Source          string             `json:"source,omitempty"`
	IntervalMinutes int                `json:"interval_minutes"`
	SampleCount     int                `json:"sample_count"`
	PeakPowerKW     float64            `json:"peak_power_kw"`
	Recommended     *RecommendedLevel  `json:"recommended,omitempty"`
	CapacityKWh     float64            `json:"capacity_kwh,omitempty"`
	PowerKW         float64            `json:"power_kw,omitempty"`
	HeuristicOnly   *bool              `json:"heuristic_only,omitempty"`
	Warnings        []analysis.Warning `json:"warnings,omitempty"`
}

type RecommendedLevel struct {
	Label       string          `json:"label"`
	ThresholdKW float64         `json:"threshold_kw"`
	Rating      analysis.Rating `json:"rating"`
	EventCount  int             `json:"event_count"`
}

// NewSessionEvent summarizes sess as an event of the given type.
func NewSessionEvent(eventType string, sess store.Session) SessionEvent {
	ev := SessionEvent{
		Type:            eventType,
		SessionID:       sess.ID,
		CreatedAt:       sess.CreatedAt,
		Source:          sess.Source,
		IntervalMinutes: sess.IntervalMinutes,
		SampleCount:     sess.SampleCount,
	}
	if res := sess.Result; res != nil {
		ev.PeakPowerKW = res.PeakPowerKW
		ev.Warnings = res.Warnings
		if row := res.Recommended; row != nil {
			ev.Recommended = &RecommendedLevel{
				Label:       row.Level.Label,
				ThresholdKW: row.Level.PowerKW,
				Rating:      row.Rating,
				EventCount:  row.EventCount,
			}
		}
		if s := res.SizingRecommendation; s != nil {
			ev.CapacityKWh = s.CapacityKWh
			ev.PowerKW = s.PowerKW
		}
	}
	if out := sess.Optimization; out != nil {
		heuristicOnly := out.HeuristicOnly
		ev.HeuristicOnly = &heuristicOnly
		if out.Response != nil {
			ev.CapacityKWh = out.Response.OptimalCapacityKWh
			ev.PowerKW = out.Response.OptimalPowerKW
		}
	}
	return ev
}
