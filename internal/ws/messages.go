package ws

import (
	"encoding/json"
	"time"

	"peak_analyzer/internal/pareto"
	"peak_analyzer/internal/store"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants
const (
	// Client -> Server
	TypeAnalysisRun  = "analysis:run"
	TypeOptimizerRun = "optimizer:run"
	TypeParetoSelect = "pareto:select"
	TypeSessionsList = "sessions:list"

	// Server -> Client, plus sessions:list
	TypeAnalysisResult  = "analysis:result"
	TypeOptimizerResult = "optimizer:result"
	TypeParetoResult    = "pareto:result"
	TypeError           = "error"
)

// Client -> Server messages

type SessionRefPayload struct {
	SessionID string `json:"session_id"`
}

type ParetoSelectPayload struct {
	SessionID  string             `json:"session_id,omitempty"`
	Candidates []pareto.Candidate `json:"candidates,omitempty"`
}

// Server -> Client messages

type SessionInfo struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	Source           string    `json:"source,omitempty"`
	SampleCount      int       `json:"sample_count"`
	PeakPowerKW      float64   `json:"peak_power_kw"`
	RecommendedLabel string    `json:"recommended_label,omitempty"`
	Optimized        bool      `json:"optimized"`
}

type ParetoResultPayload struct {
	SessionID string            `json:"session_id,omitempty"`
	Selection *pareto.Selection `json:"selection"`
}

type ErrorPayload struct {
	Request string `json:"request"`
	Error   string `json:"error"`
}

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func SessionInfoFromStore(s store.Session) SessionInfo {
	info := SessionInfo{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		Source:      s.Source,
		SampleCount: s.SampleCount,
		Optimized:   s.Optimization != nil,
	}
	if s.Result != nil {
		info.PeakPowerKW = s.Result.PeakPowerKW
		if s.Result.Recommended != nil {
			info.RecommendedLabel = s.Result.Recommended.Level.Label
		}
	}
	return info
}

func SessionList(sessions []store.Session) []SessionInfo {
	out := make([]SessionInfo, len(sessions))
	for i, s := range sessions {
		out[i] = SessionInfoFromStore(s)
	}
	return out
}
