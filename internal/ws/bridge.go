package ws

import (
	"log/slog"

	"peak_analyzer/internal/pareto"
	"peak_analyzer/internal/store"
)

// Bridge implements service.Callback and broadcasts events to the WebSocket hub.
type Bridge struct {
	hub *Hub
}

func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

func (b *Bridge) OnSessionAnalyzed(sess store.Session) {
	b.broadcast(TypeAnalysisResult, sess)
}

func (b *Bridge) OnSessionOptimized(sess store.Session) {
	b.broadcast(TypeOptimizerResult, sess)
}

func (b *Bridge) OnParetoSelected(sessionID string, sel *pareto.Selection) {
	b.broadcast(TypeParetoResult, ParetoResultPayload{SessionID: sessionID, Selection: sel})
}

func (b *Bridge) broadcast(msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		b.hub.log.Error("marshal_err", slog.String("type", msgType), slog.Any("err", err))
		return
	}
	b.hub.Broadcast(msg)
}
