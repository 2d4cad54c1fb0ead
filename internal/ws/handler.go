package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/pareto"
	"peak_analyzer/internal/service"
	"peak_analyzer/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Analyzer is the part of service.Service the handler drives.
type Analyzer interface {
	Analyze(ctx context.Context, source string, req analysis.Request) (store.Session, error)
	Optimize(ctx context.Context, id string) (store.Session, error)
	SelectStrategies(ctx context.Context, sessionID string, candidates []pareto.Candidate) (*pareto.Selection, error)
	Sessions() []store.Session
}

// Handler manages WebSocket connections and routes messages to the service.
// Results reach every client through the Bridge; failures go back to the
// requesting client only.
type Handler struct {
	hub *Hub
	svc Analyzer
}

func NewHandler(hub *Hub, svc Analyzer) *Handler {
	return &Handler{hub: hub, svc: svc}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("upgrade_err", slog.Any("err", err))
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.hub.Register(client)
	go client.writePump()

	h.sendSessions(client)

	h.readPump(r.Context(), client)
}

func (h *Handler) readPump(ctx context.Context, c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.hub.log.Warn("read_err", slog.Any("err", err))
			}
			return
		}

		h.handleMessage(ctx, c, msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.sendError(c, "", err)
		return
	}

	switch env.Type {
	case TypeAnalysisRun:
		var p service.AnalysisRequest
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, env.Type, err)
			return
		}
		req, err := p.EngineRequest()
		if err != nil {
			h.sendError(c, env.Type, err)
			return
		}
		if _, err := h.svc.Analyze(ctx, p.Source, req); err != nil {
			h.sendError(c, env.Type, err)
		}

	case TypeOptimizerRun:
		var p SessionRefPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, env.Type, err)
			return
		}
		if _, err := h.svc.Optimize(ctx, p.SessionID); err != nil {
			h.sendError(c, env.Type, err)
		}

	case TypeParetoSelect:
		var p ParetoSelectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, env.Type, err)
			return
		}
		if _, err := h.svc.SelectStrategies(ctx, p.SessionID, p.Candidates); err != nil {
			h.sendError(c, env.Type, err)
		}

	case TypeSessionsList:
		h.sendSessions(c)

	default:
		h.hub.log.Warn("unknown_message", slog.String("type", env.Type))
	}
}

func (h *Handler) sendSessions(c *Client) {
	msg, err := NewEnvelope(TypeSessionsList, SessionList(h.svc.Sessions()))
	if err != nil {
		h.hub.log.Error("marshal_err", slog.String("type", TypeSessionsList), slog.Any("err", err))
		return
	}
	h.hub.sendTo(c, msg)
}

func (h *Handler) sendError(c *Client, request string, err error) {
	msg, mErr := NewEnvelope(TypeError, ErrorPayload{Request: request, Error: err.Error()})
	if mErr != nil {
		return
	}
	h.hub.sendTo(c, msg)
}
