package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/pareto"
	"peak_analyzer/internal/report"
	"peak_analyzer/internal/service"
	"peak_analyzer/internal/store"
)

// maxBodyBytes bounds uploaded load profiles. A year of quarter-hour samples
// as JSON is a few MB.
const maxBodyBytes = 64 << 20

// Analyzer is the service surface the REST API uses.
type Analyzer interface {
	Analyze(ctx context.Context, source string, req analysis.Request) (store.Session, error)
	Optimize(ctx context.Context, id string) (store.Session, error)
	SelectStrategies(ctx context.Context, sessionID string, candidates []pareto.Candidate) (*pareto.Selection, error)
	Sessions() []store.Session
	Store() *store.Store
}

// Handler serves the REST API.
type Handler struct {
	svc Analyzer
	log *slog.Logger
}

func NewHandler(svc Analyzer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log.With(slog.String("component", "api"))}
}

type sessionSummary struct {
	ID               string  `json:"id"`
	CreatedAt        string  `json:"created_at"`
	Source           string  `json:"source,omitempty"`
	SampleCount      int     `json:"sample_count"`
	PeakPowerKW      float64 `json:"peak_power_kw"`
	RecommendedLabel string  `json:"recommended_label,omitempty"`
	CapacityKWh      float64 `json:"capacity_kwh,omitempty"`
	PowerKW          float64 `json:"power_kw,omitempty"`
}

type paretoRequest struct {
	Candidates []pareto.Candidate `json:"candidates"`
}

type paretoResponse struct {
	SessionID  string                     `json:"session_id,omitempty"`
	Selection  *pareto.Selection          `json:"selection"`
	Strategies map[pareto.Strategy]string `json:"strategies"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, map[string]any{
		"status":   "ok",
		"sessions": h.svc.Store().Len(),
	}, http.StatusOK)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var body service.AnalysisRequest
	if !h.decode(w, r, &body) {
		return
	}
	req, err := body.EngineRequest()
	if err != nil {
		h.respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, err := h.svc.Analyze(r.Context(), body.Source, req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, sess, http.StatusCreated)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.svc.Sessions()
	out := make([]sessionSummary, len(sessions))
	for i, s := range sessions {
		out[i] = summarize(s)
	}
	h.respondJSON(w, out, http.StatusOK)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, sess, http.StatusOK)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Store().Delete(mux.Vars(r)["id"]) {
		h.respondError(w, store.ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionRowsCSV(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if err := report.WriteRowsCSV(w, sess.Result); err != nil {
		h.log.Warn("csv_write_err", slog.String("session", sess.ID), slog.Any("err", err))
	}
}

func (h *Handler) sessionBlocksCSV(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if err := report.WriteBlocksCSV(w, sess.Result); err != nil {
		h.log.Warn("csv_write_err", slog.String("session", sess.ID), slog.Any("err", err))
	}
}

func (h *Handler) optimize(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Optimize(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, sess, http.StatusOK)
}

func (h *Handler) paretoSelect(w http.ResponseWriter, r *http.Request) {
	var body paretoRequest
	if !h.decode(w, r, &body) {
		return
	}
	h.selectStrategies(w, r, "", body.Candidates)
}

// sessionPareto selects over the body's candidates, or over candidates
// generated from the session when the body is empty.
func (h *Handler) sessionPareto(w http.ResponseWriter, r *http.Request) {
	var body paretoRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &body) {
			return
		}
	}
	h.selectStrategies(w, r, mux.Vars(r)["id"], body.Candidates)
}

func (h *Handler) selectStrategies(w http.ResponseWriter, r *http.Request, sessionID string, candidates []pareto.Candidate) {
	sel, err := h.svc.SelectStrategies(r.Context(), sessionID, candidates)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	resp := paretoResponse{
		SessionID:  sessionID,
		Selection:  sel,
		Strategies: make(map[pareto.Strategy]string, len(sel.Picks)),
	}
	for s := range sel.Picks {
		c, _ := sel.Pick(s)
		resp.Strategies[s] = c.Label
	}
	h.respondJSON(w, resp, http.StatusOK)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (store.Session, bool) {
	sess, ok := h.svc.Store().Get(mux.Vars(r)["id"])
	if !ok {
		h.respondError(w, store.ErrNotFound.Error(), http.StatusNotFound)
		return store.Session{}, false
	}
	return sess, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.respondError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// respondServiceError maps service errors onto status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.respondError(w, err.Error(), http.StatusNotFound)
	case service.IsClientError(err),
		errors.Is(err, pareto.ErrNoCandidates),
		errors.Is(err, pareto.ErrInvalidCandidate):
		h.respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNoRecommendation):
		h.respondError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.log.Error("request_failed", slog.Any("err", err))
		h.respondError(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn("encode_err", slog.Any("err", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, message string, status int) {
	h.respondJSON(w, map[string]string{"error": message}, status)
}

func summarize(s store.Session) sessionSummary {
	out := sessionSummary{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Source:      s.Source,
		SampleCount: s.SampleCount,
	}
	if s.Result == nil {
		return out
	}
	out.PeakPowerKW = s.Result.PeakPowerKW
	if s.Result.Recommended != nil {
		out.RecommendedLabel = s.Result.Recommended.Level.Label
	}
	if sz := s.Result.SizingRecommendation; sz != nil {
		out.CapacityKWh = sz.CapacityKWh
		out.PowerKW = sz.PowerKW
	}
	return out
}
