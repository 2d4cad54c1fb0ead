package api

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"peak_analyzer/internal/metrics"
)

// NewRouter mounts the REST API, the metrics endpoint and, when ws is not
// nil, the websocket endpoint.
func NewRouter(h *Handler, ws http.Handler, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if ws != nil {
		r.Handle("/ws", ws)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/analyze", h.analyze).Methods("POST")
	api.HandleFunc("/pareto", h.paretoSelect).Methods("POST")
	api.HandleFunc("/sessions", h.listSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.getSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.deleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/rows.csv", h.sessionRowsCSV).Methods("GET")
	api.HandleFunc("/sessions/{id}/blocks.csv", h.sessionBlocksCSV).Methods("GET")
	api.HandleFunc("/sessions/{id}/optimize", h.optimize).Methods("POST")
	api.HandleFunc("/sessions/{id}/pareto", h.sessionPareto).Methods("POST")
	api.Use(metricsMiddleware)

	if len(allowedOrigins) == 0 {
		return r
	}
	return handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and latency by route template.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.ObserveRequest(route, r.Method, rec.status, time.Since(start))
	})
}
