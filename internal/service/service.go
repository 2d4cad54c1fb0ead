package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/cache"
	"peak_analyzer/internal/metrics"
	"peak_analyzer/internal/optimizer"
	"peak_analyzer/internal/pareto"
	"peak_analyzer/internal/publish"
	"peak_analyzer/internal/simulator"
	"peak_analyzer/internal/store"
)

// ErrNoRecommendation is returned when a session has no threshold to size for.
var ErrNoRecommendation = errors.New("session has no recommended threshold")

// Callback receives session lifecycle events.
type Callback interface {
	OnSessionAnalyzed(sess store.Session)
	OnSessionOptimized(sess store.Session)
	OnParetoSelected(sessionID string, sel *pareto.Selection)
}

// ResultCache stores engine results by request digest.
type ResultCache interface {
	GetResult(ctx context.Context, digest string) (*analysis.Result, bool, error)
	PutResult(ctx context.Context, digest string, res *analysis.Result) error
}

// SessionPublisher forwards session summaries downstream.
type SessionPublisher interface {
	PublishSession(ctx context.Context, eventType string, sess store.Session) error
}

// Deps wires a Service. Cache, Publisher and Optimizer are optional.
type Deps struct {
	Engine    *analysis.Engine
	Store     *store.Store
	Cache     ResultCache
	Publisher SessionPublisher
	Optimizer optimizer.Optimizer
	Params    optimizer.Params
	Economics pareto.Economics
	Log       *slog.Logger
}

// Service runs analyses and everything that hangs off a session: the
// remote optimizer, Pareto selection, caching and publishing.
type Service struct {
	deps      Deps
	log       *slog.Logger
	callbacks []Callback
}

func New(d Deps) *Service {
	if d.Engine == nil {
		d.Engine = analysis.New(analysis.DefaultOptions())
	}
	if d.Store == nil {
		d.Store = store.New(store.DefaultLimit)
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{deps: d, log: log.With(slog.String("component", "service"))}
}

// AddCallback registers cb for session events. Not safe to call while
// requests are being served.
func (s *Service) AddCallback(cb Callback) {
	s.callbacks = append(s.callbacks, cb)
}

func (s *Service) Store() *store.Store {
	return s.deps.Store
}

// Analyze runs the engine, stores a new session and announces it.
func (s *Service) Analyze(ctx context.Context, source string, req analysis.Request) (store.Session, error) {
	res, err := s.analyze(ctx, req)
	if err != nil {
		metrics.ObserveAnalysisError()
		return store.Session{}, err
	}

	sess := store.NewSession(source, req, res)
	s.deps.Store.Put(sess)
	metrics.SessionsStored.Set(float64(s.deps.Store.Len()))

	s.log.Info("analysis_done",
		slog.String("session", sess.ID),
		slog.Int("samples", sess.SampleCount),
		slog.Float64("peak_kw", res.PeakPowerKW),
		slog.Bool("recommended", res.Recommended != nil),
	)
	s.publish(ctx, publish.EventSessionAnalyzed, *sess)
	for _, cb := range s.callbacks {
		cb.OnSessionAnalyzed(*sess)
	}
	return *sess, nil
}

func (s *Service) analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	digest := cache.RequestDigest(req, s.deps.Engine.Options())
	if s.deps.Cache != nil {
		res, ok, err := s.deps.Cache.GetResult(ctx, digest)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			s.log.Warn("cache_get_err", slog.Any("err", err))
		case ok:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return res, nil
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	start := time.Now()
	res, err := s.deps.Engine.Analyze(req)
	if err != nil {
		return nil, err
	}
	metrics.ObserveAnalysis(res, time.Since(start))

	if s.deps.Cache != nil {
		if err := s.deps.Cache.PutResult(ctx, digest, res); err != nil {
			s.log.Warn("cache_put_err", slog.Any("err", err))
		}
	}
	return res, nil
}

// Optimize sends a session to the remote optimizer. Optimizer failures are
// recorded on the session as heuristic-only and are not returned.
func (s *Service) Optimize(ctx context.Context, id string) (store.Session, error) {
	sess, ok := s.deps.Store.Get(id)
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	if sess.Result == nil || sess.Result.Recommended == nil {
		return store.Session{}, ErrNoRecommendation
	}

	threshold := sess.Result.Recommended.Level.PowerKW
	req := optimizer.BuildRequest(sess.Samples, sess.IntervalMinutes, threshold, s.deps.Params)
	outcome := optimizer.Run(ctx, s.deps.Optimizer, req, sess.Result.SizingRecommendation)
	if outcome.HeuristicOnly {
		metrics.OptimizerCalls.WithLabelValues("heuristic_only").Inc()
		s.log.Warn("optimizer_failed", slog.String("session", id), slog.String("err", outcome.Error))
	} else {
		metrics.OptimizerCalls.WithLabelValues("ok").Inc()
	}

	updated, err := s.deps.Store.Update(id, func(stored *store.Session) {
		stored.Optimization = &outcome
	})
	if err != nil {
		return store.Session{}, err
	}
	s.publish(ctx, publish.EventSessionOptimized, updated)
	for _, cb := range s.callbacks {
		cb.OnSessionOptimized(updated)
	}
	return updated, nil
}

// Candidates builds a Pareto candidate grid around a session's heuristic
// sizing. Each candidate is replayed against the session's load to get its
// cycles and achieved peak reduction, then priced with the configured
// economics.
func (s *Service) Candidates(id string, factors []float64) ([]pareto.Candidate, error) {
	sess, ok := s.deps.Store.Get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	sizing := sess.Result.SizingRecommendation
	if sizing == nil {
		return nil, ErrNoRecommendation
	}

	base := simulator.ConfigFromSizing(sizing)
	grid := pareto.ScaleCandidates(sizing, factors)
	out := make([]pareto.Candidate, 0, len(grid))
	for _, c := range grid {
		cfg := base
		cfg.CapacityKWh = c.CapacityKWh
		cfg.MaxPowerKW = c.PowerKW
		replay, err := simulator.Replay(sess.Samples, sess.IntervalMinutes, sizing.ThresholdKW, cfg)
		if err != nil {
			return nil, fmt.Errorf("replaying %s: %w", c.Label, err)
		}
		out = append(out, s.deps.Economics.Annotate(c, replay.PeakReductionKW(sess.Result.PeakPowerKW), replay.AnnualCycles))
	}
	return out, nil
}

// SelectStrategies runs Pareto selection. With a session ID and no
// candidates, the candidates are generated from the session; with a
// session ID the selection is attached to it.
func (s *Service) SelectStrategies(ctx context.Context, sessionID string, candidates []pareto.Candidate) (*pareto.Selection, error) {
	if len(candidates) == 0 && sessionID != "" {
		generated, err := s.Candidates(sessionID, nil)
		if err != nil {
			return nil, err
		}
		candidates = generated
	}

	sel, err := pareto.Select(candidates)
	if err != nil {
		return nil, err
	}

	if sessionID != "" {
		if _, err := s.deps.Store.Update(sessionID, func(stored *store.Session) {
			stored.Pareto = sel
		}); err != nil {
			return nil, err
		}
	}
	for _, cb := range s.callbacks {
		cb.OnParetoSelected(sessionID, sel)
	}
	return sel, nil
}

func (s *Service) publish(ctx context.Context, eventType string, sess store.Session) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.PublishSession(ctx, eventType, sess); err != nil {
		s.log.Warn("publish_err", slog.String("session", sess.ID), slog.Any("err", err))
	}
}

// Sessions lists stored sessions, newest first.
func (s *Service) Sessions() []store.Session {
	return s.deps.Store.List()
}
