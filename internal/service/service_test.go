package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/logging"
	"peak_analyzer/internal/model"
	"peak_analyzer/internal/optimizer"
	"peak_analyzer/internal/pareto"
	"peak_analyzer/internal/publish"
	"peak_analyzer/internal/store"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func hourlySeries(values ...float64) []model.Sample {
	samples := make([]model.Sample, len(values))
	for i, v := range values {
		samples[i] = model.Sample{Index: i, Timestamp: t0.Add(time.Duration(i) * time.Hour), PowerKW: v}
	}
	return samples
}

// spikeYear is a flat 100 kW year with one 500 kW hour. The heuristic sizes
// it at 600 kWh / 480 kW.
func spikeYear() []model.Sample {
	values := make([]float64, 8760)
	for i := range values {
		values[i] = 100
	}
	values[4000] = 500
	return hourlySeries(values...)
}

type memCache struct {
	mu      sync.Mutex
	results map[string]*analysis.Result
	gets    int
	getErr  error
}

func newMemCache() *memCache {
	return &memCache{results: make(map[string]*analysis.Result)}
}

func (m *memCache) GetResult(_ context.Context, digest string) (*analysis.Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	res, ok := m.results[digest]
	return res, ok, nil
}

func (m *memCache) PutResult(_ context.Context, digest string, res *analysis.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[digest] = res
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishSession(_ context.Context, eventType string, sess store.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType+":"+sess.ID)
	return nil
}

type recordingCallback struct {
	analyzed  []store.Session
	optimized []store.Session
	pareto    []*pareto.Selection
}

func (c *recordingCallback) OnSessionAnalyzed(sess store.Session)  { c.analyzed = append(c.analyzed, sess) }
func (c *recordingCallback) OnSessionOptimized(sess store.Session) { c.optimized = append(c.optimized, sess) }
func (c *recordingCallback) OnParetoSelected(_ string, sel *pareto.Selection) {
	c.pareto = append(c.pareto, sel)
}

type stubOptimizer struct {
	resp *optimizer.Response
	err  error
	reqs []optimizer.Request
}

func (s *stubOptimizer) Optimize(_ context.Context, req optimizer.Request) (*optimizer.Response, error) {
	s.reqs = append(s.reqs, req)
	return s.resp, s.err
}

func testEconomics() pareto.Economics {
	return pareto.Economics{CapexPerKWh: 100, DemandChargeKW: 100, LifetimeYears: 10}
}

func newTestService(deps Deps) (*Service, *recordingCallback) {
	deps.Log = logging.Discard()
	svc := New(deps)
	cb := &recordingCallback{}
	svc.AddCallback(cb)
	return svc, cb
}

func TestAnalyze_StoresPublishesAndNotifies(t *testing.T) {
	pub := &recordingPublisher{}
	svc, cb := newTestService(Deps{Publisher: pub})

	sess, err := svc.Analyze(context.Background(), "spike.csv", analysis.Request{Samples: spikeYear(), IntervalMinutes: 60})
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "spike.csv", sess.Source)
	assert.Equal(t, 8760, sess.SampleCount)
	require.NotNil(t, sess.Result.SizingRecommendation)
	assert.InDelta(t, 600.0, sess.Result.SizingRecommendation.CapacityKWh, 1e-6)

	stored, ok := svc.Store().Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.ID, stored.ID)

	assert.Equal(t, []string{publish.EventSessionAnalyzed + ":" + sess.ID}, pub.events)
	require.Len(t, cb.analyzed, 1)
	assert.Equal(t, sess.ID, cb.analyzed[0].ID)
}

func TestAnalyze_EngineErrorNotStored(t *testing.T) {
	svc, cb := newTestService(Deps{})

	_, err := svc.Analyze(context.Background(), "", analysis.Request{IntervalMinutes: 60})
	require.ErrorIs(t, err, analysis.ErrEmptySeries)
	assert.True(t, IsClientError(err))
	assert.Equal(t, 0, svc.Store().Len())
	assert.Empty(t, cb.analyzed)
}

func TestAnalyze_UsesCache(t *testing.T) {
	c := newMemCache()
	svc, _ := newTestService(Deps{Cache: c})
	req := analysis.Request{Samples: hourlySeries(10, 20, 30, 40), IntervalMinutes: 60}

	first, err := svc.Analyze(context.Background(), "", req)
	require.NoError(t, err)
	second, err := svc.Analyze(context.Background(), "", req)
	require.NoError(t, err)

	assert.Equal(t, 2, c.gets)
	assert.Len(t, c.results, 1)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Same(t, first.Result, second.Result)
}

func TestAnalyze_CacheErrorFallsThrough(t *testing.T) {
	c := newMemCache()
	c.getErr = errors.New("connection refused")
	svc, _ := newTestService(Deps{Cache: c})

	sess, err := svc.Analyze(context.Background(), "", analysis.Request{Samples: hourlySeries(10, 20), IntervalMinutes: 60})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, sess.Result.PeakPowerKW, 1e-9)
}

func TestOptimize_AttachesOutcome(t *testing.T) {
	opt := &stubOptimizer{resp: &optimizer.Response{OptimalCapacityKWh: 540, OptimalPowerKW: 480}}
	pub := &recordingPublisher{}
	svc, cb := newTestService(Deps{Optimizer: opt, Publisher: pub, Params: optimizer.DefaultParams()})

	sess, err := svc.Analyze(context.Background(), "", analysis.Request{Samples: spikeYear(), IntervalMinutes: 60})
	require.NoError(t, err)

	updated, err := svc.Optimize(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Optimization)
	assert.False(t, updated.Optimization.HeuristicOnly)
	require.NotNil(t, updated.Optimization.Divergence)
	assert.InDelta(t, 0.9, updated.Optimization.Divergence.CapacityRatio, 1e-9)

	require.Len(t, opt.reqs, 1)
	assert.InDelta(t, 100.0, opt.reqs[0].PeakShavingThresholdKW, 1e-9)
	assert.Len(t, opt.reqs[0].LoadProfileKW, 8760)

	stored, _ := svc.Store().Get(sess.ID)
	assert.NotNil(t, stored.Optimization)
	assert.Len(t, pub.events, 2)
	assert.Len(t, cb.optimized, 1)
}

func TestOptimize_FailureIsHeuristicOnly(t *testing.T) {
	opt := &stubOptimizer{err: optimizer.ErrRemoteOptimizer}
	svc, _ := newTestService(Deps{Optimizer: opt})

	sess, err := svc.Analyze(context.Background(), "", analysis.Request{Samples: spikeYear(), IntervalMinutes: 60})
	require.NoError(t, err)

	updated, err := svc.Optimize(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, updated.Optimization.HeuristicOnly)
	assert.NotEmpty(t, updated.Optimization.Error)
	assert.InDelta(t, 600.0, updated.Result.SizingRecommendation.CapacityKWh, 1e-6)
}

func TestOptimize_NotConfigured(t *testing.T) {
	svc, _ := newTestService(Deps{})
	sess, err := svc.Analyze(context.Background(), "", analysis.Request{Samples: spikeYear(), IntervalMinutes: 60})
	require.NoError(t, err)

	updated, err := svc.Optimize(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, updated.Optimization.HeuristicOnly)
}

func TestOptimize_Errors(t *testing.T) {
	svc, _ := newTestService(Deps{})

	_, err := svc.Optimize(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	flat, err := svc.Analyze(context.Background(), "", analysis.Request{Samples: hourlySeries(50, 50, 50), IntervalMinutes: 60})
	require.NoError(t, err)
	_, err = svc.Optimize(context.Background(), flat.ID)
	assert.ErrorIs(t, err, ErrNoRecommendation)
}

func TestCandidates_ReplaysScaledSizing(t *testing.T) {
	svc, _ := newTestService(Deps{Economics: testEconomics()})
	sess, err := svc.Analyze(context.Background(), "", analysis.Request{Samples: spikeYear(), IntervalMinutes: 60})
	require.NoError(t, err)

	candidates, err := svc.Candidates(sess.ID, nil)
	require.NoError(t, err)
	require.Len(t, candidates, len(pareto.DefaultScaleFactors))

	base := candidates[2]
	assert.Equal(t, "x1", base.Label)
	assert.InDelta(t, 600.0, base.CapacityKWh, 1e-6)
	// Full 400 kW reduction at 100 EUR/kW-year over 10 years, minus 60k capex.
	assert.InDelta(t, 340000.0, base.NPV, 1e-6)
	assert.InDelta(t, 1.0/3, base.AnnualCycles, 1e-6)
	assert.InDelta(t, 1.5, base.PaybackYears, 1e-9)

	// Half size shaves only 240 kW of the spike.
	half := candidates[0]
	assert.InDelta(t, 24000*10-30000.0, half.NPV, 1e-6)
}

func TestSelectStrategies_FromSession(t *testing.T) {
	svc, cb := newTestService(Deps{Economics: testEconomics()})
	sess, err := svc.Analyze(context.Background(), "", analysis.Request{Samples: spikeYear(), IntervalMinutes: 60})
	require.NoError(t, err)

	sel, err := svc.SelectStrategies(context.Background(), sess.ID, nil)
	require.NoError(t, err)

	best, ok := sel.Pick(pareto.NPVMax)
	require.True(t, ok)
	assert.Equal(t, "x1", best.Label)

	stored, _ := svc.Store().Get(sess.ID)
	assert.Same(t, sel, stored.Pareto)
	assert.Len(t, cb.pareto, 1)
}

func TestSelectStrategies_ExplicitCandidates(t *testing.T) {
	svc, _ := newTestService(Deps{})
	candidates := []pareto.Candidate{
		{Label: "a", NPV: 100, AnnualCycles: 200, PaybackYears: 5},
		{Label: "b", NPV: 150, AnnualCycles: 150, PaybackYears: 4},
	}

	sel, err := svc.SelectStrategies(context.Background(), "", candidates)
	require.NoError(t, err)
	c, _ := sel.Pick(pareto.CyclesMax)
	assert.Equal(t, "a", c.Label)

	_, err = svc.SelectStrategies(context.Background(), "", nil)
	assert.ErrorIs(t, err, pareto.ErrNoCandidates)

	_, err = svc.SelectStrategies(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAnalysisRequest_EngineRequest(t *testing.T) {
	req := AnalysisRequest{
		IntervalMinutes: 60,
		CSV:             "timestamp,power_kw\n2024-01-01 00:00,10\n2024-01-01 01:00,12.5\n",
		Format:          "profile",
	}
	out, err := req.EngineRequest()
	require.NoError(t, err)
	require.Len(t, out.Samples, 2)
	assert.InDelta(t, 12.5, out.Samples[1].PowerKW, 1e-9)

	out, err = AnalysisRequest{IntervalMinutes: 15, Samples: hourlySeries(1, 2)}.EngineRequest()
	require.NoError(t, err)
	assert.Equal(t, 15, out.IntervalMinutes)

	_, err = AnalysisRequest{IntervalMinutes: 60, Samples: hourlySeries(1), CSV: "x"}.EngineRequest()
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = AnalysisRequest{IntervalMinutes: 30}.EngineRequest()
	assert.ErrorIs(t, err, analysis.ErrInvalidInterval)

	_, err = AnalysisRequest{IntervalMinutes: 60, CSV: "a,b\n", Format: "xml"}.EngineRequest()
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.True(t, IsClientError(err))
}

func TestAnalysisRequest_UnmarshalJSON(t *testing.T) {
	var req AnalysisRequest
	body := `{"intervalMinutes":15,"samples":[{"timestamp":"","powerKW":40},{"timestamp":"2024-01-01T00:15:00Z","power_kw":55}]}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, 15, req.IntervalMinutes)
	require.Len(t, req.Samples, 2)
	assert.False(t, req.Samples[0].HasTimestamp())
	assert.InDelta(t, 40.0, req.Samples[0].PowerKW, 1e-9)
	assert.Equal(t, t0.Add(15*time.Minute), req.Samples[1].Timestamp)

	req = AnalysisRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"interval_minutes":60,"intervalMinutes":15}`), &req))
	assert.Equal(t, 60, req.IntervalMinutes)

	assert.Error(t, json.Unmarshal([]byte(`{"interval_minutes":60,"bogus":1}`), &req))
}

func TestAnalysisRequest_HomeAssistantUnit(t *testing.T) {
	csv := "entity_id,state,last_changed\nsensor.p,2.5,2024-01-01T00:00:00Z\nsensor.p,3,2024-01-01T01:00:00Z\n"

	out, err := AnalysisRequest{IntervalMinutes: 60, CSV: csv, Format: "ha", Unit: "kW"}.EngineRequest()
	require.NoError(t, err)
	require.Len(t, out.Samples, 2)
	assert.InDelta(t, 2.5, out.Samples[0].PowerKW, 1e-9)

	out, err = AnalysisRequest{IntervalMinutes: 60, CSV: csv, Format: "ha"}.EngineRequest()
	require.NoError(t, err)
	assert.InDelta(t, 0.0025, out.Samples[0].PowerKW, 1e-9)

	_, err = AnalysisRequest{IntervalMinutes: 60, CSV: csv, Format: "ha", Unit: "MW"}.EngineRequest()
	assert.ErrorIs(t, err, ErrBadRequest)
}
