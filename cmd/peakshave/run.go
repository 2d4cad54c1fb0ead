package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/config"
	"peak_analyzer/internal/ingest"
	"peak_analyzer/internal/logging"
	"peak_analyzer/internal/model"
	"peak_analyzer/internal/optimizer"
	"peak_analyzer/internal/pareto"
	"peak_analyzer/internal/report"
	"peak_analyzer/internal/service"
	"peak_analyzer/internal/simulator"
	"peak_analyzer/internal/store"
)

// loadConfig layers .env, the YAML file, PEAK_* variables and finally the
// command's own flags when they were set explicitly. in is nil for commands
// that read no load profile.
func loadConfig(cmd *cobra.Command, g *globalFlags, in *inputFlags) (*config.Config, error) {
	config.LoadDotEnv(g.envFile)
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if in != nil {
		if cmd.Flags().Changed("interval") {
			cfg.Analysis.IntervalMinutes = in.interval
		}
		if cmd.Flags().Changed("format") {
			cfg.Analysis.Format = in.format
		}
		if cmd.Flags().Changed("unit") {
			cfg.Analysis.Unit = in.unit
		}
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadSamples(path string, ac config.AnalysisConfig) ([]model.Sample, error) {
	parser, err := ingest.NewParser(ac.Format, time.Duration(ac.IntervalMinutes)*time.Minute, ac.Unit)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	samples, err := parser.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return samples, nil
}

// newCLIService builds a service without cache or publisher. The remote
// optimizer is only wired when withOptimizer is set and a URL is configured.
func newCLIService(cfg *config.Config, withOptimizer bool) (*service.Service, error) {
	deps := service.Deps{
		Engine:    analysis.New(cfg.Analysis.Options),
		Store:     store.New(cfg.Store.Limit),
		Params:    cfg.Optimizer.Params,
		Economics: cfg.Economics,
		Log:       logging.New(cfg.Logging.Level, os.Stderr),
	}
	if withOptimizer && cfg.Optimizer.Enabled() {
		client, err := optimizer.NewClient(cfg.Optimizer.Config)
		if err != nil {
			return nil, err
		}
		deps.Optimizer = client
	}
	return service.New(deps), nil
}

func analyzeSession(ctx context.Context, svc *service.Service, cfg *config.Config, path string) (store.Session, error) {
	log.Printf("Loading %s...", path)
	samples, err := loadSamples(path, cfg.Analysis)
	if err != nil {
		return store.Session{}, err
	}
	log.Printf("Loaded %d samples", len(samples))

	return svc.Analyze(ctx, filepath.Base(path), analysis.Request{
		Samples:         samples,
		IntervalMinutes: cfg.Analysis.IntervalMinutes,
	})
}

func runAnalyze(ctx context.Context, out io.Writer, cfg *config.Config, path string, f *analyzeFlags) error {
	svc, err := newCLIService(cfg, f.optimize)
	if err != nil {
		return err
	}
	sess, err := analyzeSession(ctx, svc, cfg, path)
	if err != nil {
		return err
	}

	if f.optimize {
		optimized, err := svc.Optimize(ctx, sess.ID)
		switch {
		case errors.Is(err, service.ErrNoRecommendation):
			log.Printf("Skipping optimizer: %v", err)
		case err != nil:
			return err
		default:
			sess = optimized
		}
	}

	if f.rowsOut != "" {
		if err := writeFile(f.rowsOut, func(w io.Writer) error { return report.WriteRowsCSV(w, sess.Result) }); err != nil {
			return err
		}
	}
	if f.blocksOut != "" {
		if err := writeFile(f.blocksOut, func(w io.Writer) error { return report.WriteBlocksCSV(w, sess.Result) }); err != nil {
			return err
		}
	}

	if f.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	}

	p := report.NewPrinter(out, f.color)
	p.Summary(sess.Source, sess.Result)
	p.Rows(sess.Result)
	if rec := sess.Result.Recommended; rec != nil {
		p.Blocks(fmt.Sprintf("Blocks at %s", rec.Level.Label), rec.Blocks, f.topBlocks)
	}
	p.Sizing(sess.Result.SizingRecommendation)
	p.Optimization(sess.Optimization)
	return nil
}

func runCompare(ctx context.Context, out io.Writer, cfg *config.Config, path string, factors []float64, thresholdKW float64) error {
	svc, err := newCLIService(cfg, false)
	if err != nil {
		return err
	}
	sess, err := analyzeSession(ctx, svc, cfg, path)
	if err != nil {
		return err
	}
	sizing := sess.Result.SizingRecommendation
	if sizing == nil {
		return fmt.Errorf("no storage recommendation for %s: %w", path, service.ErrNoRecommendation)
	}
	if thresholdKW <= 0 {
		thresholdKW = sizing.ThresholdKW
	}

	rows, err := simulator.Sweep(sess.Samples, sess.IntervalMinutes, thresholdKW, simulator.ConfigFromSizing(sizing), factors)
	if err != nil {
		return err
	}

	p := report.NewPrinter(out, false)
	p.Summary(sess.Source, sess.Result)
	p.Sizing(sizing)
	p.Sweep(rows, sess.Result.PeakPowerKW)
	return nil
}

// runPareto reads a JSON array of candidates from path, or stdin for "-".
func runPareto(ctx context.Context, out io.Writer, in io.Reader, path string) error {
	r := in
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var candidates []pareto.Candidate
	if err := json.NewDecoder(r).Decode(&candidates); err != nil {
		return fmt.Errorf("decoding candidates: %w", err)
	}

	svc := service.New(service.Deps{Log: logging.Discard()})
	sel, err := svc.SelectStrategies(ctx, "", candidates)
	if err != nil {
		return err
	}
	report.NewPrinter(out, false).Pareto(sel)
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	log.Printf("Wrote %s", path)
	return nil
}

func parseFactors(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	factors := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("factor must be positive, got %v", v)
		}
		factors = append(factors, v)
	}
	if len(factors) == 0 {
		return nil, fmt.Errorf("no factors specified")
	}
	return factors, nil
}
