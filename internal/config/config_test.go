package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peak_analyzer/internal/analysis"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60, cfg.Analysis.IntervalMinutes)
	assert.InDelta(t, analysis.DefaultToleranceFactor, cfg.Analysis.ToleranceFactor, 1e-9)
	assert.False(t, cfg.Optimizer.Enabled())
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peak.yaml")
	yamlData := `
analysis:
  interval_minutes: 15
  tolerance_factor: 2
  parallel: true
  sizing:
    depth_of_discharge: 0.9
    safety_margin: 1.2
optimizer:
  url: http://optimizer:9000
  timeout: 45s
  params:
    capex_per_kwh: 280
redis:
  addr: localhost:6379
kafka:
  brokers: [kafka:9092]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 15, cfg.Analysis.IntervalMinutes)
	assert.InDelta(t, 2.0, cfg.Analysis.ToleranceFactor, 1e-9)
	assert.True(t, cfg.Analysis.Parallel)
	assert.InDelta(t, 0.9, cfg.Analysis.Sizing.DepthOfDischarge, 1e-9)
	assert.Equal(t, "http://optimizer:9000", cfg.Optimizer.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Optimizer.Timeout)
	assert.InDelta(t, 280.0, cfg.Optimizer.Params.CapexPerKWh, 1e-9)
	// untouched defaults survive
	assert.InDelta(t, 150.0, cfg.Optimizer.Params.CapexPerKW, 1e-9)
	assert.Equal(t, 3, cfg.Optimizer.MaxAttempts)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "peak-analysis.sessions", cfg.Kafka.Topic)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis: [1, 2"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parsing config YAML")
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PEAK_INTERVAL_MINUTES": "15",
		"PEAK_OPTIMIZER_URL":    "http://opt",
		"PEAK_OPTIMIZER_TOKEN":  "tok",
		"PEAK_KAFKA_BROKERS":    "a:9092, b:9092,",
		"PEAK_LOG_LEVEL":        "debug",
		"PEAK_REDIS_ADDR":       "",
		"PEAK_UNIT":             "kW",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, 15, cfg.Analysis.IntervalMinutes)
	assert.Equal(t, "http://opt", cfg.Optimizer.BaseURL)
	assert.Equal(t, "tok", cfg.Optimizer.Token)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "kW", cfg.Analysis.Unit)

	env["PEAK_INTERVAL_MINUTES"] = "hourly"
	assert.ErrorContains(t, Default().ApplyEnv(lookup), "PEAK_INTERVAL_MINUTES")
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Analysis.IntervalMinutes = 30
	cfg.Analysis.Sizing.DepthOfDischarge = 0
	cfg.Kafka.Brokers = []string{"k:9092"}
	cfg.Kafka.Topic = ""
	cfg.Analysis.Unit = "MW"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrInvalidInterval)
	assert.Contains(t, err.Error(), "depth_of_discharge")
	assert.Contains(t, err.Error(), "kafka.topic")
	assert.Contains(t, err.Error(), "analysis.unit")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nPEAK_TEST_DOTENV_A=\"quoted\"\nPEAK_TEST_DOTENV_B=kept\nnot a pair\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("PEAK_TEST_DOTENV_B", "from-env")
	os.Unsetenv("PEAK_TEST_DOTENV_A")
	t.Cleanup(func() { os.Unsetenv("PEAK_TEST_DOTENV_A") })

	LoadDotEnv(path)
	assert.Equal(t, "quoted", os.Getenv("PEAK_TEST_DOTENV_A"))
	assert.Equal(t, "from-env", os.Getenv("PEAK_TEST_DOTENV_B"))

	LoadDotEnv(filepath.Join(t.TempDir(), "missing"))
}
