package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/ingest"
	"peak_analyzer/internal/optimizer"
	"peak_analyzer/internal/pareto"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PEAK_"

type Config struct {
	Analysis  AnalysisConfig   `yaml:"analysis"`
	Economics pareto.Economics `yaml:"economics"`
	Optimizer OptimizerConfig  `yaml:"optimizer"`
	Server    ServerConfig     `yaml:"server"`
	Store     StoreConfig      `yaml:"store"`
	Redis     RedisConfig      `yaml:"redis"`
	Kafka     KafkaConfig      `yaml:"kafka"`
	Logging   LoggingConfig    `yaml:"logging"`
}

type AnalysisConfig struct {
	IntervalMinutes  int    `yaml:"interval_minutes"`
	Format           string `yaml:"format"`
	Unit             string `yaml:"unit"`
	analysis.Options `yaml:",inline"`
}

type OptimizerConfig struct {
	optimizer.Config `yaml:",inline"`
	Params           optimizer.Params `yaml:"params"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type StoreConfig struct {
	Limit int `yaml:"limit"`
}

// RedisConfig enables the result cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig enables session publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			IntervalMinutes: 60,
			Format:          "profile",
			Unit:            ingest.UnitWatt,
			Options:         analysis.DefaultOptions(),
		},
		Economics: pareto.Economics{
			CapexPerKWh:    350,
			CapexPerKW:     150,
			DemandChargeKW: 120,
			DiscountRate:   0.05,
			LifetimeYears:  15,
		},
		Optimizer: OptimizerConfig{
			Config: optimizer.DefaultConfig(),
			Params: optimizer.DefaultParams(),
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Store:   StoreConfig{Limit: 100},
		Redis:   RedisConfig{TTL: 10 * time.Minute},
		Kafka:   KafkaConfig{Topic: "peak-analysis.sessions"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv reads a .env file and sets variables not already in the environment.
func LoadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return // silently skip if .env doesn't exist
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, val)
		}
	}
}

// ApplyEnv overrides fields from PEAK_* variables. lookup is normally
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("INTERVAL_MINUTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sINTERVAL_MINUTES: %w", EnvPrefix, err)
		}
		c.Analysis.IntervalMinutes = n
	}
	if v, ok := get("UNIT"); ok {
		c.Analysis.Unit = v
	}
	if v, ok := get("OPTIMIZER_URL"); ok {
		c.Optimizer.BaseURL = v
	}
	if v, ok := get("OPTIMIZER_TOKEN"); ok {
		c.Optimizer.Token = v
	}
	if v, ok := get("OPTIMIZER_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sOPTIMIZER_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Optimizer.Timeout = d
	}
	if v, ok := get("LISTEN_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := get("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := get("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := get("KAFKA_TOPIC"); ok {
		c.Kafka.Topic = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if err := analysis.ValidateInterval(c.Analysis.IntervalMinutes); err != nil {
		errs = append(errs, err)
	}
	if _, err := ingest.NormalizeUnit(c.Analysis.Unit); err != nil {
		errs = append(errs, fmt.Errorf("analysis.unit: %w", err))
	}
	if c.Analysis.ToleranceFactor < 1 {
		errs = append(errs, fmt.Errorf("analysis.tolerance_factor must be at least 1, got %v", c.Analysis.ToleranceFactor))
	}
	if dod := c.Analysis.Sizing.DepthOfDischarge; dod <= 0 || dod > 1 {
		errs = append(errs, fmt.Errorf("analysis.sizing.depth_of_discharge must be in (0, 1], got %v", dod))
	}
	if c.Analysis.Sizing.SafetyMargin < 1 {
		errs = append(errs, fmt.Errorf("analysis.sizing.safety_margin must be at least 1, got %v", c.Analysis.Sizing.SafetyMargin))
	}
	if c.Store.Limit <= 0 {
		errs = append(errs, fmt.Errorf("store.limit must be positive, got %d", c.Store.Limit))
	}
	if len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.Topic) == "" {
		errs = append(errs, errors.New("kafka.topic must not be empty when brokers are set"))
	}
	return errors.Join(errs...)
}
