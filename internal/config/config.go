// Package config loads salesbench configuration from environment variables
// and the optional judge panel file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/salesbench/internal/model"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxRequestBody  int64

	// Storage. DatabaseURL selects Postgres; otherwise SQLitePath, if set,
	// selects the local store.
	DatabaseURL string
	SQLitePath  string

	// Suite and judges.
	DataDir    string
	JudgesFile string
	Judges     []model.JudgeConfig

	// Evaluation.
	ScenarioConcurrency int
	AgentConcurrency    int
	FailureThreshold    float64
	MaxTurns            int
	RetryAttempts       int
	RetryBaseDelay      time.Duration
	AgentTimeout        time.Duration
	ExtendedTimeout     time.Duration

	// Rate limiting of evaluation triggers, per client IP.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// OTELSampleRatio is the fraction of new root traces recorded.
	OTELSampleRatio float64

	LogLevel string
}

// Load reads configuration from environment variables with defaults. Every
// malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	intVar := func(key string, def int) int {
		v, err := envInt(key, def)
		collect(err)
		return v
	}
	durVar := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		collect(err)
		return v
	}
	floatVar := func(key string, def float64) float64 {
		v, err := envFloat(key, def)
		collect(err)
		return v
	}
	boolVar := func(key string, def bool) bool {
		v, err := envBool(key, def)
		collect(err)
		return v
	}

	cfg := Config{
		Port:                intVar("SALESBENCH_PORT", 8080),
		ReadTimeout:         durVar("SALESBENCH_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        durVar("SALESBENCH_WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout:     durVar("SALESBENCH_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxRequestBody:      int64(intVar("SALESBENCH_MAX_REQUEST_BODY_BYTES", 1<<20)),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		SQLitePath:          envStr("SALESBENCH_SQLITE_PATH", ""),
		DataDir:             envStr("SALESBENCH_DATA_DIR", "data"),
		JudgesFile:          envStr("SALESBENCH_JUDGES_FILE", ""),
		ScenarioConcurrency: intVar("SALESBENCH_SCENARIO_CONCURRENCY", 5),
		AgentConcurrency:    intVar("SALESBENCH_AGENT_CONCURRENCY", 3),
		FailureThreshold:    floatVar("SALESBENCH_FAILURE_THRESHOLD", 0.25),
		MaxTurns:            intVar("SALESBENCH_MAX_TURNS", 5),
		RetryAttempts:       intVar("SALESBENCH_RETRY_ATTEMPTS", 3),
		RetryBaseDelay:      durVar("SALESBENCH_RETRY_BASE_DELAY", time.Second),
		AgentTimeout:        durVar("SALESBENCH_AGENT_TIMEOUT", 60*time.Second),
		ExtendedTimeout:     durVar("SALESBENCH_AGENT_EXTENDED_TIMEOUT", 90*time.Second),
		RateLimitEnabled:    boolVar("SALESBENCH_RATE_LIMIT_ENABLED", true),
		RateLimitRPS:        floatVar("SALESBENCH_RATE_LIMIT_RPS", 0.2),
		RateLimitBurst:      intVar("SALESBENCH_RATE_LIMIT_BURST", 3),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        boolVar("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "salesbench"),
		OTELSampleRatio:     floatVar("SALESBENCH_OTEL_SAMPLE_RATIO", 1),
		LogLevel:            envStr("SALESBENCH_LOG_LEVEL", "info"),
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadJudges fills Judges from JudgesFile, or the built-in panel when no
// file is configured, and resolves each judge's API key.
func (c *Config) LoadJudges() error {
	judges := DefaultJudges()
	if c.JudgesFile != "" {
		var err error
		if judges, err = ReadJudgesFile(c.JudgesFile); err != nil {
			return err
		}
	}
	if err := ResolveKeys(judges); err != nil {
		return err
	}
	c.Judges = judges
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("SALESBENCH_PORT must be between 1 and 65535 (got %d)", c.Port))
	}
	if c.MaxRequestBody <= 0 {
		errs = append(errs, errors.New("SALESBENCH_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.ScenarioConcurrency < 1 {
		errs = append(errs, errors.New("SALESBENCH_SCENARIO_CONCURRENCY must be at least 1"))
	}
	if c.AgentConcurrency < 1 {
		errs = append(errs, errors.New("SALESBENCH_AGENT_CONCURRENCY must be at least 1"))
	}
	if c.FailureThreshold < 0 || c.FailureThreshold > 1 {
		errs = append(errs, fmt.Errorf("SALESBENCH_FAILURE_THRESHOLD must be within [0, 1] (got %g)", c.FailureThreshold))
	}
	if c.MaxTurns < 1 {
		errs = append(errs, errors.New("SALESBENCH_MAX_TURNS must be at least 1"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("SALESBENCH_RETRY_ATTEMPTS must be at least 1"))
	}
	if c.AgentTimeout <= 0 || c.ExtendedTimeout <= 0 {
		errs = append(errs, errors.New("agent timeouts must be positive"))
	}
	if c.OTELSampleRatio < 0 || c.OTELSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("SALESBENCH_OTEL_SAMPLE_RATIO must be within [0, 1] (got %g)", c.OTELSampleRatio))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst < 1) {
		errs = append(errs, errors.New("SALESBENCH_RATE_LIMIT_RPS and SALESBENCH_RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
