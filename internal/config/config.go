package config

import (
	"fmt"
	"time"

	"github.com/aescanero/dago-node-extract/internal/rule"
	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the extraction worker
type Config struct {
	// Worker configuration
	WorkerID string `env:"WORKER_ID" envDefault:"extract-1"`

	// Redis configuration
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASS" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Stream configuration
	StreamKey     string        `env:"STREAM_KEY" envDefault:"extract.work"`
	ConsumerGroup string        `env:"CONSUMER_GROUP" envDefault:"extract-workers"`
	ResultStream  string        `env:"RESULT_STREAM" envDefault:"extract.done"`
	BlockTime     time.Duration `env:"BLOCK_TIME" envDefault:"1s"`
	MaxRetries    int           `env:"MAX_RETRIES" envDefault:"3"`

	// Stored documents referenced by document_key
	DocumentPrefix string `env:"DOCUMENT_PREFIX" envDefault:"extract:document:"`

	// Rule engine configuration
	RuleTimeout      time.Duration `env:"RULE_TIMEOUT" envDefault:"5s"`
	RuleMaxDepth     int           `env:"RULE_MAX_DEPTH" envDefault:"10"`
	RuleCacheEnabled bool          `env:"RULE_CACHE_ENABLED" envDefault:"true"`
	RuleCacheSize    int           `env:"RULE_CACHE_SIZE" envDefault:"100"`
	RuleCacheResults bool          `env:"RULE_CACHE_RESULTS" envDefault:"false"`
	RuleStrict       bool          `env:"RULE_STRICT" envDefault:"false"`
	RuleDebug        bool          `env:"RULE_DEBUG" envDefault:"false"`
	RuleConcatPolicy string        `env:"RULE_CONCAT_POLICY" envDefault:"empty"`

	// CEL configuration
	CELCostLimit uint64 `env:"CEL_COST_LIMIT" envDefault:"100000"`

	// Health check configuration
	HealthPort int `env:"HEALTH_PORT" envDefault:"8082"`

	// Observability configuration
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"extract"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.WorkerID == "" {
		return fmt.Errorf("WORKER_ID is required")
	}

	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	if c.StreamKey == "" {
		return fmt.Errorf("STREAM_KEY is required")
	}

	if c.ConsumerGroup == "" {
		return fmt.Errorf("CONSUMER_GROUP is required")
	}

	if c.ResultStream == "" {
		return fmt.Errorf("RESULT_STREAM is required")
	}

	if c.BlockTime <= 0 {
		return fmt.Errorf("BLOCK_TIME must be positive")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be non-negative")
	}

	if c.DocumentPrefix == "" {
		return fmt.Errorf("DOCUMENT_PREFIX is required")
	}

	if c.RuleTimeout <= 0 {
		return fmt.Errorf("RULE_TIMEOUT must be positive")
	}

	if c.RuleMaxDepth <= 0 {
		return fmt.Errorf("RULE_MAX_DEPTH must be positive")
	}

	if c.RuleCacheSize <= 0 {
		return fmt.Errorf("RULE_CACHE_SIZE must be positive")
	}

	switch rule.ConcatPolicy(c.RuleConcatPolicy) {
	case rule.ConcatEmpty, rule.ConcatAbort:
	default:
		return fmt.Errorf("RULE_CONCAT_POLICY must be one of: %s, %s", rule.ConcatEmpty, rule.ConcatAbort)
	}

	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("HEALTH_PORT must be between 1 and 65535")
	}

	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	return validLevels[level]
}

// EngineOptions returns the rule engine options. Custom selectors, operators
// and the metrics recorder are left for the caller to set.
func (c *Config) EngineOptions() rule.Options {
	return rule.Options{
		Timeout:      c.RuleTimeout,
		MaxDepth:     c.RuleMaxDepth,
		EnableCache:  c.RuleCacheEnabled,
		CacheSize:    c.RuleCacheSize,
		CacheResults: c.RuleCacheResults,
		StrictMode:   c.RuleStrict,
		Debug:        c.RuleDebug,
		ConcatPolicy: rule.ConcatPolicy(c.RuleConcatPolicy),
		CELCostLimit: c.CELCostLimit,
	}
}

// ErrorStream returns the stream failed jobs are published to
func (c *Config) ErrorStream() string {
	return c.ResultStream + ".errors"
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{WorkerID=%s, RedisAddr=%s, RedisDB=%d, StreamKey=%s, ConsumerGroup=%s, "+
			"RuleTimeout=%s, RuleMaxDepth=%d, RuleCache=%v/%d, RuleStrict=%v, HealthPort=%d, LogLevel=%s}",
		c.WorkerID,
		c.RedisAddr,
		c.RedisDB,
		c.StreamKey,
		c.ConsumerGroup,
		c.RuleTimeout,
		c.RuleMaxDepth,
		c.RuleCacheEnabled,
		c.RuleCacheSize,
		c.RuleStrict,
		c.HealthPort,
		c.LogLevel,
	)
}
