package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"ATLAS_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"ATLAS_DB_MAX_CONNS" default:"8"`

	RedisURL       string        `envconfig:"REDIS_URL" default:""`
	ClusterLockTTL time.Duration `envconfig:"CLUSTER_LOCK_TTL" default:"10m"`

	ClassifierEndpoint string        `envconfig:"CLASSIFIER_ENDPOINT" default:""`
	ClassifierTimeout  time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"60s"`
	ClassifierRetries  int           `envconfig:"CLASSIFIER_RETRIES" default:"2"`

	EmbeddingEndpoint string        `envconfig:"EMBEDDING_ENDPOINT" default:""`
	EmbeddingModel    string        `envconfig:"EMBEDDING_MODEL" default:"multilingual-e5-small"`
	EmbeddingTimeout  time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`

	SourcesFile  string `envconfig:"SOURCES_FILE" default:"config/sources.yaml"`
	SectionsFile string `envconfig:"SECTIONS_FILE" default:"config/sections.yaml"`

	LinkThreshold    float64 `envconfig:"LINK_THRESHOLD" default:"0.95"`
	ProposeThreshold float64 `envconfig:"PROPOSE_THRESHOLD" default:"0.65"`

	FetchTimeout     time.Duration `envconfig:"FETCH_TIMEOUT" default:"25s"`
	FetchConcurrency int           `envconfig:"FETCH_CONCURRENCY" default:"4"`

	HTTPHost string `envconfig:"HTTP_HOST" default:"127.0.0.1"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8090"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("ATLAS_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("ATLAS_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("ATLAS_DB_MIN_CONNS (%d) cannot exceed ATLAS_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if err := ValidateThresholds(c.LinkThreshold, c.ProposeThreshold); err != nil {
		return err
	}
	if c.ClassifierRetries < 0 {
		return fmt.Errorf("CLASSIFIER_RETRIES must be >= 0")
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be >= 1")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be > 0")
	}
	if c.ClusterLockTTL <= 0 {
		return fmt.Errorf("CLUSTER_LOCK_TTL must be > 0")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

// ValidateThresholds checks a linked/proposed threshold pair.
func ValidateThresholds(linked, proposed float64) error {
	if linked <= 0 || linked > 1 {
		return fmt.Errorf("LINK_THRESHOLD must be in (0, 1], got %v", linked)
	}
	if proposed <= 0 || proposed > 1 {
		return fmt.Errorf("PROPOSE_THRESHOLD must be in (0, 1], got %v", proposed)
	}
	if proposed > linked {
		return fmt.Errorf("PROPOSE_THRESHOLD (%v) cannot exceed LINK_THRESHOLD (%v)", proposed, linked)
	}
	return nil
}

// HTTPAddr is the listen address of the ops API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", strings.TrimSpace(c.HTTPHost), c.HTTPPort)
}
