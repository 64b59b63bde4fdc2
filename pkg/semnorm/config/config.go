// Package config loads engine configuration and wires the components it
// describes.
package config

import (
	"errors"
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/cognicore/semnorm/pkg/semnorm/classify"
)

// Config holds all configuration for the engine.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values.
// Secrets (API keys) must only come from environment variables.
type Config struct {
	Catalog    CatalogConfig    `yaml:"catalog"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Store      StoreConfig      `yaml:"store"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Log        LogConfig        `yaml:"log"`
}

// CatalogConfig locates the concept catalog. An empty path selects the
// built-in education catalog.
type CatalogConfig struct {
	Path string `yaml:"path" env:"SEMNORM_CATALOG_PATH" env-default:""`
}

// EmbeddingConfig selects the embedding model. Provider is "hash" (local,
// deterministic) or "openai". CacheSize bounds the in-process embedding
// cache; 0 disables it.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" env:"SEMNORM_EMBEDDING_PROVIDER" env-default:"hash"`
	BaseURL    string `yaml:"base_url" env:"SEMNORM_EMBEDDING_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model      string `yaml:"model" env:"SEMNORM_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	Dimensions int    `yaml:"dimensions" env:"SEMNORM_EMBEDDING_DIMENSIONS" env-default:"384"`
	BatchSize  int    `yaml:"batch_size" env:"SEMNORM_EMBEDDING_BATCH_SIZE" env-default:"64"`
	CacheSize  int    `yaml:"cache_size" env:"SEMNORM_EMBEDDING_CACHE_SIZE" env-default:"4096"`
	MaxRetries uint64 `yaml:"max_retries" env:"SEMNORM_EMBEDDING_MAX_RETRIES" env-default:"3"`
	APIKey     string `yaml:"-" env:"SEMNORM_EMBEDDING_API_KEY"` // Secret - not in YAML
}

// StoreConfig selects the dimension store: "memory" or "sqlite".
type StoreConfig struct {
	Driver string `yaml:"driver" env:"SEMNORM_STORE_DRIVER" env-default:"memory"`
	Path   string `yaml:"path" env:"SEMNORM_STORE_PATH" env-default:""`
}

// ClassifierConfig tunes table classification. MinConfidence has no
// env-default tag: its default is set before the file is read, so an
// explicit zero reaches Validate instead of being replaced.
type ClassifierConfig struct {
	Aggregation   string  `yaml:"aggregation" env:"SEMNORM_CLASSIFIER_AGGREGATION" env-default:"mean"`
	Temperature   float64 `yaml:"temperature" env:"SEMNORM_CLASSIFIER_TEMPERATURE" env-default:"0.1"`
	MinConfidence float64 `yaml:"min_confidence" env:"SEMNORM_CLASSIFIER_MIN_CONFIDENCE"`
}

// ResolverConfig tunes entity resolution. FirstNamesPath layers a first-name
// YAML over the built-in lists.
type ResolverConfig struct {
	FirstNamesPath string `yaml:"first_names_path" env:"SEMNORM_FIRST_NAMES_PATH" env-default:""`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" env:"SEMNORM_LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"SEMNORM_LOG_DEVELOPMENT" env-default:"false"`
}

const defaultMinConfidence = 0.4

// Load reads configuration from path with environment variable overrides.
// An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{Classifier: ClassifierConfig{MinConfidence: defaultMinConfidence}}
	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	switch c.Embedding.Provider {
	case "hash":
		if c.Embedding.Dimensions <= 0 {
			errs = append(errs, errors.New("embedding.dimensions must be positive"))
		}
	case "openai":
		if c.Embedding.Model == "" {
			errs = append(errs, errors.New("embedding.model is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider))
	}
	if c.Embedding.CacheSize < 0 {
		errs = append(errs, errors.New("embedding.cache_size must not be negative"))
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if !classify.Aggregation(c.Classifier.Aggregation).Valid() {
		errs = append(errs, fmt.Errorf("unknown classifier.aggregation %q", c.Classifier.Aggregation))
	}
	if c.Classifier.MinConfidence <= 0 || c.Classifier.MinConfidence > 1 {
		errs = append(errs, errors.New("classifier.min_confidence must be within (0,1]"))
	}
	return errors.Join(errs...)
}
