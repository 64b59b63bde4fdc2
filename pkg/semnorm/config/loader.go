package config

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cognicore/semnorm/pkg/semnorm/catalog"
	"github.com/cognicore/semnorm/pkg/semnorm/classify"
	"github.com/cognicore/semnorm/pkg/semnorm/embed"
	"github.com/cognicore/semnorm/pkg/semnorm/entity"
	"github.com/cognicore/semnorm/pkg/semnorm/metrics"
	"github.com/cognicore/semnorm/pkg/semnorm/store"
	"github.com/cognicore/semnorm/pkg/semnorm/store/memstore"
	"github.com/cognicore/semnorm/pkg/semnorm/store/sqlite"
)

// Loader turns a Config into wired components. Every failure here is a
// startup failure.
type Loader struct {
	Config *Config
	Logger *zap.Logger
	// Registerer receives the engine metrics; nil disables them.
	Registerer prometheus.Registerer
}

// Components holds everything the engine needs.
type Components struct {
	Logger     *zap.Logger
	Provider   embed.Provider
	Catalog    *catalog.Catalog
	Store      store.DimensionStore
	FirstNames *entity.FirstNames
	Metrics    *metrics.Metrics
	Classifier classify.Options
}

// Close releases the store.
func (c *Components) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// Load builds the components in dependency order.
func (l *Loader) Load(ctx context.Context) (*Components, error) {
	cfg := l.Config
	if cfg == nil {
		return nil, fmt.Errorf("loader: nil config")
	}
	comp := &Components{Logger: l.Logger}
	if comp.Logger == nil {
		comp.Logger = zap.NewNop()
	}

	if l.Registerer != nil {
		m, err := metrics.New(l.Registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		comp.Metrics = m
	}

	provider, err := l.provider(ctx, comp)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	comp.Provider = provider

	// Load catalog
	if cfg.Catalog.Path != "" {
		comp.Catalog, err = catalog.LoadFile(ctx, cfg.Catalog.Path, provider)
	} else {
		comp.Catalog, err = catalog.Load(ctx, catalog.Default(), provider)
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	// Load first names
	if cfg.Resolver.FirstNamesPath != "" {
		comp.FirstNames, err = entity.LoadFirstNamesYAML(cfg.Resolver.FirstNamesPath)
		if err != nil {
			return nil, fmt.Errorf("load first names: %w", err)
		}
	} else {
		comp.FirstNames = entity.DefaultFirstNames()
	}

	// Open store
	switch cfg.Store.Driver {
	case "sqlite":
		comp.Store, err = sqlite.Open(ctx, cfg.Store.Path)
	default:
		comp.Store, err = memstore.New()
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	comp.Classifier = classify.Options{
		Aggregation:   classify.Aggregation(cfg.Classifier.Aggregation),
		Temperature:   cfg.Classifier.Temperature,
		MinConfidence: cfg.Classifier.MinConfidence,
		Logger:        comp.Logger,
	}

	comp.Logger.Info("components loaded",
		zap.String("provider", provider.Name()),
		zap.Int("dimensions", provider.Dimensions()),
		zap.String("catalog_version", comp.Catalog.Version()),
		zap.Int("concepts", len(comp.Catalog.Concepts())),
		zap.String("store", cfg.Store.Driver))
	return comp, nil
}

func (l *Loader) provider(ctx context.Context, comp *Components) (embed.Provider, error) {
	ec := l.Config.Embedding
	var p embed.Provider
	switch ec.Provider {
	case "openai":
		op, err := embed.NewOpenAIProvider(ctx, embed.OpenAIConfig{
			BaseURL:    ec.BaseURL,
			APIKey:     ec.APIKey,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			BatchSize:  ec.BatchSize,
			MaxRetries: ec.MaxRetries,
		}, comp.Logger)
		if err != nil {
			return nil, err
		}
		p = op
	default:
		p = embed.NewHashProvider(ec.Dimensions)
	}
	p = comp.Metrics.InstrumentProvider(p)
	if ec.CacheSize > 0 {
		cached, err := embed.NewCachedProvider(p, ec.CacheSize)
		if err != nil {
			return nil, err
		}
		p = cached
	}
	return p, nil
}
