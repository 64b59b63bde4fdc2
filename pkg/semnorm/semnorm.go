// Package semnorm is the semantic normalisation engine: it classifies
// tabular datasets, maps their columns to catalog concepts and canonicalises
// entity references against a dimension store.
package semnorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/semnorm/pkg/semnorm/catalog"
	"github.com/cognicore/semnorm/pkg/semnorm/classify"
	"github.com/cognicore/semnorm/pkg/semnorm/dataset"
	"github.com/cognicore/semnorm/pkg/semnorm/embed"
	"github.com/cognicore/semnorm/pkg/semnorm/entity"
	"github.com/cognicore/semnorm/pkg/semnorm/mapping"
	"github.com/cognicore/semnorm/pkg/semnorm/metrics"
	"github.com/cognicore/semnorm/pkg/semnorm/store"
	"github.com/cognicore/semnorm/pkg/semnorm/store/memstore"
)

const defaultConcurrency = 4

// Engine is the normalisation facade. Everything it shares across calls is
// read-only after New, so one Engine serves concurrent requests.
type Engine struct {
	provider   embed.Provider
	catalog    *catalog.Catalog
	store      store.DimensionStore
	classifier *classify.Classifier
	mapper     *mapping.Mapper
	resolver   *entity.Resolver
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Options configures an Engine.
type Options struct {
	Provider   embed.Provider
	Catalog    *catalog.Catalog
	Store      store.DimensionStore // defaults to an empty in-memory store
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Classifier classify.Options
	Resolver   entity.Options
}

// New creates an Engine with the given dependencies.
func New(opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, errors.New("semnorm: embedding provider is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("semnorm: catalog is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	st := opts.Store
	if st == nil {
		mem, err := memstore.New()
		if err != nil {
			return nil, err
		}
		st = mem
	}

	if opts.Classifier.Logger == nil {
		opts.Classifier.Logger = logger
	}
	classifier, err := classify.New(opts.Provider, opts.Classifier)
	if err != nil {
		return nil, err
	}
	if opts.Resolver.Logger == nil {
		opts.Resolver.Logger = logger
	}

	return &Engine{
		provider:   opts.Provider,
		catalog:    opts.Catalog,
		store:      st,
		classifier: classifier,
		mapper:     mapping.New(opts.Provider, mapping.Options{Logger: logger}),
		resolver:   entity.NewResolver(opts.Provider, opts.Resolver),
		metrics:    opts.Metrics,
		logger:     logger.Named("engine"),
	}, nil
}

// Close releases the dimension store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Catalog returns the engine's concept catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// TableResult is the outcome of normalising one dataset.
type TableResult struct {
	Classification classify.Result     `json:"classification"`
	Mappings       []mapping.Mapping   `json:"mappings"`
	Collisions     map[string][]string `json:"collisions,omitempty"`
}

// NormalizeTable classifies ds and maps its columns. Collisions lists the
// concepts claimed by more than one column; the caller arbitrates them.
func (e *Engine) NormalizeTable(ctx context.Context, ds dataset.Dataset) (TableResult, error) {
	features := ds.Features()

	cls, err := e.classifier.ClassifyFeatures(ctx, features, e.catalog)
	if err != nil {
		return TableResult{}, err
	}
	e.metrics.ObserveClassification(cls.TableType)

	mappings, err := e.mapper.MapFeatures(ctx, features, cls.TableType, e.catalog)
	if err != nil {
		return TableResult{}, err
	}
	for _, m := range mappings {
		e.metrics.ObserveMapping(string(m.Status))
	}

	res := TableResult{
		Classification: cls,
		Mappings:       mappings,
		Collisions:     mapping.Collisions(mappings),
	}
	if len(res.Collisions) > 0 {
		e.logger.Warn("columns share a concept", zap.Any("collisions", res.Collisions))
	}
	return res, nil
}

// NormalizeTables normalises independent datasets concurrently. Results
// keep the input order; the first error cancels the rest.
func (e *Engine) NormalizeTables(ctx context.Context, datasets []dataset.Dataset, concurrency int) ([]TableResult, error) {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	results := make([]TableResult, len(datasets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range datasets {
		i := i
		g.Go(func() error {
			res, err := e.NormalizeTable(ctx, datasets[i])
			if err != nil {
				return fmt.Errorf("dataset %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Run is one ingestion run for one region. It owns a fresh entity cache;
// runs never share caches.
type Run struct {
	engine *Engine
	cache  *entity.Cache

	// serialises resolutions so one run never creates the same entity twice
	mu sync.Mutex
}

// BeginRun snapshots the dimension store for regionID and builds the run's
// entity cache.
func (e *Engine) BeginRun(ctx context.Context, regionID string) (*Run, error) {
	snapshot, err := e.store.Snapshot(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("snapshot region %q: %w", regionID, err)
	}
	cache, err := entity.Build(ctx, regionID, snapshot, e.provider, entity.BuildOptions{Logger: e.logger})
	if err != nil {
		return nil, err
	}
	return &Run{engine: e, cache: cache}, nil
}

// ID is the run's ULID.
func (r *Run) ID() string { return r.cache.RunID() }

// Cache exposes the run's entity cache.
func (r *Run) Cache() *entity.Cache { return r.cache }

// Resolve canonicalises one value. NEW entities are persisted to the store
// and added to the run's cache before Resolve returns.
func (r *Run) Resolve(ctx context.Context, value string, t entity.Type, isID bool) (entity.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(ctx, value, t, isID)
}

func (r *Run) resolveLocked(ctx context.Context, value string, t entity.Type, isID bool) (entity.Match, error) {
	e := r.engine
	m, err := e.resolver.Resolve(ctx, value, t, r.cache, isID)
	if err != nil {
		return entity.Match{}, err
	}
	if m.IsNew() && m.NewRecord != nil {
		if err := e.store.InsertEntity(ctx, *m.NewRecord); err != nil {
			return entity.Match{}, fmt.Errorf("persist new %s %q: %w", t, value, err)
		}
		if err := r.cache.Add(*m.NewRecord); err != nil {
			return entity.Match{}, err
		}
	}
	e.metrics.ObserveResolution(string(t), string(m.MatchMethod))
	return m, nil
}

// ResolveAll resolves each distinct non-blank value once, in first-seen
// order.
func (r *Run) ResolveAll(ctx context.Context, values []string, t entity.Type, isID bool) ([]entity.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(values))
	out := make([]entity.Match, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" || seen[v] {
			continue
		}
		seen[v] = true
		m, err := r.resolveLocked(ctx, v, t, isID)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
