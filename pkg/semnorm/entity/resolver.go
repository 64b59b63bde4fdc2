package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cognicore/semnorm/pkg/semnorm/embed"
	"github.com/cognicore/semnorm/pkg/semnorm/internalerr"
	"github.com/cognicore/semnorm/pkg/semnorm/vecmath"
)

// Thresholds are the lower bounds of each confidence band.
type Thresholds struct {
	FuzzyHigh       float64
	FuzzyMedium     float64
	EmbeddingHigh   float64
	EmbeddingMedium float64
}

// DefaultThresholds returns the standard bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FuzzyHigh:       0.85,
		FuzzyMedium:     0.70,
		EmbeddingHigh:   0.75,
		EmbeddingMedium: 0.65,
	}
}

func (t Thresholds) orDefault() Thresholds {
	def := DefaultThresholds()
	if t.FuzzyHigh == 0 {
		t.FuzzyHigh = def.FuzzyHigh
	}
	if t.FuzzyMedium == 0 {
		t.FuzzyMedium = def.FuzzyMedium
	}
	if t.EmbeddingHigh == 0 {
		t.EmbeddingHigh = def.EmbeddingHigh
	}
	if t.EmbeddingMedium == 0 {
		t.EmbeddingMedium = def.EmbeddingMedium
	}
	return t
}

// initialExpansionScore is reported for matches found through a first-name
// expansion.
const initialExpansionScore = 0.80

// Query is one resolution request as seen by strategies.
type Query struct {
	Value      string
	Normalized string
	Type       Type
	IsID       bool

	// vector holds the embedding of Value once a strategy computed it.
	vector embed.Vector
}

// Vector returns the embedding of the value, computing it on first use.
func (q *Query) Vector(ctx context.Context, provider embed.Provider) (embed.Vector, error) {
	if q.vector != nil {
		return q.vector, nil
	}
	vecs, err := provider.Embed(ctx, []string{q.Value})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("got %d vectors for 1 text", len(vecs))
	}
	q.vector = vecs[0]
	return q.vector, nil
}

// Strategy is one step of the resolution cascade. It reports ok=false to
// pass the query to the next step.
type Strategy interface {
	Name() string
	Match(ctx context.Context, q *Query, c *Cache) (m Match, ok bool, err error)
}

// Options configure a Resolver.
type Options struct {
	Thresholds Thresholds
	FirstNames *FirstNames
	// Strategies replaces the default cascade. A NEW entity is still
	// produced when none of them matches.
	Strategies []Strategy
	Logger     *zap.Logger
}

// Resolver runs the cascade. It holds no per-run state; the cache does.
type Resolver struct {
	strategies []Strategy
	fallback   Strategy
	logger     *zap.Logger
}

// NewResolver creates a Resolver with the default cascade unless opts
// supplies one.
func NewResolver(provider embed.Provider, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	th := opts.Thresholds.orDefault()
	names := opts.FirstNames
	if names == nil {
		names = DefaultFirstNames()
	}
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies(provider, names, th)
	}
	return &Resolver{
		strategies: strategies,
		fallback:   NewEntity{Provider: provider},
		logger:     logger.Named("resolver"),
	}
}

// DefaultStrategies is the standard cascade: ID_EXACT, NAME_EXACT, initial
// expansion, FUZZY, EMBEDDING, NEW.
func DefaultStrategies(provider embed.Provider, names *FirstNames, th Thresholds) []Strategy {
	th = th.orDefault()
	return []Strategy{
		IDExact{},
		NameExact{},
		InitialExpansion{Names: names},
		Fuzzy{High: th.FuzzyHigh, Medium: th.FuzzyMedium},
		Embedding{Provider: provider, High: th.EmbeddingHigh, Medium: th.EmbeddingMedium},
		NewEntity{Provider: provider},
	}
}

// Resolve maps a raw value to an entity. A miss is never an error: it comes
// back as a NEW match carrying the record to persist. Empty values and
// unknown types fail with ErrInvalidInput.
func (r *Resolver) Resolve(ctx context.Context, value string, t Type, c *Cache, isID bool) (Match, error) {
	if !t.Valid() {
		return Match{}, fmt.Errorf("%w: unknown entity type %q", internalerr.ErrInvalidInput, t)
	}
	if strings.TrimSpace(value) == "" {
		return Match{}, fmt.Errorf("%w: empty %s value", internalerr.ErrInvalidInput, t)
	}
	q := &Query{Value: value, Normalized: Normalize(value), Type: t, IsID: isID}

	for _, s := range r.strategies {
		m, ok, err := s.Match(ctx, q, c)
		if err != nil {
			return Match{}, fmt.Errorf("resolve %s %q: %s: %w", t, value, s.Name(), err)
		}
		if ok {
			r.log(m)
			return m, nil
		}
	}
	m, _, err := r.fallback.Match(ctx, q, c)
	if err != nil {
		return Match{}, fmt.Errorf("resolve %s %q: %w", t, value, err)
	}
	r.log(m)
	return m, nil
}

func (r *Resolver) log(m Match) {
	fields := []zap.Field{
		zap.String("entity_type", string(m.EntityType)),
		zap.String("value", m.SourceValue),
		zap.String("entity_id", m.EntityID),
		zap.String("method", string(m.MatchMethod)),
		zap.String("confidence", string(m.Confidence)),
		zap.Float64("score", m.SimilarityScore),
	}
	if m.IsNew() {
		r.logger.Info("new entity", fields...)
		return
	}
	r.logger.Debug("entity resolved", fields...)
}

func matchFor(q *Query, r Record, score float64, method Method, conf Confidence) Match {
	return Match{
		EntityID:        r.ID,
		EntityName:      r.CanonicalName,
		EntityType:      q.Type,
		SimilarityScore: score,
		MatchMethod:     method,
		Confidence:      conf,
		SourceValue:     q.Value,
	}
}

// IDExact matches source ids verbatim.
type IDExact struct{}

func (IDExact) Name() string { return string(MethodIDExact) }

func (IDExact) Match(_ context.Context, q *Query, c *Cache) (Match, bool, error) {
	if !q.IsID {
		return Match{}, false, nil
	}
	r, ok := c.LookupSourceID(q.Type, q.Value)
	if !ok {
		r, ok = c.LookupSourceID(q.Type, strings.TrimSpace(q.Value))
	}
	if !ok {
		return Match{}, false, nil
	}
	return matchFor(q, r, 1, MethodIDExact, ConfidenceHigh), true, nil
}

// NameExact matches the normalised value against normalised names.
type NameExact struct{}

func (NameExact) Name() string { return string(MethodNameExact) }

func (NameExact) Match(_ context.Context, q *Query, c *Cache) (Match, bool, error) {
	r, ok := c.LookupName(q.Type, q.Normalized)
	if !ok {
		return Match{}, false, nil
	}
	return matchFor(q, r, 1, MethodNameExact, ConfidenceHigh), true, nil
}

// InitialExpansion retries NAME_EXACT with first names for a leading initial.
type InitialExpansion struct {
	Names *FirstNames
}

func (InitialExpansion) Name() string { return "INITIAL_EXPANSION" }

func (s InitialExpansion) Match(_ context.Context, q *Query, c *Cache) (Match, bool, error) {
	if s.Names == nil {
		return Match{}, false, nil
	}
	for _, candidate := range s.Names.Expand(q.Normalized, c.RegionID()) {
		if r, ok := c.LookupName(q.Type, candidate); ok {
			m := matchFor(q, r, initialExpansionScore, MethodNameExact, ConfidenceMedium)
			m.MatchedVariant = candidate
			return m, true, nil
		}
	}
	return Match{}, false, nil
}

// Fuzzy compares edit-distance similarity against every cached name.
type Fuzzy struct {
	High   float64
	Medium float64
}

func (Fuzzy) Name() string { return string(MethodFuzzy) }

func (s Fuzzy) Match(_ context.Context, q *Query, c *Cache) (Match, bool, error) {
	best := -1.0
	var bestEntry NameEntry
	// names arrive sorted, so strict > keeps the first name on ties
	for _, e := range c.Names(q.Type) {
		if sim := Similarity(q.Normalized, e.Name); sim > best {
			best, bestEntry = sim, e
		}
	}
	if best < s.Medium {
		return Match{}, false, nil
	}
	conf := ConfidenceMedium
	if best >= s.High {
		conf = ConfidenceHigh
	}
	r, ok := c.Get(bestEntry.EntityID)
	if !ok {
		return Match{}, false, nil
	}
	m := matchFor(q, r, best, MethodFuzzy, conf)
	m.MatchedVariant = bestEntry.Name
	return m, true, nil
}

// Embedding compares the value's embedding with cached name embeddings.
type Embedding struct {
	Provider embed.Provider
	High     float64
	Medium   float64
}

func (Embedding) Name() string { return string(MethodEmbedding) }

func (s Embedding) Match(ctx context.Context, q *Query, c *Cache) (Match, bool, error) {
	candidates := c.Embedded(q.Type)
	if len(candidates) == 0 || s.Provider == nil {
		return Match{}, false, nil
	}
	vec, err := q.Vector(ctx, s.Provider)
	if err != nil {
		return Match{}, false, err
	}
	best := -1.0
	var bestRec Record
	for _, r := range candidates {
		if sim := vecmath.Cosine(vec, r.Embedding); sim > best {
			best, bestRec = sim, r
		}
	}
	if best < s.Medium {
		return Match{}, false, nil
	}
	conf := ConfidenceMedium
	if best >= s.High {
		conf = ConfidenceHigh
	}
	m := matchFor(q, bestRec, best, MethodEmbedding, conf)
	m.MatchedVariant = bestRec.NormalizedName
	return m, true, nil
}

// NewEntity always matches, synthesising a record the caller must persist.
type NewEntity struct {
	Provider embed.Provider
}

func (NewEntity) Name() string { return string(MethodNew) }

func (s NewEntity) Match(ctx context.Context, q *Query, c *Cache) (Match, bool, error) {
	id := uuid.NewString()
	for c.Has(id) {
		id = uuid.NewString()
	}
	rec := Record{
		ID:             id,
		Type:           q.Type,
		CanonicalName:  q.Value,
		NormalizedName: q.Normalized,
		Provenance:     "resolver:new run=" + c.RunID(),
	}
	if q.Type.RegionScoped() {
		rec.RegionID = c.RegionID()
	}
	if q.IsID {
		rec.SourceIDs = []string{strings.TrimSpace(q.Value)}
	}
	if s.Provider != nil {
		vec, err := q.Vector(ctx, s.Provider)
		if err != nil {
			return Match{}, false, err
		}
		rec.Embedding = vec
	}
	m := matchFor(q, rec, 0, MethodNew, ConfidenceLow)
	m.NewRecord = &rec
	return m, true, nil
}
