// Package mapping assigns source columns to catalog concepts.
package mapping

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/cognicore/semnorm/pkg/semnorm/catalog"
	"github.com/cognicore/semnorm/pkg/semnorm/dataset"
	"github.com/cognicore/semnorm/pkg/semnorm/embed"
	"github.com/cognicore/semnorm/pkg/semnorm/vecmath"
)

// Status is the confidence band of a column mapping.
type Status string

const (
	StatusAuto          Status = "AUTO"
	StatusLowConfidence Status = "LOW_CONFIDENCE"
	StatusUnknown       Status = "UNKNOWN"
)

const (
	// AutoThreshold is the lowest adjusted score accepted without review.
	AutoThreshold = 0.75
	// LowConfidenceThreshold is the lowest adjusted score that still names a concept.
	LowConfidenceThreshold = 0.55

	maxCandidates = 3
	// scores are kept to this precision so threshold comparisons are exact
	scoreScale = 1e9
)

// Type agreement adjustments.
const (
	BonusExact   = 0.10
	BonusString  = 0.05
	PenaltyClash = -0.15
)

// Candidate is one ranked concept for a column.
type Candidate struct {
	ConceptKey string  `json:"concept_key"`
	Score      float64 `json:"score"`
	RawScore   float64 `json:"raw_score"`
	Adjustment float64 `json:"adjustment"`
}

// Mapping is the outcome for one source column. ConceptKey is empty when
// Status is StatusUnknown.
type Mapping struct {
	SourceColumn  string        `json:"source_column"`
	ConceptKey    string        `json:"concept_key,omitempty"`
	Score         float64       `json:"score"`
	Status        Status        `json:"status"`
	Candidates    []Candidate   `json:"candidates"`
	InferredDType dataset.DType `json:"inferred_dtype"`
}

// Mapped reports whether the column was assigned a concept.
func (m Mapping) Mapped() bool { return m.Status != StatusUnknown }

// Options configure a Mapper.
type Options struct {
	Logger *zap.Logger
}

// Mapper scores columns against concept embeddings. Safe for concurrent use.
type Mapper struct {
	provider embed.Provider
	logger   *zap.Logger
}

// New creates a Mapper.
func New(provider embed.Provider, opts Options) *Mapper {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{provider: provider, logger: logger.Named("mapping")}
}

// MapColumns returns one Mapping per column of ds, in header order. The
// table type is only recorded in logs.
func (m *Mapper) MapColumns(ctx context.Context, ds dataset.Dataset, tableType string, cat *catalog.Catalog) ([]Mapping, error) {
	return m.MapFeatures(ctx, ds.Features(), tableType, cat)
}

// MapFeatures maps precomputed column features.
func (m *Mapper) MapFeatures(ctx context.Context, features []dataset.ColumnFeature, tableType string, cat *catalog.Catalog) ([]Mapping, error) {
	if len(features) == 0 {
		return []Mapping{}, nil
	}
	vecs, err := m.provider.Embed(ctx, dataset.Snippets(features))
	if err != nil {
		return nil, fmt.Errorf("mapping: embed columns: %w", err)
	}
	if len(vecs) != len(features) {
		return nil, fmt.Errorf("mapping: got %d vectors for %d columns", len(vecs), len(features))
	}

	concepts := cat.Concepts()
	out := make([]Mapping, len(features))
	for i, f := range features {
		out[i] = mapColumn(f, vecs[i], concepts)
		m.logMapping(tableType, out[i])
	}
	return out, nil
}

func mapColumn(f dataset.ColumnFeature, vec embed.Vector, concepts []catalog.Concept) Mapping {
	ranked := make([]Candidate, len(concepts))
	for i, c := range concepts {
		raw := vecmath.Cosine(vec, c.Embedding)
		adj := TypeAdjustment(f.InferredDType, c.ExpectedType)
		ranked[i] = Candidate{
			ConceptKey: c.Key,
			RawScore:   raw,
			Adjustment: adj,
			Score:      clamp(raw + adj),
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ConceptKey < ranked[j].ConceptKey
	})
	if len(ranked) > maxCandidates {
		ranked = ranked[:maxCandidates]
	}

	mapping := Mapping{
		SourceColumn:  f.Header,
		Status:        StatusUnknown,
		Candidates:    ranked,
		InferredDType: f.InferredDType,
	}
	if len(ranked) == 0 {
		return mapping
	}
	mapping.Score = ranked[0].Score
	mapping.Status = StatusFor(mapping.Score)
	if mapping.Status != StatusUnknown {
		mapping.ConceptKey = ranked[0].ConceptKey
	}
	return mapping
}

// StatusFor bands an adjusted score.
func StatusFor(score float64) Status {
	switch {
	case score >= AutoThreshold:
		return StatusAuto
	case score >= LowConfidenceThreshold:
		return StatusLowConfidence
	default:
		return StatusUnknown
	}
}

// TypeAdjustment is the additive score change for a column dtype against a
// concept's expected type. Every known dtype that does not agree with the
// expected type is penalised; columns of unknown dtype are left alone.
func TypeAdjustment(dtype dataset.DType, expected catalog.ExpectedType) float64 {
	switch dtype {
	case dataset.DTypeNumeric:
		if expected == catalog.TypeNumber {
			return BonusExact
		}
	case dataset.DTypeDatetime:
		if expected == catalog.TypeDate {
			return BonusExact
		}
	case dataset.DTypeString:
		if expected == catalog.TypeString || expected == catalog.TypeCategorical {
			return BonusString
		}
	default:
		return 0
	}
	return PenaltyClash
}

// Adjust applies TypeAdjustment to a raw similarity and clamps to [0,1].
func Adjust(raw float64, dtype dataset.DType, expected catalog.ExpectedType) float64 {
	return clamp(raw + TypeAdjustment(dtype, expected))
}

func clamp(score float64) float64 {
	score = math.Round(score*scoreScale) / scoreScale
	return math.Max(0, math.Min(1, score))
}

// Collisions returns concept keys claimed by more than one mapped column,
// with the claiming columns in input order.
func Collisions(mappings []Mapping) map[string][]string {
	claims := make(map[string][]string)
	for _, m := range mappings {
		if m.ConceptKey == "" {
			continue
		}
		claims[m.ConceptKey] = append(claims[m.ConceptKey], m.SourceColumn)
	}
	for key, cols := range claims {
		if len(cols) < 2 {
			delete(claims, key)
		}
	}
	return claims
}

func (m *Mapper) logMapping(tableType string, mapping Mapping) {
	m.logger.Info("column mapped",
		zap.String("table_type", tableType),
		zap.String("column", mapping.SourceColumn),
		zap.String("concept", mapping.ConceptKey),
		zap.String("status", string(mapping.Status)),
		zap.Float64("score", mapping.Score),
		zap.String("dtype", string(mapping.InferredDType)),
		zap.Any("candidates", mapping.Candidates))
}
