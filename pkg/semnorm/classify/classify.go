// Package classify decides which canonical table type a dataset represents.
package classify

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cognicore/semnorm/pkg/semnorm/catalog"
	"github.com/cognicore/semnorm/pkg/semnorm/dataset"
	"github.com/cognicore/semnorm/pkg/semnorm/embed"
	"github.com/cognicore/semnorm/pkg/semnorm/vecmath"
)

// Unclassified is returned when no table type is confident enough. Downstream
// it routes the dataset to free-form handling instead of a fact table.
const Unclassified = "FREE_FORM"

// Aggregation folds the (column, anchor) similarities of one table type into
// a single score.
type Aggregation string

const (
	AggregateMean Aggregation = "mean"
	AggregateMax  Aggregation = "max"
)

// Valid reports whether a is a known aggregation.
func (a Aggregation) Valid() bool { return a == AggregateMean || a == AggregateMax }

const (
	defaultTemperature   = 0.1
	defaultMinConfidence = 0.4
	topContributions     = 3
)

// Options tune the classifier. Zero values select the defaults.
type Options struct {
	Aggregation   Aggregation // default mean
	Temperature   float64     // softmax temperature, default 0.1
	MinConfidence float64     // below this the result is Unclassified; zero selects 0.4
	Logger        *zap.Logger
}

// Contribution is one (column, anchor) pair that supported the decision.
type Contribution struct {
	Header     string  `json:"header"`
	Anchor     string  `json:"anchor"`
	Similarity float64 `json:"similarity"`
}

// Result is the outcome of one classification.
type Result struct {
	TableType     string             `json:"table_type"`
	Confidence    float64            `json:"confidence"`
	PerTypeScores map[string]float64 `json:"per_type_scores"`

	// TopType is the arg-max before the low-confidence override.
	TopType       string             `json:"top_type"`
	RawScores     map[string]float64 `json:"raw_scores"`
	Aggregation   Aggregation        `json:"aggregation"`
	Contributions []Contribution     `json:"contributions"`
}

// Classified reports whether a real table type was selected.
func (r Result) Classified() bool { return r.TableType != Unclassified }

// Classifier scores datasets against a catalog's table type anchors.
// It holds no per-call state and is safe for concurrent use.
type Classifier struct {
	provider embed.Provider
	opts     Options
	logger   *zap.Logger
}

// New creates a Classifier.
func New(provider embed.Provider, opts Options) (*Classifier, error) {
	if opts.Aggregation == "" {
		opts.Aggregation = AggregateMean
	}
	if !opts.Aggregation.Valid() {
		return nil, fmt.Errorf("classify: unknown aggregation %q", opts.Aggregation)
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}
	switch {
	case opts.MinConfidence == 0:
		opts.MinConfidence = defaultMinConfidence
	case opts.MinConfidence < 0 || opts.MinConfidence > 1:
		return nil, fmt.Errorf("classify: min confidence %v outside (0,1]", opts.MinConfidence)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{provider: provider, opts: opts, logger: logger.Named("classify")}, nil
}

// Classify assigns a table type and calibrated confidence to ds.
func (c *Classifier) Classify(ctx context.Context, ds dataset.Dataset, cat *catalog.Catalog) (Result, error) {
	return c.ClassifyFeatures(ctx, ds.Features(), cat)
}

// ClassifyFeatures classifies from precomputed column features.
func (c *Classifier) ClassifyFeatures(ctx context.Context, features []dataset.ColumnFeature, cat *catalog.Catalog) (Result, error) {
	types := cat.TableTypes()
	result := Result{
		PerTypeScores: make(map[string]float64, len(types)),
		RawScores:     make(map[string]float64, len(types)),
		Aggregation:   c.opts.Aggregation,
	}

	var colVecs []embed.Vector
	if len(features) > 0 {
		var err error
		colVecs, err = c.provider.Embed(ctx, dataset.Snippets(features))
		if err != nil {
			return Result{}, fmt.Errorf("classify: embed columns: %w", err)
		}
		if len(colVecs) != len(features) {
			return Result{}, fmt.Errorf("classify: got %d vectors for %d columns", len(colVecs), len(features))
		}
	}

	raw := make([]float64, len(types))
	contributions := make([][]Contribution, len(types))
	for ti, tt := range types {
		sims := make([]float64, 0, len(colVecs)*len(tt.AnchorEmbeddings))
		for ci, cv := range colVecs {
			for ai, av := range tt.AnchorEmbeddings {
				sim := vecmath.Cosine(cv, av)
				sims = append(sims, sim)
				contributions[ti] = append(contributions[ti], Contribution{
					Header:     features[ci].Header,
					Anchor:     tt.Anchors[ai],
					Similarity: sim,
				})
			}
		}
		raw[ti] = c.aggregate(sims)
		result.RawScores[tt.Name] = raw[ti]
	}

	probs := vecmath.Softmax(raw, c.opts.Temperature)
	best := -1
	for ti, tt := range types {
		result.PerTypeScores[tt.Name] = probs[ti]
		if best < 0 || probs[ti] > probs[best] || (probs[ti] == probs[best] && tt.Name < types[best].Name) {
			best = ti
		}
	}
	if best >= 0 {
		result.TopType = types[best].Name
		result.Confidence = probs[best]
		result.TableType = result.TopType
	}

	if len(features) == 0 {
		result.Confidence = 0
		result.TableType = Unclassified
	} else if result.Confidence < c.opts.MinConfidence {
		result.TableType = Unclassified
	}

	if best >= 0 {
		result.Contributions = topN(contributions[best], topContributions)
	}

	c.logger.Info("table classified",
		zap.String("table_type", result.TableType),
		zap.String("top_type", result.TopType),
		zap.Float64("confidence", result.Confidence),
		zap.String("aggregation", string(result.Aggregation)),
		zap.Any("per_type_scores", result.PerTypeScores),
		zap.Any("contributions", result.Contributions))

	return result, nil
}

func (c *Classifier) aggregate(sims []float64) float64 {
	if c.opts.Aggregation == AggregateMax {
		return vecmath.Max(sims)
	}
	return vecmath.Mean(sims)
}

// topN keeps the strongest contributions toward the selected type.
func topN(own []Contribution, n int) []Contribution {
	sort.SliceStable(own, func(i, j int) bool {
		if own[i].Similarity != own[j].Similarity {
			return own[i].Similarity > own[j].Similarity
		}
		if own[i].Header != own[j].Header {
			return own[i].Header < own[j].Header
		}
		return own[i].Anchor < own[j].Anchor
	})
	if len(own) > n {
		own = own[:n]
	}
	return own
}
