// Package embedtest provides deterministic providers for tests.
package embedtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cognicore/semnorm/pkg/semnorm/embed"
	"github.com/cognicore/semnorm/pkg/semnorm/vecmath"
)

// Bias is the weight of the extra dimension every KeywordProvider vector
// carries, so texts without keyword hits are not zero vectors.
const Bias = 0.1

// KeywordProvider maps each text onto one axis per keyword group. A text
// scores one unit on an axis per keyword it contains (case-insensitive
// substring match).
type KeywordProvider struct {
	Axes [][]string
}

// NewKeywordProvider creates a provider with one axis per group.
func NewKeywordProvider(axes ...[]string) *KeywordProvider {
	return &KeywordProvider{Axes: axes}
}

// Embed implements embed.Provider.
func (p *KeywordProvider) Embed(ctx context.Context, texts []string) ([]embed.Vector, error) {
	out := make([]embed.Vector, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		v := make(embed.Vector, len(p.Axes)+1)
		for a, keywords := range p.Axes {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					v[a]++
				}
			}
		}
		v[len(p.Axes)] = Bias
		out[i] = vecmath.Normalize(v)
	}
	return out, nil
}

// Dimensions implements embed.Provider.
func (p *KeywordProvider) Dimensions() int { return len(p.Axes) + 1 }

// Name implements embed.Provider.
func (p *KeywordProvider) Name() string { return "keyword-test" }

// FixedProvider returns preset vectors per exact text and a zero-hit vector
// otherwise.
type FixedProvider struct {
	Vectors map[string]embed.Vector
	Dims    int
}

// Embed implements embed.Provider.
func (p *FixedProvider) Embed(ctx context.Context, texts []string) ([]embed.Vector, error) {
	out := make([]embed.Vector, len(texts))
	for i, t := range texts {
		if v, ok := p.Vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = make(embed.Vector, p.Dims)
	}
	return out, nil
}

// Dimensions implements embed.Provider.
func (p *FixedProvider) Dimensions() int { return p.Dims }

// Name implements embed.Provider.
func (p *FixedProvider) Name() string { return "fixed-test" }

// CountingProvider records every call made to the wrapped provider.
type CountingProvider struct {
	Inner embed.Provider

	mu    sync.Mutex
	calls [][]string
}

// Embed implements embed.Provider.
func (p *CountingProvider) Embed(ctx context.Context, texts []string) ([]embed.Vector, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]string(nil), texts...))
	p.mu.Unlock()
	return p.Inner.Embed(ctx, texts)
}

// Dimensions implements embed.Provider.
func (p *CountingProvider) Dimensions() int { return p.Inner.Dimensions() }

// Name implements embed.Provider.
func (p *CountingProvider) Name() string { return p.Inner.Name() }

// Calls returns the batches seen so far.
func (p *CountingProvider) Calls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.calls...)
}

// Reset forgets recorded calls.
func (p *CountingProvider) Reset() {
	p.mu.Lock()
	p.calls = nil
	p.mu.Unlock()
}

// ErrFailing is returned by FailingProvider.
var ErrFailing = errors.New("embedtest: provider failure")

// FailingProvider always fails.
type FailingProvider struct{ Dims int }

// Embed implements embed.Provider.
func (p FailingProvider) Embed(context.Context, []string) ([]embed.Vector, error) {
	return nil, ErrFailing
}

// Dimensions implements embed.Provider.
func (p FailingProvider) Dimensions() int { return p.Dims }

// Name implements embed.Provider.
func (p FailingProvider) Name() string { return "failing-test" }
