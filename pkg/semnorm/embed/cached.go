package embed

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider memoises vectors per text in front of another provider.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, Vector]
}

// NewCachedProvider wraps inner with an LRU of the given size.
func NewCachedProvider(inner Provider, size int) (*CachedProvider, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[string, Vector](size)
	if err != nil {
		return nil, fmt.Errorf("embed cache: %w", err)
	}
	return &CachedProvider{inner: inner, cache: c}, nil
}

// Embed implements Provider. Only texts missing from the cache reach the
// wrapped provider, in a single batch.
func (p *CachedProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	out := make([]Vector, len(texts))
	var missing []string
	pending := make(map[string][]int)
	for i, text := range texts {
		if v, ok := p.cache.Get(text); ok {
			out[i] = v
			continue
		}
		if _, seen := pending[text]; !seen {
			missing = append(missing, text)
		}
		pending[text] = append(pending[text], i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := p.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embed cache: provider returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for i, text := range missing {
		p.cache.Add(text, vecs[i])
		for _, idx := range pending[text] {
			out[idx] = vecs[i]
		}
	}
	return out, nil
}

// Dimensions implements Provider.
func (p *CachedProvider) Dimensions() int { return p.inner.Dimensions() }

// Name implements Provider.
func (p *CachedProvider) Name() string { return p.inner.Name() }

// Len reports how many texts are cached.
func (p *CachedProvider) Len() int { return p.cache.Len() }
