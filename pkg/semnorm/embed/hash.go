package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/cognicore/semnorm/pkg/semnorm/vecmath"
)

const (
	defaultHashDimensions = 384
	trigramWeight         = 0.5
)

var defaultStopwords = []string{
	"a", "an", "and", "the", "of", "for", "in", "on", "by", "to", "with", "or",
}

// HashProvider is a deterministic local model based on signed feature hashing
// of word tokens and character trigrams. Texts sharing words or word fragments
// land close together, which is enough for headers, names and anchor phrases
// when no neural model is configured.
type HashProvider struct {
	dims int
	tok  *tokenizer
}

// NewHashProvider creates a hashing provider with the given dimensionality
// (0 selects the default).
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &HashProvider{dims: dims, tok: newTokenizer(defaultStopwords)}
}

// Embed implements Provider.
func (p *HashProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	out := make([]Vector, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embedOne(text)
	}
	return out, nil
}

// Dimensions implements Provider.
func (p *HashProvider) Dimensions() int { return p.dims }

// Name implements Provider.
func (p *HashProvider) Name() string { return fmt.Sprintf("hash-v2-%d", p.dims) }

func (p *HashProvider) embedOne(text string) Vector {
	v := make(Vector, p.dims)
	for _, tok := range p.tok.tokenize(text) {
		p.add(v, "w:"+tok, 1)
		padded := []rune("#" + tok + "#")
		for i := 0; i+3 <= len(padded); i++ {
			p.add(v, "t:"+string(padded[i:i+3]), trigramWeight)
		}
	}
	return vecmath.Normalize(v)
}

func (p *HashProvider) add(v Vector, feature string, weight float32) {
	sum := xxhash.Sum64String(strings.ToLower(feature))
	idx := int(sum % uint64(p.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}
