// Package catalog holds the versioned knowledge base of table types and
// canonical column concepts, with their embeddings computed once at load.
package catalog

import (
	"context"
	"fmt"
	"slices"

	"github.com/cognicore/semnorm/pkg/semnorm/embed"
)

// Concept is a canonical, language-independent column meaning.
type Concept struct {
	Key          string
	Description  string
	ExpectedType ExpectedType
	Synonyms     []string
	Embedding    embed.Vector
}

// TableType is a canonical dataset purpose with one vector per anchor phrase.
type TableType struct {
	Name             string
	Anchors          []string
	AnchorEmbeddings []embed.Vector
}

// Catalog is read-only after Load and safe to share between goroutines.
type Catalog struct {
	version    string
	model      string
	tableTypes []TableType
	concepts   []Concept
	byKey      map[string]int
}

// Load validates def and embeds every anchor phrase and concept text, one
// batch each. Any failure is a startup error.
func Load(ctx context.Context, def Definition, provider embed.Provider) (*Catalog, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	var anchorTexts []string
	for _, tt := range def.TableTypes {
		anchorTexts = append(anchorTexts, tt.Anchors...)
	}
	anchorVecs, err := provider.Embed(ctx, anchorTexts)
	if err != nil {
		return nil, fmt.Errorf("embed anchors: %w", err)
	}
	if len(anchorVecs) != len(anchorTexts) {
		return nil, fmt.Errorf("embed anchors: got %d vectors for %d phrases", len(anchorVecs), len(anchorTexts))
	}

	conceptTexts := make([]string, len(def.Concepts))
	for i, c := range def.Concepts {
		conceptTexts[i] = c.embeddingText()
	}
	conceptVecs, err := provider.Embed(ctx, conceptTexts)
	if err != nil {
		return nil, fmt.Errorf("embed concepts: %w", err)
	}
	if len(conceptVecs) != len(conceptTexts) {
		return nil, fmt.Errorf("embed concepts: got %d vectors for %d concepts", len(conceptVecs), len(conceptTexts))
	}

	cat := &Catalog{
		version:    def.Version,
		model:      provider.Name(),
		tableTypes: make([]TableType, len(def.TableTypes)),
		concepts:   make([]Concept, len(def.Concepts)),
		byKey:      make(map[string]int, len(def.Concepts)),
	}

	offset := 0
	for i, tt := range def.TableTypes {
		n := len(tt.Anchors)
		cat.tableTypes[i] = TableType{
			Name:             tt.Name,
			Anchors:          slices.Clone(tt.Anchors),
			AnchorEmbeddings: anchorVecs[offset : offset+n : offset+n],
		}
		offset += n
	}
	for i, c := range def.Concepts {
		cat.concepts[i] = Concept{
			Key:          c.Key,
			Description:  c.Description,
			ExpectedType: c.ExpectedType,
			Synonyms:     slices.Clone(c.Synonyms),
			Embedding:    conceptVecs[i],
		}
		cat.byKey[c.Key] = i
	}
	return cat, nil
}

// LoadFile parses the YAML catalog at path and loads it.
func LoadFile(ctx context.Context, path string, provider embed.Provider) (*Catalog, error) {
	def, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Load(ctx, def, provider)
}

// TableTypes returns the table types in catalog order.
func (c *Catalog) TableTypes() []TableType { return slices.Clone(c.tableTypes) }

// Concepts returns the concepts in catalog order.
func (c *Catalog) Concepts() []Concept { return slices.Clone(c.concepts) }

// Concept looks up a concept by key.
func (c *Catalog) Concept(key string) (Concept, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Concept{}, false
	}
	return c.concepts[i], true
}

// HasConcept reports whether key names a concept in this catalog.
func (c *Catalog) HasConcept(key string) bool {
	_, ok := c.byKey[key]
	return ok
}

// Version is the catalog source version string.
func (c *Catalog) Version() string { return c.version }

// Model names the embedding model the catalog vectors came from.
func (c *Catalog) Model() string { return c.model }
