package entity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cognicore/semnorm/pkg/semnorm/embed"
	"github.com/cognicore/semnorm/pkg/semnorm/internalerr"
)

// Cache is the per-run, per-region view of known entities. It is built once
// at the start of an ingestion run and discarded at its end. Add makes
// newly persisted entities visible for the rest of the run; all methods are
// safe for concurrent use.
type Cache struct {
	regionID string
	runID    string
	logger   *zap.Logger

	mu         sync.RWMutex
	records    map[string]Record
	byName     map[Type]map[string]string
	bySourceID map[Type]map[string]string
	embeddings map[Type]map[string]embed.Vector
}

// BuildOptions configure Build.
type BuildOptions struct {
	// RunID overrides the generated ULID.
	RunID  string
	Logger *zap.Logger
}

func newCache(regionID, runID string, logger *zap.Logger) *Cache {
	c := &Cache{
		regionID:   regionID,
		runID:      runID,
		logger:     logger,
		records:    make(map[string]Record),
		byName:     make(map[Type]map[string]string),
		bySourceID: make(map[Type]map[string]string),
		embeddings: make(map[Type]map[string]embed.Vector),
	}
	for _, t := range Types {
		c.byName[t] = make(map[string]string)
		c.bySourceID[t] = make(map[string]string)
		c.embeddings[t] = make(map[string]embed.Vector)
	}
	return c
}

// Build indexes a dimension snapshot for one region. Region-scoped records
// from other regions are skipped; global types are kept regardless. All
// canonical names are embedded in a single batch.
func Build(ctx context.Context, regionID string, snapshot []Record, provider embed.Provider, opts BuildOptions) (*Cache, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := opts.RunID
	if runID == "" {
		runID = ulid.Make().String()
	}
	c := newCache(regionID, runID, logger.Named("entity-cache"))

	kept := make([]Record, 0, len(snapshot))
	for _, r := range snapshot {
		if !r.Type.Valid() || r.ID == "" {
			c.logger.Warn("skipping invalid snapshot record",
				zap.String("entity_id", r.ID), zap.String("entity_type", string(r.Type)))
			continue
		}
		if r.Type.RegionScoped() && r.RegionID != "" && r.RegionID != regionID {
			continue
		}
		kept = append(kept, r)
	}
	// smallest id wins every collision regardless of snapshot order
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })

	if len(kept) > 0 {
		names := make([]string, len(kept))
		for i, r := range kept {
			names[i] = r.CanonicalName
		}
		vecs, err := provider.Embed(ctx, names)
		if err != nil {
			return nil, fmt.Errorf("entity cache: embed names: %w", err)
		}
		if len(vecs) != len(kept) {
			return nil, fmt.Errorf("entity cache: got %d vectors for %d names", len(vecs), len(kept))
		}
		for i := range kept {
			kept[i].Embedding = vecs[i]
		}
	}

	c.mu.Lock()
	for _, r := range kept {
		c.index(r)
	}
	c.mu.Unlock()

	c.logger.Info("entity cache built",
		zap.String("region_id", regionID),
		zap.String("run_id", runID),
		zap.Int("snapshot", len(snapshot)),
		zap.Int("indexed", len(kept)))
	return c, nil
}

// index adds r; the caller holds the write lock. Existing name and source id
// entries are never overwritten.
func (c *Cache) index(r Record) {
	r.NormalizedName = Normalize(r.CanonicalName)
	c.records[r.ID] = r

	if r.NormalizedName != "" {
		if prev, ok := c.byName[r.Type][r.NormalizedName]; ok && prev != r.ID {
			c.logger.Warn("normalized name collision",
				zap.String("entity_type", string(r.Type)),
				zap.String("name", r.NormalizedName),
				zap.String("kept", prev),
				zap.String("dropped", r.ID))
		} else {
			c.byName[r.Type][r.NormalizedName] = r.ID
		}
	}
	for _, sid := range r.SourceIDs {
		sid = strings.TrimSpace(sid)
		if sid == "" {
			continue
		}
		if prev, ok := c.bySourceID[r.Type][sid]; ok && prev != r.ID {
			c.logger.Warn("source id collision",
				zap.String("entity_type", string(r.Type)),
				zap.String("source_id", sid),
				zap.String("kept", prev),
				zap.String("dropped", r.ID))
			continue
		}
		c.bySourceID[r.Type][sid] = r.ID
	}
	if len(r.Embedding) > 0 {
		c.embeddings[r.Type][r.ID] = r.Embedding
	}
}

// Add makes a newly created entity visible to later lookups of this run.
func (c *Cache) Add(r Record) error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", internalerr.ErrInvalidInput, r.Type)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: entity id is required", internalerr.ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[r.ID]; ok {
		return fmt.Errorf("%w: entity %s", internalerr.ErrDuplicate, r.ID)
	}
	c.index(r)
	return nil
}

// RegionID is the region the cache was built for.
func (c *Cache) RegionID() string { return c.regionID }

// RunID identifies the ingestion run owning the cache.
func (c *Cache) RunID() string { return c.runID }

// Has reports whether an entity id is known.
func (c *Cache) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.records[id]
	return ok
}

// Get returns the record for an entity id.
func (c *Cache) Get(id string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[id]
	return r, ok
}

// LookupSourceID finds an entity by one of its source ids.
func (c *Cache) LookupSourceID(t Type, sourceID string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.bySourceID[t][sourceID]
	if !ok {
		return Record{}, false
	}
	return c.records[id], true
}

// LookupName finds an entity by normalised name.
func (c *Cache) LookupName(t Type, normalized string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[t][normalized]
	if !ok {
		return Record{}, false
	}
	return c.records[id], true
}

// NameEntry pairs an indexed normalised name with its entity id.
type NameEntry struct {
	Name     string
	EntityID string
}

// Names returns the name index of a type sorted by name.
func (c *Cache) Names(t Type) []NameEntry {
	c.mu.RLock()
	out := make([]NameEntry, 0, len(c.byName[t]))
	for name, id := range c.byName[t] {
		out = append(out, NameEntry{Name: name, EntityID: id})
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Embedded returns the records of a type that carry an embedding, sorted by
// normalised name then id.
func (c *Cache) Embedded(t Type) []Record {
	c.mu.RLock()
	out := make([]Record, 0, len(c.embeddings[t]))
	for id := range c.embeddings[t] {
		out = append(out, c.records[id])
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].NormalizedName != out[j].NormalizedName {
			return out[i].NormalizedName < out[j].NormalizedName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len is the number of entities of a type.
func (c *Cache) Len(t Type) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, r := range c.records {
		if r.Type == t {
			n++
		}
	}
	return n
}
