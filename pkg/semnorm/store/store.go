// Package store defines the dimension store the engine reads entity
// snapshots from and writes new entities to.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cognicore/semnorm/pkg/semnorm/entity"
	"github.com/cognicore/semnorm/pkg/semnorm/internalerr"
)

// DimensionStore persists canonical entities.
type DimensionStore interface {
	// Snapshot returns the entities visible to a region: its region-scoped
	// entities plus every global one, ordered by id.
	Snapshot(ctx context.Context, regionID string) ([]entity.Record, error)
	// InsertEntity persists a new entity. An existing id fails with
	// internalerr.ErrDuplicate.
	InsertEntity(ctx context.Context, r entity.Record) error
	Close() error
}

// Validate checks the fields every store requires.
func Validate(r entity.Record) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: entity id is required", internalerr.ErrInvalidInput)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", internalerr.ErrInvalidInput, r.Type)
	}
	if strings.TrimSpace(r.CanonicalName) == "" {
		return fmt.Errorf("%w: entity %s has no canonical name", internalerr.ErrInvalidInput, r.ID)
	}
	return nil
}

// Visible reports whether r belongs in a snapshot for regionID.
func Visible(r entity.Record, regionID string) bool {
	return !r.Type.RegionScoped() || r.RegionID == "" || r.RegionID == regionID
}

// Prepare fills the normalised name and cleans source ids. Embeddings are
// dropped; snapshots are re-embedded by each run.
func Prepare(r entity.Record) entity.Record {
	if r.NormalizedName == "" {
		r.NormalizedName = entity.Normalize(r.CanonicalName)
	}
	r.SourceIDs = UniqueSourceIDs(r.SourceIDs)
	r.Embedding = nil
	return r
}

// UniqueSourceIDs trims, drops blanks, de-duplicates and sorts.
func UniqueSourceIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
