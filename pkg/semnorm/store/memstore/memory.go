package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/semnorm/pkg/semnorm/entity"
	"github.com/cognicore/semnorm/pkg/semnorm/internalerr"
	"github.com/cognicore/semnorm/pkg/semnorm/store"
)

// Store is an in-memory implementation of store.DimensionStore for tests
// and offline runs.
type Store struct {
	mu      sync.RWMutex
	records map[string]entity.Record
}

// New creates a store holding the given records.
func New(seed ...entity.Record) (*Store, error) {
	s := &Store{records: make(map[string]entity.Record)}
	for _, r := range seed {
		if err := s.InsertEntity(context.Background(), r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close implements store.DimensionStore.
func (s *Store) Close() error { return nil }

// InsertEntity implements store.DimensionStore.
func (s *Store) InsertEntity(ctx context.Context, r entity.Record) error {
	if err := store.Validate(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.ID]; ok {
		return fmt.Errorf("%w: entity %s", internalerr.ErrDuplicate, r.ID)
	}
	s.records[r.ID] = store.Prepare(r)
	return nil
}

// Snapshot implements store.DimensionStore.
func (s *Store) Snapshot(ctx context.Context, regionID string) ([]entity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.Record, 0, len(s.records))
	for _, r := range s.records {
		if store.Visible(r, regionID) {
			r.SourceIDs = append([]string(nil), r.SourceIDs...)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the number of stored entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
