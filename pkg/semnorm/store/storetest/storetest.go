// Package storetest holds the behaviour every store.DimensionStore must have.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/semnorm/pkg/semnorm/entity"
	"github.com/cognicore/semnorm/pkg/semnorm/internalerr"
	"github.com/cognicore/semnorm/pkg/semnorm/store"
)

// Run exercises a store created fresh by open for every subtest.
func Run(t *testing.T, open func(t *testing.T) store.DimensionStore) {
	t.Run("InsertAndSnapshot", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		require.NoError(t, st.InsertEntity(ctx, entity.Record{
			ID: "t-2", Type: entity.TypeTeacher, RegionID: "r1",
			CanonicalName: "Ivan  Petrov", SourceIDs: []string{"T9", " T1 ", "T9", ""},
			Provenance: "seed", Embedding: []float32{1, 0},
		}))
		require.NoError(t, st.InsertEntity(ctx, entity.Record{
			ID: "t-1", Type: entity.TypeTeacher, RegionID: "r2", CanonicalName: "Olga Smirnova",
		}))
		require.NoError(t, st.InsertEntity(ctx, entity.Record{
			ID: "s-1", Type: entity.TypeSubject, RegionID: "r2", CanonicalName: "Mathematics",
		}))

		snap, err := st.Snapshot(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, snap, 2)
		assert.Equal(t, "s-1", snap[0].ID, "global types are visible everywhere")
		assert.Equal(t, entity.Record{
			ID: "t-2", Type: entity.TypeTeacher, RegionID: "r1",
			CanonicalName: "Ivan  Petrov", NormalizedName: "ivan petrov",
			SourceIDs: []string{"T1", "T9"}, Provenance: "seed",
		}, snap[1])

		other, err := st.Snapshot(ctx, "r2")
		require.NoError(t, err)
		require.Len(t, other, 2)
		assert.Equal(t, "s-1", other[0].ID)
		assert.Equal(t, "t-1", other[1].ID)
		assert.Nil(t, other[1].SourceIDs)
	})

	t.Run("EmptySnapshot", func(t *testing.T) {
		snap, err := open(t).Snapshot(context.Background(), "nowhere")
		require.NoError(t, err)
		assert.Empty(t, snap)
	})

	t.Run("Duplicate", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		r := entity.Record{ID: "e1", Type: entity.TypeSchool, RegionID: "r1", CanonicalName: "School 5"}
		require.NoError(t, st.InsertEntity(ctx, r))
		require.ErrorIs(t, st.InsertEntity(ctx, r), internalerr.ErrDuplicate)
	})

	t.Run("Invalid", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		for _, r := range []entity.Record{
			{Type: entity.TypeTeacher, CanonicalName: "No Id"},
			{ID: "x", Type: "janitor", CanonicalName: "Bad Type"},
			{ID: "y", Type: entity.TypeTeacher, CanonicalName: "  "},
		} {
			require.ErrorIs(t, st.InsertEntity(ctx, r), internalerr.ErrInvalidInput)
		}
	})

	t.Run("ConcurrentInserts", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

		var wg sync.WaitGroup
		errs := make([]error, len(ids))
		for i, id := range ids {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				errs[i] = st.InsertEntity(ctx, entity.Record{
					ID: id, Type: entity.TypeStudent, RegionID: "r1", CanonicalName: "Student " + id,
				})
			}(i, id)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		snap, err := st.Snapshot(ctx, "r1")
		require.NoError(t, err)
		assert.Len(t, snap, len(ids))
	})
}
