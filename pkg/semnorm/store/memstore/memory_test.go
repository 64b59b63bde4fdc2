package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/semnorm/pkg/semnorm/entity"
	"github.com/cognicore/semnorm/pkg/semnorm/store"
	"github.com/cognicore/semnorm/pkg/semnorm/store/storetest"
)

func TestMemStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.DimensionStore {
		st, err := New()
		require.NoError(t, err)
		return st
	})
}

func TestNewSeeds(t *testing.T) {
	st, err := New(
		entity.Record{ID: "e1", Type: entity.TypeRegion, CanonicalName: "North"},
		entity.Record{ID: "e2", Type: entity.TypeRegion, CanonicalName: "South"},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Len())

	_, err = New(
		entity.Record{ID: "e1", Type: entity.TypeRegion, CanonicalName: "North"},
		entity.Record{ID: "e1", Type: entity.TypeRegion, CanonicalName: "North"},
	)
	require.Error(t, err)
}

func TestSnapshotIsDetached(t *testing.T) {
	st, err := New(entity.Record{ID: "e1", Type: entity.TypeSubject, CanonicalName: "Art", SourceIDs: []string{"A"}})
	require.NoError(t, err)

	snap, err := st.Snapshot(context.Background(), "")
	require.NoError(t, err)
	snap[0].SourceIDs[0] = "mutated"

	again, err := st.Snapshot(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, again[0].SourceIDs)
}
