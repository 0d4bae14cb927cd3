package snapshots

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlens/fundlens/internal/modules/dataset"
)

func sampleTable(t *testing.T) *dataset.Table {
	t.Helper()
	table, err := dataset.New([]dataset.Column{
		{Name: dataset.ColName, Kind: dataset.KindString, Strs: []string{"A", "B"}},
		{Name: dataset.ColReturn, Kind: dataset.KindNumeric, Nums: []float64{7.5, math.NaN()}},
	})
	require.NoError(t, err)
	return table
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	snap, err := store.Save("pre-filter", sampleTable(t))
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, 2, snap.Rows)
	assert.Equal(t, 2, snap.Columns)
	assert.WithinDuration(t, time.Now().UTC(), snap.CreatedAt, 5*time.Second)

	table, meta, err := store.Load(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "pre-filter", meta.Name)
	assert.Equal(t, "B", table.String(dataset.ColName, 1))
	assert.InDelta(t, 7.5, table.Float(dataset.ColReturn, 0), 1e-9)
	// Missing values survive the round trip as missing.
	assert.True(t, math.IsNaN(table.Float(dataset.ColReturn, 1)))
}

func TestListNewestFirst(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first, err := store.Save("first", sampleTable(t))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := store.Save("second", sampleTable(t))
	require.NoError(t, err)

	snaps, err := store.List()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, second.ID, snaps[0].ID)
	assert.Equal(t, first.ID, snaps[1].ID)
}

func TestDeleteAndMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	snap, err := store.Save("gone soon", sampleTable(t))
	require.NoError(t, err)
	require.NoError(t, store.Delete(snap.ID))

	_, _, err = store.Load(snap.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(snap.ID), ErrNotFound)

	snaps, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
