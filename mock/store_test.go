package mock

import (
	"context"
	"testing"

	"github.com/evergreen-ci/rowan/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchFiltersOnLedgerAndSortsByID(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	store := NewStore()
	store.Insert(
		model.Row{ID: 3, Fields: model.Document{"n": 3}},
		model.Row{ID: 1, AppliedUpgrades: []string{"rename"}, Fields: model.Document{"n": 1}},
		model.Row{ID: 2, Fields: model.Document{"n": 2}},
	)

	missing, err := store.RowsMissingUpgrade(ctx, "rename", 10)
	require.NoError(err)
	require.Len(missing, 2)
	assert.Equal(2, missing[0].ID)
	assert.Equal(3, missing[1].ID)

	limited, err := store.RowsMissingUpgrade(ctx, "rename", 1)
	require.NoError(err)
	require.Len(limited, 1)
	assert.Equal(2, limited[0].ID)

	with, err := store.RowsWithUpgrade(ctx, "rename", 10)
	require.NoError(err)
	require.Len(with, 1)
	assert.Equal(1, with[0].ID)
}

func TestUpdateRowAppliesPatchInPlace(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	store := NewStore()
	store.Insert(model.Row{ID: 1, Fields: model.Document{"headline": "a", "views": 7}})

	require.NoError(store.UpdateRow(ctx, 1, model.Patch{
		Set:    model.Document{"title": "a"},
		Unset:  []string{"headline"},
		Ledger: []string{"rename"},
	}))

	row, ok := store.Row(1)
	require.True(ok)
	assert.Equal("a", row.Fields["title"])
	assert.NotContains(row.Fields, "headline")
	assert.Equal(7, row.Fields["views"])
	assert.Equal([]string{"rename"}, row.AppliedUpgrades)
	assert.Equal(1, store.UpdateCount)
}

func TestUpdateRowTreatsMissingRowsAsNoOps(t *testing.T) {
	assert := assert.New(t)

	store := NewStore()
	assert.NoError(store.UpdateRow(context.Background(), 42, model.Patch{Set: model.Document{"x": 1}}))
	assert.Equal(1, store.UpdateCount)
	assert.Empty(store.All())
}

func TestInjectedUpdateFailures(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	store := NewStore()
	store.Insert(model.Row{ID: 1, Fields: model.Document{}})
	store.TransientUpdateFailures = map[any]int{1: 2}

	patch := model.Patch{Set: model.Document{"x": 1}}
	assert.Error(store.UpdateRow(ctx, 1, patch))
	assert.Error(store.UpdateRow(ctx, 1, patch))
	require.NoError(store.UpdateRow(ctx, 1, patch))

	row, ok := store.Row(1)
	require.True(ok)
	assert.Equal(1, row.Fields["x"])
	assert.Equal(3, store.UpdateCount)
}

func TestScanRowsPagesFromTheCursor(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	store := NewStore()
	for i := 1; i <= 5; i++ {
		store.Insert(model.Row{ID: i, Fields: model.Document{}})
	}

	page, err := store.ScanRows(ctx, nil, 2)
	require.NoError(err)
	require.Len(page, 2)
	assert.Equal(1, page[0].ID)

	page, err = store.ScanRows(ctx, page[1].ID, 2)
	require.NoError(err)
	require.Len(page, 2)
	assert.Equal(3, page[0].ID)

	page, err = store.ScanRows(ctx, page[1].ID, 2)
	require.NoError(err)
	require.Len(page, 1)
	assert.Equal(5, page[0].ID)
	assert.Equal(3, store.ScanCount)
}

func TestFindID(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	store := NewStore()
	store.Insert(model.Row{ID: "present", Fields: model.Document{"n": 1}})

	row, err := store.FindID(ctx, "present")
	require.NoError(err)
	assert.Equal(1, row.Fields["n"])

	_, err = store.FindID(ctx, "absent")
	assert.Error(err)
}

func TestInsertCopiesRows(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	seed := model.Row{ID: 1, Fields: model.Document{"n": 1}}
	store := NewStore()
	store.Insert(seed)

	seed.Fields["n"] = 99
	row, ok := store.Row(1)
	require.True(ok)
	assert.Equal(1, row.Fields["n"])
}
