package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveProject(context.Background(), budget.Project{ID: "casa", Name: "Casa térrea"}))
	return store
}

func sampleItems() []budget.Item {
	return budget.NormalizeHierarchy([]budget.Item{
		{ID: budget.SeqID(1), Description: "Fundação", Expanded: true},
		{ID: budget.SeqID(2), ParentID: budget.SeqID(1), Description: "Escavação", Source: "SINAPI", Code: "96522",
			Unit: "m3", Quantity: budget.Dec("10.5"), MaterialUnitCost: budget.Dec("5.123"), LaborUnitCost: budget.Dec("2")},
		{ID: budget.NewItemID(), Description: "Limpeza", Unit: "vb", Quantity: budget.Dec("1"), LaborUnitCost: budget.Dec("500")},
	})
}

// =============================================================================
// ITEMS
// =============================================================================

func TestStore_SaveAndLoadItems_RoundTrip(t *testing.T) {
	// GIVEN: Mixed sequential and UUID ids, exact decimals
	store := newTestStore(t)
	ctx := context.Background()
	items := sampleItems()

	// WHEN
	require.NoError(t, store.SaveItems(ctx, "casa", items))
	got, err := store.LoadItems(ctx, "casa")

	// THEN: Same order, ids and values
	require.NoError(t, err)
	assert.True(t, budget.EqualItems(items, got))
	assert.False(t, got[2].ID.IsSeq())
	assert.Equal(t, items[2].ID, got[2].ID)
}

func TestStore_SaveItemsReplacesList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveItems(ctx, "casa", sampleItems()))

	require.NoError(t, store.SaveItems(ctx, "casa", sampleItems()[:1]))

	got, err := store.LoadItems(ctx, "casa")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_SaveItemsUnknownProject(t *testing.T) {
	store := newTestStore(t)

	err := store.SaveItems(context.Background(), "nope", sampleItems())

	assert.ErrorIs(t, err, budget.ErrProjectNotFound)
}

func TestStore_ApplyChanges(t *testing.T) {
	// GIVEN: A saved list and an edited version of it
	store := newTestStore(t)
	ctx := context.Background()
	before := sampleItems()
	require.NoError(t, store.SaveItems(ctx, "casa", before))

	after, err := budget.InsertAfter(before, budget.SeqID(2), budget.NewItemID())
	require.NoError(t, err)
	after, err = budget.DeleteOne(after, before[2].ID)
	require.NoError(t, err)
	after, err = budget.EditValue(after, budget.SeqID(2), budget.FieldQuantity, "3")
	require.NoError(t, err)

	// WHEN
	require.NoError(t, store.ApplyChanges(ctx, "casa", budget.Diff(before, after)))

	// THEN: Loading gives exactly the edited list
	got, err := store.LoadItems(ctx, "casa")
	require.NoError(t, err)
	assert.True(t, budget.EqualItems(after, got))
}

func TestStore_ApplyChangesRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveItems(ctx, "casa", sampleItems()))

	err := store.ApplyChanges(ctx, "casa", budget.ChangeSet{
		Deleted: []budget.ItemID{budget.SeqID(2), budget.SeqID(99)},
	})

	assert.ErrorIs(t, err, budget.ErrItemNotFound)
	got, _ := store.LoadItems(ctx, "casa")
	assert.Len(t, got, 3)
}

func TestStore_SessionSaveGoesThroughChangeStore(t *testing.T) {
	// GIVEN: A session over the SQLite store
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveItems(ctx, "casa", sampleItems()))
	s := budget.NewSession(store, "casa")
	require.NoError(t, s.Load(ctx))

	// WHEN: Outdent and save
	s.Begin()
	require.NoError(t, s.Outdent(budget.SeqID(2)))
	require.NoError(t, s.Save(ctx))

	// THEN: A fresh session sees the edit
	fresh := budget.NewSession(store, "casa")
	require.NoError(t, fresh.Load(ctx))
	assert.True(t, budget.EqualItems(s.Items(), fresh.Items()))
	assert.Equal(t, "2", fresh.Items()[1].Level)
}

// =============================================================================
// COLUMNS AND PROJECTS
// =============================================================================

func TestStore_Columns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.LoadColumns(ctx, "casa")
	require.NoError(t, err)
	assert.False(t, ok)

	cfg := budget.DefaultColumns()
	require.NoError(t, cfg.SetWidth(budget.ColDescription, 410))
	require.NoError(t, store.SaveColumns(ctx, "casa", cfg))
	require.NoError(t, cfg.SetPinned(budget.ColCode, budget.PinLeft))
	require.NoError(t, store.SaveColumns(ctx, "casa", cfg))

	got, ok, err := store.LoadColumns(ctx, "casa")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cfg, got)
}

func TestStore_Projects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveProject(ctx, budget.Project{ID: "anexo", Name: "Anexo"}))
	require.NoError(t, store.SaveProject(ctx, budget.Project{ID: "casa", Name: "Casa renomeada"}))

	list, err := store.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, budget.ProjectID("anexo"), list[0].ID)

	p, err := store.GetProject(ctx, "casa")
	require.NoError(t, err)
	assert.Equal(t, "Casa renomeada", p.Name)

	_, err = store.GetProject(ctx, "missing")
	assert.True(t, budget.IsNotFound(err))
}

func TestStore_DeleteProjectCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveItems(ctx, "casa", sampleItems()))

	require.NoError(t, store.DeleteProject(ctx, "casa"))

	got, err := store.LoadItems(ctx, "casa")
	require.NoError(t, err)
	assert.Empty(t, got)
}
