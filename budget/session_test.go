package budget_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/budget/store"
)

// =============================================================================
// TEST STORES
// =============================================================================

type fakeStore struct {
	mu      sync.Mutex
	items   []budget.Item
	saves   int
	failErr error
}

func (f *fakeStore) LoadItems(_ context.Context, _ budget.ProjectID) ([]budget.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return budget.Clone(f.items), nil
}

func (f *fakeStore) SaveItems(_ context.Context, _ budget.ProjectID, items []budget.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.items = budget.Clone(items)
	f.saves++
	return nil
}

type fakeChangeStore struct {
	fakeStore
	changes []budget.ChangeSet
}

func (f *fakeChangeStore) ApplyChanges(_ context.Context, _ budget.ProjectID, cs budget.ChangeSet) error {
	f.changes = append(f.changes, cs)
	return nil
}

func newTestSession(t *testing.T, items []budget.Item) (*budget.Session, *fakeStore) {
	t.Helper()
	store := &fakeStore{items: items}
	s := budget.NewSession(store, "proj-1")
	require.NoError(t, s.Load(context.Background()))
	return s, store
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestSession_LoadRepairsAndNormalizes(t *testing.T) {
	// GIVEN: Stored data with stale levels, a cycle and a parent with costs
	stored := []budget.Item{
		leaf(1, 0, "group", "m", "1", "9", "9"),
		leaf(2, 1, "child", "m", "1", "1", "0"),
		{ID: id(3), ParentID: id(4), Description: "x"},
		{ID: id(4), ParentID: id(3), Description: "y"},
	}

	// WHEN
	s, _ := newTestSession(t, stored)

	// THEN
	items := s.Items()
	assert.NoError(t, budget.ValidateHierarchy(items))
	assertNoCosts(t, find(t, items, id(1)))
	assert.Equal(t, budget.ModeViewing, s.Mode())
}

func TestSession_MutationWhileViewingFails(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())

	err := s.Indent(id(3))

	assert.ErrorIs(t, err, budget.ErrNotEditing)
	assert.True(t, budget.EqualItems(sampleBudget(), s.Items()))
}

func TestSession_SaveCommitsAndReturnsToViewing(t *testing.T) {
	// GIVEN
	s, store := newTestSession(t, sampleBudget())
	s.Begin()
	require.NoError(t, s.Indent(id(3)))

	// WHEN
	err := s.Save(context.Background())

	// THEN
	require.NoError(t, err)
	assert.Equal(t, budget.ModeViewing, s.Mode())
	assert.False(t, s.CanUndo())
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, id(2), find(t, store.items, id(3)).ParentID)
	assert.True(t, budget.EqualItems(store.items, s.Items()))
}

func TestSession_SaveFailureKeepsEdits(t *testing.T) {
	// GIVEN: A store that fails once
	s, store := newTestSession(t, sampleBudget())
	s.Begin()
	require.NoError(t, s.EditValue(id(2), budget.FieldQuantity, "99"))
	store.failErr = errors.New("connection reset")

	// WHEN
	err := s.Save(context.Background())

	// THEN: Still editing, edits intact, retry works
	var saveErr *budget.SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, budget.ProjectID("proj-1"), saveErr.ProjectID)
	assert.Equal(t, budget.ModeEditing, s.Mode())
	assertDec(t, "99", find(t, s.Items(), id(2)).Quantity)
	assert.True(t, s.CanUndo())

	store.failErr = nil
	require.NoError(t, s.Save(context.Background()))
	assertDec(t, "99", find(t, store.items, id(2)).Quantity)
}

func TestSession_SaveUsesChangeStore(t *testing.T) {
	store := &fakeChangeStore{fakeStore: fakeStore{items: sampleBudget()}}
	s := budget.NewSession(store, "proj-1")
	require.NoError(t, s.Load(context.Background()))
	s.Begin()
	require.NoError(t, s.Delete(id(6)))

	require.NoError(t, s.Save(context.Background()))

	require.Len(t, store.changes, 1)
	assert.Equal(t, []budget.ItemID{id(6)}, store.changes[0].Deleted)
	assert.Equal(t, 0, store.saves)
}

func TestSession_CancelRequiresConfirmationWhenDirty(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()
	require.NoError(t, s.Delete(id(1)))
	require.True(t, s.Dirty())

	err := s.Cancel(func() bool { return false })
	assert.ErrorIs(t, err, budget.ErrUnsavedChanges)
	assert.Equal(t, budget.ModeEditing, s.Mode())

	err = s.Cancel(nil)
	assert.ErrorIs(t, err, budget.ErrUnsavedChanges)

	require.NoError(t, s.Cancel(func() bool { return true }))
	assert.Equal(t, budget.ModeViewing, s.Mode())
	assert.True(t, budget.EqualItems(sampleBudget(), s.Items()))
}

func TestSession_CancelCleanSkipsConfirmation(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()

	asked := false
	err := s.Cancel(func() bool {
		asked = true
		return false
	})

	require.NoError(t, err)
	assert.False(t, asked)
	assert.Equal(t, budget.ModeViewing, s.Mode())
}

func TestSession_DirtyFalseAfterUndoingEverything(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()
	require.NoError(t, s.Outdent(id(5)))

	s.Undo()

	assert.False(t, s.Dirty())
}

// =============================================================================
// UNDO / REDO
// =============================================================================

func TestSession_UndoRedoSymmetry(t *testing.T) {
	// GIVEN: Three edits
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()
	require.NoError(t, s.Indent(id(3)))
	_, err := s.Duplicate(id(6))
	require.NoError(t, err)
	require.NoError(t, s.EditValue(id(5), budget.FieldDescription, "Vigas"))
	final := s.Items()

	// WHEN: Three undos, then three redos
	for i := 0; i < 3; i++ {
		assert.True(t, s.Undo())
	}
	assert.True(t, budget.EqualItems(sampleBudget(), s.Items()))
	assert.False(t, s.Undo())

	for i := 0; i < 3; i++ {
		assert.True(t, s.Redo())
	}

	// THEN
	assert.True(t, budget.EqualItems(final, s.Items()))
	assert.False(t, s.Redo())
}

func TestSession_NoChangeIsNotRecorded(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()

	err := s.Outdent(id(6))

	assert.ErrorIs(t, err, budget.ErrNoChange)
	assert.False(t, s.CanUndo())
}

func TestSession_InPlaceMutationLeavesHistoryIntact(t *testing.T) {
	// GIVEN: A mutation that edits the list it is given
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()
	rename := func(items []budget.Item) ([]budget.Item, error) {
		items[0].Description = "Fundação profunda"
		return items, nil
	}

	// WHEN
	require.NoError(t, s.Apply(rename))
	require.True(t, s.Undo())

	// THEN: The first snapshot still holds the old text
	assert.Equal(t, "Fundação", find(t, s.Items(), id(1)).Description)
	assert.False(t, s.Dirty())
}

func TestSession_RejectionIsNotRecorded(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()

	err := s.DragReparent(id(1), id(2))

	assert.ErrorIs(t, err, budget.ErrRejected)
	assert.False(t, s.CanUndo())
	assert.True(t, budget.EqualItems(sampleBudget(), s.Items()))
}

func TestSession_HistoryLimit(t *testing.T) {
	store := &fakeStore{items: sampleBudget()}
	s := budget.NewSession(store, "p", budget.WithHistoryLimit(1))
	require.NoError(t, s.Load(context.Background()))
	s.Begin()
	require.NoError(t, s.EditValue(id(2), budget.FieldCode, "a"))
	require.NoError(t, s.EditValue(id(2), budget.FieldCode, "b"))

	assert.True(t, s.Undo())
	assert.False(t, s.Undo())
	assert.Equal(t, "a", find(t, s.Items(), id(2)).Code)
	assert.True(t, s.Dirty())
}

// =============================================================================
// EXPAND WHILE VIEWING
// =============================================================================

func TestSession_ToggleExpandWhileViewing(t *testing.T) {
	s, store := newTestSession(t, sampleBudget())

	require.NoError(t, s.ToggleExpand(id(1)))

	assert.False(t, find(t, s.Items(), id(1)).Expanded)
	assert.True(t, find(t, store.items, id(1)).Expanded, "store is not written")
	assert.Equal(t, budget.ModeViewing, s.Mode())
	assert.True(t, s.Pending())
}

func TestSession_ViewingToggleReachesStoreWithNextSave(t *testing.T) {
	// GIVEN: A memory store holding the sample budget
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveItems(ctx, "proj-1", sampleBudget()))
	s := budget.NewSession(mem, "proj-1")
	require.NoError(t, s.Load(ctx))

	// WHEN: Collapsing a group while viewing, then saving an unrelated edit
	require.NoError(t, s.ToggleExpand(id(1)))
	s.Begin()
	require.NoError(t, s.EditValue(budget.MustParseItemID("3"), budget.FieldDescription, "Concreto usinado"))
	require.NoError(t, s.Save(ctx))

	// THEN: Both changes are stored
	stored, err := mem.LoadItems(ctx, "proj-1")
	require.NoError(t, err)
	assert.False(t, find(t, stored, id(1)).Expanded)
	assert.Equal(t, "Concreto usinado", find(t, stored, id(3)).Description)
	assert.False(t, s.Pending())
}

func TestSession_FlushWritesViewingToggles(t *testing.T) {
	// GIVEN: A change store and a collapsed group nobody saved
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveItems(ctx, "proj-1", sampleBudget()))
	s := budget.NewSession(mem, "proj-1")
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.ToggleExpand(id(4)))

	// WHEN
	require.NoError(t, s.Flush(ctx))

	// THEN: A fresh session sees the collapsed group
	fresh := budget.NewSession(mem, "proj-1")
	require.NoError(t, fresh.Load(ctx))
	assert.False(t, find(t, fresh.Items(), id(4)).Expanded)
	assert.False(t, s.Pending())
}

func TestSession_FlushWhileEditingDoesNothing(t *testing.T) {
	s, store := newTestSession(t, sampleBudget())
	s.Begin()
	require.NoError(t, s.ToggleExpand(id(1)))

	require.NoError(t, s.Flush(context.Background()))

	assert.Zero(t, store.saves)
	assert.True(t, find(t, store.items, id(1)).Expanded)
}

func TestSession_ToggleExpandWhileEditingIsUndoable(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()

	require.NoError(t, s.ToggleExpand(id(4)))
	assert.False(t, find(t, s.Items(), id(4)).Expanded)

	s.Undo()
	assert.True(t, find(t, s.Items(), id(4)).Expanded)
}

// =============================================================================
// KEYBOARD
// =============================================================================

func mustKey(t *testing.T, s string) budget.Key {
	t.Helper()
	k, err := budget.ParseKey(s)
	require.NoError(t, err)
	return k
}

func TestParseKey(t *testing.T) {
	k := mustKey(t, "Cmd+Shift+Z")
	assert.Equal(t, budget.Key{Name: "z", Ctrl: true, Shift: true}, k)

	_, err := budget.ParseKey("ctrl+")
	assert.ErrorIs(t, err, budget.ErrInvalidValue)
	_, err = budget.ParseKey("a+b")
	assert.Error(t, err)
}

func TestSession_HandleKey(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())

	// Viewing: shortcuts inactive
	handled, err := s.HandleKey(mustKey(t, "Tab"), id(3))
	require.NoError(t, err)
	assert.False(t, handled)

	s.Begin()

	// Tab indents the focused row
	handled, err = s.HandleKey(mustKey(t, "Tab"), id(3))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "1.1.1", find(t, s.Items(), id(3)).Level)

	// Shift+Tab outdents it back
	handled, err = s.HandleKey(mustKey(t, "Shift+Tab"), id(3))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "1.2", find(t, s.Items(), id(3)).Level)

	// Ctrl+Z twice returns to the start, Ctrl+Y and Cmd+Shift+Z redo
	for _, key := range []string{"Ctrl+Z", "Meta+Z"} {
		handled, _ = s.HandleKey(mustKey(t, key), budget.ItemID{})
		assert.True(t, handled)
	}
	assert.True(t, budget.EqualItems(sampleBudget(), s.Items()))

	for _, key := range []string{"Ctrl+Y", "Cmd+Shift+Z"} {
		handled, _ = s.HandleKey(mustKey(t, key), budget.ItemID{})
		assert.True(t, handled)
	}
	assert.Equal(t, "1.2", find(t, s.Items(), id(3)).Level)
	assert.False(t, s.CanRedo())

	// Unbound
	handled, _ = s.HandleKey(mustKey(t, "Ctrl+K"), id(3))
	assert.False(t, handled)
}

// =============================================================================
// IMPORT
// =============================================================================

func TestSession_ImportAppend(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()

	report, err := s.ImportRecords([]budget.ImportRecord{
		{Level: "1", Description: "Cobertura"},
		{Level: "1.1", Description: "Telhas", Unit: "m2", Quantity: budget.Dec("80"), MaterialUnitCost: budget.Dec("35")},
	}, budget.ImportAppend)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	items := s.Items()
	require.Len(t, items, 8)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8}, order(items))
	assert.Equal(t, "4", find(t, items, id(7)).Level)
	assert.Equal(t, "4.1", find(t, items, id(8)).Level)
}

func TestSession_ImportReplace(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()

	_, err := s.ImportRecords([]budget.ImportRecord{{Description: "Only"}}, budget.ImportReplace)

	require.NoError(t, err)
	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, id(1), items[0].ID)

	s.Undo()
	assert.Len(t, s.Items(), 6)
}

func TestSession_ImportFailureLeavesListUntouched(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()

	report, err := s.ImportRecords([]budget.ImportRecord{{Description: " "}}, budget.ImportReplace)

	assert.ErrorIs(t, err, budget.ErrImportFailed)
	assert.Len(t, report.Skipped, 1)
	assert.True(t, budget.EqualItems(sampleBudget(), s.Items()))
	assert.False(t, s.CanUndo())
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestSession_ConcurrentEdits(t *testing.T) {
	s, _ := newTestSession(t, sampleBudget())
	s.Begin()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.InsertAfter(id(6))
			_ = s.Summary()
		}()
	}
	wg.Wait()

	assert.Len(t, s.Items(), 26)
	assert.NoError(t, budget.ValidateHierarchy(s.Items()))
}
