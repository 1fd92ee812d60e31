package budget_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-engine/budget"
)

// requireUntouched fails if a mutation modified its input.
func requireUntouched(t *testing.T, before, input []budget.Item) {
	t.Helper()
	require.True(t, budget.EqualItems(before, input), "mutation modified its input")
}

func requireRejected(t *testing.T, err error) *budget.RejectedError {
	t.Helper()
	var rej *budget.RejectedError
	require.ErrorAs(t, err, &rej)
	assert.ErrorIs(t, err, budget.ErrRejected)
	assert.True(t, budget.IsClientError(err))
	return rej
}

// =============================================================================
// EDIT VALUE
// =============================================================================

func TestEditValue_Description(t *testing.T) {
	items := sampleBudget()
	before := budget.Clone(items)

	out, err := budget.EditValue(items, id(2), budget.FieldDescription, "  Escavação manual ")

	require.NoError(t, err)
	assert.Equal(t, "Escavação manual", find(t, out, id(2)).Description)
	requireUntouched(t, before, items)
}

func TestEditValue_EmptyDescriptionRejected(t *testing.T) {
	items := sampleBudget()

	out, err := budget.EditValue(items, id(2), budget.FieldDescription, "   ")

	requireRejected(t, err)
	assert.True(t, budget.EqualItems(items, out), "rejected edit must return the input")
}

func TestEditValue_UnitDashClearsCosts(t *testing.T) {
	for _, unit := range []string{"-", ""} {
		t.Run("unit="+unit, func(t *testing.T) {
			out, err := budget.EditValue(sampleBudget(), id(3), budget.FieldUnit, unit)

			require.NoError(t, err)
			assertNoCosts(t, find(t, out, id(3)))
		})
	}
}

func TestEditValue_Numeric(t *testing.T) {
	items := sampleBudget()

	out, err := budget.EditValue(items, id(2), budget.FieldQuantity, "12,5")
	require.NoError(t, err)
	assertDec(t, "12.5", find(t, out, id(2)).Quantity)

	out, err = budget.EditValue(out, id(2), budget.FieldMaterialUnitCost, "7.25")
	require.NoError(t, err)
	assertDec(t, "7.25", find(t, out, id(2)).MaterialUnitCost)

	out, err = budget.EditValue(out, id(2), budget.FieldLaborUnitCost, "")
	require.NoError(t, err)
	assertDec(t, "0", find(t, out, id(2)).LaborUnitCost)
}

func TestEditValue_NotANumber(t *testing.T) {
	items := sampleBudget()

	out, err := budget.EditValue(items, id(2), budget.FieldQuantity, "ten")

	assert.ErrorIs(t, err, budget.ErrInvalidValue)
	assert.True(t, budget.EqualItems(items, out))
}

func TestEditValue_CostOnParentRejected(t *testing.T) {
	for _, f := range []budget.Field{
		budget.FieldQuantity, budget.FieldMaterialUnitCost, budget.FieldLaborUnitCost, budget.FieldUnit,
	} {
		t.Run(string(f), func(t *testing.T) {
			_, err := budget.EditValue(sampleBudget(), id(1), f, "3")

			requireRejected(t, err)
		})
	}
}

func TestEditValue_ParentTextFieldsAllowed(t *testing.T) {
	out, err := budget.EditValue(sampleBudget(), id(1), budget.FieldCode, "SINAPI-01")

	require.NoError(t, err)
	assert.Equal(t, "SINAPI-01", find(t, out, id(1)).Code)
}

func TestEditValue_SameValueIsNoChange(t *testing.T) {
	items := sampleBudget()

	out, err := budget.EditValue(items, id(2), budget.FieldQuantity, "10.00")

	assert.ErrorIs(t, err, budget.ErrNoChange)
	assert.True(t, budget.EqualItems(items, out))
}

func TestEditValue_UnknownItemAndField(t *testing.T) {
	_, err := budget.EditValue(sampleBudget(), id(99), budget.FieldCode, "x")
	assert.True(t, budget.IsNotFound(err))

	_, err = budget.EditValue(sampleBudget(), id(2), budget.Field("level"), "3")
	assert.ErrorIs(t, err, budget.ErrInvalidField)
}

func TestEditValue_StructureUnaffected(t *testing.T) {
	// GIVEN: Descendant sets before a pure value edit
	items := sampleBudget()
	before := map[budget.ItemID]budget.IDSet{}
	for _, it := range items {
		before[it.ID] = budget.DescendantIDs(items, it.ID)
	}

	// WHEN
	out, err := budget.EditValue(items, id(2), budget.FieldDescription, "renamed")
	require.NoError(t, err)

	// THEN
	for _, it := range out {
		assert.Equal(t, before[it.ID], budget.DescendantIDs(out, it.ID))
	}
	assert.Equal(t, levels(items), levels(out))
}

// =============================================================================
// REPARENT BY LEVEL
// =============================================================================

func TestReparentByLevel_UnderExistingParent(t *testing.T) {
	// GIVEN: Limpeza (3) moves to 2.x, under Estrutura
	items := sampleBudget()
	before := budget.Clone(items)

	// WHEN
	out, err := budget.ReparentByLevel(items, id(6), "2.2")

	// THEN: Placed after Pilares, the last child of Estrutura
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, order(out))
	assert.Equal(t, "2.2", find(t, out, id(6)).Level)
	assert.Equal(t, id(4), find(t, out, id(6)).ParentID)
	requireUntouched(t, before, items)
}

func TestReparentByLevel_AfterLastDescendant(t *testing.T) {
	out, err := budget.ReparentByLevel(sampleBudget(), id(2), "2.9")

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4, 5, 2, 6}, order(out))
	assert.Equal(t, map[int64]string{1: "1", 3: "1.1", 4: "2", 5: "2.1", 2: "2.2", 6: "3"}, levels(out))
}

func TestReparentByLevel_ToRoot(t *testing.T) {
	out, err := budget.ReparentByLevel(sampleBudget(), id(5), "4")

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 6, 5}, order(out))
	assert.Equal(t, "4", find(t, out, id(5)).Level)
	assert.True(t, find(t, out, id(5)).IsRoot())
}

func TestReparentByLevel_UnderLeafClearsItsCosts(t *testing.T) {
	out, err := budget.ReparentByLevel(sampleBudget(), id(6), "1.1.1")

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 6, 3, 4, 5}, order(out))
	assertNoCosts(t, find(t, out, id(2)))
	assert.Equal(t, "1.1.1", find(t, out, id(6)).Level)
}

func TestReparentByLevel_MovesSubtree(t *testing.T) {
	out, err := budget.ReparentByLevel(sampleBudget(), id(4), "1.3")

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, order(out))
	assert.Equal(t, map[int64]string{1: "1", 2: "1.1", 3: "1.2", 4: "1.3", 5: "1.3.1", 6: "2"}, levels(out))
}

func TestReparentByLevel_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		id    int64
		level string
	}{
		{"unchanged level", 2, "1.1"},
		{"into own subtree", 1, "1.1.1"},
		{"onto itself", 4, "2.1"},
		{"unknown parent level", 2, "9.1"},
		{"malformed", 2, "1.a"},
		{"empty", 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := sampleBudget()

			out, err := budget.ReparentByLevel(items, id(tt.id), tt.level)

			requireRejected(t, err)
			assert.True(t, budget.EqualItems(items, out))
		})
	}
}

// =============================================================================
// INDENT / OUTDENT
// =============================================================================

func TestIndent_UnderPrecedingLeafSibling(t *testing.T) {
	// GIVEN: Concreto (1.2) follows leaf sibling Escavação (1.1)
	out, err := budget.Indent(sampleBudget(), id(3))

	// THEN: Escavação becomes an expanded group without costs
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, order(out))
	assert.Equal(t, "1.1.1", find(t, out, id(3)).Level)
	newParent := find(t, out, id(2))
	assertNoCosts(t, newParent)
	assert.True(t, newParent.Expanded)
}

func TestIndent_UnderPrecedingGroupGoesLast(t *testing.T) {
	out, err := budget.Indent(sampleBudget(), id(4))

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, order(out))
	assert.Equal(t, map[int64]string{1: "1", 2: "1.1", 3: "1.2", 4: "1.3", 5: "1.3.1", 6: "2"}, levels(out))
}

func TestIndent_FirstSiblingIsNoChange(t *testing.T) {
	items := sampleBudget()

	for _, n := range []int64{1, 2, 5} {
		out, err := budget.Indent(items, id(n))

		assert.ErrorIs(t, err, budget.ErrNoChange)
		assert.True(t, budget.EqualItems(items, out))
	}
}

func TestOutdent_AfterFormerParentSubtree(t *testing.T) {
	out, err := budget.Outdent(sampleBudget(), id(2))

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2, 4, 5, 6}, order(out))
	assert.Equal(t, map[int64]string{1: "1", 3: "1.1", 2: "2", 4: "3", 5: "3.1", 6: "4"}, levels(out))
}

func TestOutdent_RootIsNoChange(t *testing.T) {
	_, err := budget.Outdent(sampleBudget(), id(6))

	assert.ErrorIs(t, err, budget.ErrNoChange)
}

func TestIndentOutdent_Inverse(t *testing.T) {
	// GIVEN: Estrutura is a root with a preceding root sibling
	items := sampleBudget()

	// WHEN: Indent then outdent
	indented, err := budget.Indent(items, id(4))
	require.NoError(t, err)
	restored, err := budget.Outdent(indented, id(4))
	require.NoError(t, err)

	// THEN
	assert.True(t, budget.EqualItems(items, restored))
}

// =============================================================================
// DRAG
// =============================================================================

func TestDragReparent_BecomesSiblingAfterTarget(t *testing.T) {
	out, err := budget.DragReparent(sampleBudget(), id(6), id(2))

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 6, 3, 4, 5}, order(out))
	assert.Equal(t, id(1), find(t, out, id(6)).ParentID)
	assert.Equal(t, "1.2", find(t, out, id(6)).Level)
	assert.Equal(t, "1.3", find(t, out, id(3)).Level)
}

func TestDragReparent_MovesSubtreeAfterTargetSubtree(t *testing.T) {
	out, err := budget.DragReparent(sampleBudget(), id(1), id(4))

	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5, 1, 2, 3, 6}, order(out))
	assert.Equal(t, map[int64]string{4: "1", 5: "1.1", 1: "2", 2: "2.1", 3: "2.2", 6: "3"}, levels(out))
}

func TestDragReparent_Rejections(t *testing.T) {
	items := sampleBudget()

	_, err := budget.DragReparent(items, id(1), id(1))
	requireRejected(t, err)

	_, err = budget.DragReparent(items, id(1), id(3))
	requireRejected(t, err)

	_, err = budget.DragReparent(items, id(1), id(99))
	assert.True(t, budget.IsNotFound(err))
}

// =============================================================================
// INSERT / DELETE / DUPLICATE
// =============================================================================

func TestInsertAfter_Leaf(t *testing.T) {
	newID := budget.NewItemID()

	out, err := budget.InsertAfter(sampleBudget(), id(2), newID)

	require.NoError(t, err)
	require.Len(t, out, 7)
	assert.Equal(t, newID, out[2].ID)
	assert.Equal(t, id(1), out[2].ParentID)
	assert.Equal(t, "1.2", out[2].Level)
	assert.Equal(t, budget.PlaceholderDescription, out[2].Description)
	assertNoCosts(t, out[2])
	assert.Equal(t, "1.3", find(t, out, id(3)).Level)
}

func TestInsertAfter_GroupLandsAfterItsSubtree(t *testing.T) {
	newID := budget.NewItemID()

	out, err := budget.InsertAfter(sampleBudget(), id(1), newID)

	require.NoError(t, err)
	assert.Equal(t, newID, out[3].ID)
	assert.Equal(t, "2", out[3].Level)
	assert.Equal(t, "3", find(t, out, id(4)).Level)
}

func TestInsertAfter_GeneratesID(t *testing.T) {
	out, err := budget.InsertAfter(sampleBudget(), id(6), budget.ItemID{})

	require.NoError(t, err)
	assert.False(t, out[6].ID.IsZero())
	assert.False(t, out[6].ID.IsSeq())
}

func TestAppendRoot_EmptyBudget(t *testing.T) {
	out, err := budget.AppendRoot(nil, budget.ItemID{})

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].Level)
	assert.True(t, out[0].IsRoot())
}

func TestDeleteOne_CascadesAndRenumbers(t *testing.T) {
	// GIVEN: Parent 5 with descendants {6, 7, 12}, between roots 1 and 8
	items := budget.NormalizeHierarchy([]budget.Item{
		leaf(1, 0, "first", "un", "1", "1", "0"),
		group(5, 0, "doomed"),
		group(6, 5, "child"),
		leaf(7, 6, "grandchild", "un", "1", "1", "0"),
		leaf(12, 5, "child 2", "un", "1", "1", "0"),
		group(8, 0, "last"),
		leaf(9, 8, "last child", "un", "1", "1", "0"),
	})

	// WHEN
	out, err := budget.DeleteOne(items, id(5))

	// THEN: The subtree is gone and levels are contiguous
	require.NoError(t, err)
	for _, gone := range []int64{5, 6, 7, 12} {
		assert.NotContains(t, order(out), gone)
	}
	assert.Equal(t, map[int64]string{1: "1", 8: "2", 9: "2.1"}, levels(out))
	assert.NoError(t, budget.ValidateHierarchy(out))
}

func TestDeleteMany_IgnoresMissingIDs(t *testing.T) {
	out, err := budget.DeleteMany(sampleBudget(), id(99), id(3), id(5))

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4, 6}, order(out))
	assert.Equal(t, "3", find(t, out, id(6)).Level)
}

func TestDeleteMany_NothingToDelete(t *testing.T) {
	items := sampleBudget()

	out, err := budget.DeleteMany(items, id(99))

	assert.ErrorIs(t, err, budget.ErrNoChange)
	assert.True(t, budget.EqualItems(items, out))
}

func TestDelete_LastChildTurnsParentIntoLeaf(t *testing.T) {
	out, err := budget.DeleteOne(sampleBudget(), id(5))

	require.NoError(t, err)
	row, ok := budget.Aggregate(out).Row(id(4))
	require.True(t, ok)
	assert.False(t, row.IsParent)
}

func TestDuplicate_Leaf(t *testing.T) {
	newID := budget.NewItemID()

	out, err := budget.Duplicate(sampleBudget(), id(2), newID)

	require.NoError(t, err)
	dup := out[2]
	assert.Equal(t, newID, dup.ID)
	assert.Equal(t, "Escavação"+budget.CopySuffix, dup.Description)
	assert.False(t, dup.Expanded)
	assert.Equal(t, "1.2", dup.Level)
	assertDec(t, "10", dup.Quantity)
	assertDec(t, "5", dup.MaterialUnitCost)
	assert.Equal(t, "1.3", find(t, out, id(3)).Level)
}

func TestDuplicate_GroupDoesNotCopyChildren(t *testing.T) {
	newID := budget.NewItemID()

	out, err := budget.Duplicate(sampleBudget(), id(1), newID)

	require.NoError(t, err)
	require.Len(t, out, 7)
	assert.Equal(t, newID, out[3].ID)
	assert.Equal(t, "2", out[3].Level)
	assert.Empty(t, budget.DescendantIDs(out, newID))
}

// =============================================================================
// EXPAND / COLLAPSE
// =============================================================================

func TestToggleExpand_NotStructural(t *testing.T) {
	items := sampleBudget()

	out, err := budget.ToggleExpand(items, id(1))

	require.NoError(t, err)
	assert.False(t, find(t, out, id(1)).Expanded)
	assert.True(t, find(t, items, id(1)).Expanded)
	assert.Equal(t, levels(items), levels(out))

	_, err = budget.ToggleExpand(items, id(42))
	assert.True(t, budget.IsNotFound(err))
}

func TestSetExpandedAll(t *testing.T) {
	out, err := budget.SetExpandedAll(sampleBudget(), false)
	require.NoError(t, err)
	assert.False(t, find(t, out, id(1)).Expanded)
	assert.False(t, find(t, out, id(4)).Expanded)

	_, err = budget.SetExpandedAll(out, false)
	assert.ErrorIs(t, err, budget.ErrNoChange)
}
