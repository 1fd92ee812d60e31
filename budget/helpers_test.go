package budget_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func id(n int64) budget.ItemID { return budget.SeqID(n) }

// leaf builds a service item. parent 0 means root.
func leaf(n, parent int64, desc, unit, qty, mat, labor string) budget.Item {
	return budget.Item{
		ID:               id(n),
		ParentID:         id(parent),
		Description:      desc,
		Unit:             unit,
		Quantity:         budget.Dec(qty),
		MaterialUnitCost: budget.Dec(mat),
		LaborUnitCost:    budget.Dec(labor),
	}
}

// group builds a grouping item. parent 0 means root.
func group(n, parent int64, desc string) budget.Item {
	return budget.Item{ID: id(n), ParentID: id(parent), Description: desc, Expanded: true}
}

// sampleBudget is:
//
//	1   Fundação        (1)
//	1.1   Escavação     (2)
//	1.2   Concreto      (3)
//	2   Estrutura       (4)
//	2.1   Pilares       (5)
//	3   Limpeza         (6)
func sampleBudget() []budget.Item {
	return budget.NormalizeHierarchy([]budget.Item{
		group(1, 0, "Fundação"),
		leaf(2, 1, "Escavação", "m3", "10", "5", "2"),
		leaf(3, 1, "Concreto", "m3", "4", "300", "80"),
		group(4, 0, "Estrutura"),
		leaf(5, 4, "Pilares", "un", "8", "150", "60"),
		leaf(6, 0, "Limpeza", "vb", "1", "0", "500"),
	})
}

func order(items []budget.Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID.Seq()
	}
	return out
}

func levels(items []budget.Item) map[int64]string {
	out := make(map[int64]string, len(items))
	for _, it := range items {
		out[it.ID.Seq()] = it.Level
	}
	return out
}

func find(t *testing.T, items []budget.Item, n budget.ItemID) budget.Item {
	t.Helper()
	for _, it := range items {
		if it.ID == n {
			return it
		}
	}
	t.Fatalf("item %s not found", n)
	return budget.Item{}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, budget.Dec(want).Equal(got), "want %s, got %s", want, got)
}

func assertNoCosts(t *testing.T, it budget.Item) {
	t.Helper()
	assert.Emptyf(t, it.Unit, "unit of %s", it.ID)
	assertDec(t, "0", it.Quantity)
	assertDec(t, "0", it.MaterialUnitCost)
	assertDec(t, "0", it.LaborUnitCost)
}
