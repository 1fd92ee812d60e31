/*
aggregate.go - Bottom-up cost rollup

PURPOSE:
  Turns the flat item list into display rows: per-item unit and total
  costs, subtree rollups for grouping rows, grand totals, and each row's
  share of the grand total.

ALGORITHM:
  1. Build the child index once.
  2. For each root, post-order traversal:
     - a leaf returns quantity x unit costs
     - a parent returns the sum of what its children returned
     Every node records its sums in a side map keyed by slice position.
  3. Grand totals are the sums over the roots.
  4. LevelPercent = LevelTotal / GrandTotal x 100 (0 when GrandTotal is 0).

PROJECTION, NOT STATE:
  Nothing here is persisted. Aggregate is re-run after every mutation;
  a caller that caches a Summary must drop it when the list changes.

SEE ALSO:
  - hierarchy.go: childIndex
  - columns.go: AutoSize reads the formatted row values
*/
package budget

import "github.com/shopspring/decimal"

// Row is an Item plus its derived, display-ready values.
type Row struct {
	Item

	IsParent bool
	Depth    int // 0 for roots

	MaterialPlusLaborUnit  decimal.Decimal // leaves only
	MaterialTotal          decimal.Decimal
	LaborTotal             decimal.Decimal
	MaterialPlusLaborTotal decimal.Decimal
	LevelTotal             decimal.Decimal
	LevelPercent           decimal.Decimal
}

// Summary is the aggregated view of a budget.
type Summary struct {
	Rows               []Row // same order as the input list
	GrandTotal         decimal.Decimal
	GrandTotalMaterial decimal.Decimal
	GrandTotalLabor    decimal.Decimal
}

type subtotal struct {
	material decimal.Decimal
	labor    decimal.Decimal
}

func (s subtotal) add(o subtotal) subtotal {
	return subtotal{material: s.material.Add(o.material), labor: s.labor.Add(o.labor)}
}

// Aggregate computes derived fields for every item.
func Aggregate(items []Item) Summary {
	rows := make([]Row, len(items))
	for i, it := range items {
		rows[i] = Row{Item: it}
	}

	idx := buildChildIndex(items)
	parents := parentSet(items)
	visited := make([]bool, len(items))

	var rollup func(i, depth int) subtotal
	rollup = func(i, depth int) subtotal {
		visited[i] = true
		row := &rows[i]
		row.Depth = depth
		row.IsParent = parents.Has(row.ID)

		var sum subtotal
		if row.IsParent {
			sum = subtotal{material: decimal.Zero, labor: decimal.Zero}
			for _, ci := range idx[row.ID] {
				if visited[ci] {
					continue
				}
				sum = sum.add(rollup(ci, depth+1))
			}
			row.MaterialPlusLaborUnit = decimal.Zero
		} else {
			sum = subtotal{
				material: row.Quantity.Mul(row.MaterialUnitCost),
				labor:    row.Quantity.Mul(row.LaborUnitCost),
			}
			row.MaterialPlusLaborUnit = row.MaterialUnitCost.Add(row.LaborUnitCost)
		}

		row.MaterialTotal = sum.material
		row.LaborTotal = sum.labor
		row.MaterialPlusLaborTotal = sum.material.Add(sum.labor)
		row.LevelTotal = row.MaterialPlusLaborTotal
		return sum
	}

	grand := subtotal{material: decimal.Zero, labor: decimal.Zero}
	for _, i := range idx[ItemID{}] {
		if !visited[i] {
			grand = grand.add(rollup(i, 0))
		}
	}

	// Rows on a parent cycle are unreachable from the roots; give them
	// their own values so the summary stays total. Repair prevents this
	// for anything that went through Load or Import.
	for i := range rows {
		if !visited[i] {
			rollup(i, 0)
		}
	}

	summary := Summary{
		Rows:               rows,
		GrandTotalMaterial: grand.material,
		GrandTotalLabor:    grand.labor,
		GrandTotal:         grand.material.Add(grand.labor),
	}
	for i := range summary.Rows {
		summary.Rows[i].LevelPercent = percentOf(summary.Rows[i].LevelTotal, summary.GrandTotal)
	}
	return summary
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole)
}

// Row returns the row for id.
func (s Summary) Row(id ItemID) (Row, bool) {
	for _, r := range s.Rows {
		if r.ID == id {
			return r, true
		}
	}
	return Row{}, false
}

// Visible returns the rows a tree table shows: every row whose ancestors
// are all expanded.
func (s Summary) Visible() []Row {
	items := make([]Item, len(s.Rows))
	for i, r := range s.Rows {
		items[i] = r.Item
	}
	pos := positions(items)

	hidden := make(map[int]bool, len(s.Rows))
	var isHidden func(i int, steps int) bool
	isHidden = func(i int, steps int) bool {
		if h, ok := hidden[i]; ok {
			return h
		}
		h := false
		if p, ok := pos[s.Rows[i].ParentID]; ok && steps <= len(s.Rows) {
			h = !s.Rows[p].Expanded || isHidden(p, steps+1)
		}
		hidden[i] = h
		return h
	}

	out := make([]Row, 0, len(s.Rows))
	for i := range s.Rows {
		if !isHidden(i, 0) {
			out = append(out, s.Rows[i])
		}
	}
	return out
}
