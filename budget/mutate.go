/*
mutate.go - Structural and value edits on the item list

PURPOSE:
  Every way the budget tree can change: value edits, reparenting by level
  label, indent/outdent, drag and drop, insert, delete, duplicate and
  expand/collapse.

CONTRACT:
  - Pure: the input slice is never modified; a new slice is returned.
  - Structural operations end with NormalizeHierarchy.
  - A valid operation with nothing to do returns (input, ErrNoChange).
  - An operation that would break an invariant returns
    (input, *RejectedError). The input stays usable either way.

PLACEMENT:
  A moved item always travels with its whole subtree, in its original
  relative order. Moved and inserted blocks land right after the end of
  the subtree they are placed behind, so slice order stays display order.

SEE ALSO:
  - hierarchy.go: NormalizeHierarchy, DescendantIDs
  - session.go: Records each successful mutation in the history
*/
package budget

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// PlaceholderDescription is the description of a freshly inserted item.
	PlaceholderDescription = "New item"

	// CopySuffix is appended to the description of a duplicated item.
	CopySuffix = " (copy)"
)

// Mutation is an edit that a Session applies to its working list. It gets
// its own copy of the list; returning it unchanged means no change.
type Mutation func(items []Item) ([]Item, error)

// =============================================================================
// BLOCK HELPERS
// =============================================================================

// detach splits items into the subtree rooted at id and everything else.
// Both results keep the input order and never share its backing array.
func detach(items []Item, id ItemID) (rest, block []Item) {
	desc := DescendantIDs(items, id)
	rest = make([]Item, 0, len(items))
	for _, it := range items {
		if it.ID == id || desc.Has(it.ID) {
			block = append(block, it)
		} else {
			rest = append(rest, it)
		}
	}
	return rest, block
}

// subtreeEnd returns the position of the last item of id's subtree, which
// is id's own position when it has no descendants. -1 if id is missing.
func subtreeEnd(items []Item, id ItemID) int {
	i := indexOf(items, id)
	if i < 0 {
		return -1
	}
	desc := DescendantIDs(items, id)
	end := i
	for j := i + 1; j < len(items); j++ {
		if desc.Has(items[j].ID) {
			end = j
		}
	}
	return end
}

func insertAt(items []Item, pos int, block ...Item) []Item {
	out := make([]Item, 0, len(items)+len(block))
	out = append(out, items[:pos]...)
	out = append(out, block...)
	out = append(out, items[pos:]...)
	return out
}

func setParent(block []Item, id, parent ItemID) {
	for i := range block {
		if block[i].ID == id {
			block[i].ParentID = parent
			return
		}
	}
}

func indexByLevel(items []Item, level string) int {
	for i := range items {
		if items[i].Level == level {
			return i
		}
	}
	return -1
}

// validLevel accepts dot-separated positive integers: "3", "2.1.4".
func validLevel(level string) bool {
	if level == "" {
		return false
	}
	for _, seg := range strings.Split(level, ".") {
		n, err := strconv.Atoi(seg)
		if err != nil || n < 1 {
			return false
		}
	}
	return true
}

func noChange(op string, id ItemID) error {
	return fmt.Errorf("%s %s: %w", op, id, ErrNoChange)
}

// =============================================================================
// VALUE EDITS
// =============================================================================

// EditValue replaces one field of one item. Numeric fields take decimal
// text. Setting the unit to "" or "-" also zeroes quantity and both unit
// costs. Grouping rows only accept description, source and code.
func EditValue(items []Item, id ItemID, field Field, value string) ([]Item, error) {
	const op = "edit"
	i := indexOf(items, id)
	if i < 0 {
		return items, notFound(op, id)
	}
	isParent := parentSet(items).Has(id)

	out := Clone(items)
	it := &out[i]
	switch field {
	case FieldDescription:
		v := strings.TrimSpace(value)
		if v == "" {
			return items, reject(op, id, "description is required")
		}
		it.Description = v
	case FieldSource:
		it.Source = strings.TrimSpace(value)
	case FieldCode:
		it.Code = strings.TrimSpace(value)
	case FieldUnit:
		v := strings.TrimSpace(value)
		if v == "" || v == "-" {
			it.clearCosts()
			break
		}
		if isParent {
			return items, reject(op, id, "grouping rows have no unit")
		}
		it.Unit = v
	case FieldQuantity, FieldMaterialUnitCost, FieldLaborUnitCost:
		if isParent {
			return items, reject(op, id, "grouping rows have no %s; their totals are aggregated", field)
		}
		d, err := ParseNumber(value)
		if err != nil {
			return items, fmt.Errorf("%s %s: %w", op, field, err)
		}
		switch field {
		case FieldQuantity:
			it.Quantity = d
		case FieldMaterialUnitCost:
			it.MaterialUnitCost = d
		default:
			it.LaborUnitCost = d
		}
	default:
		return items, fmt.Errorf("%s: %w: %q", op, ErrInvalidField, field)
	}

	if out[i].Equal(items[i]) {
		return items, noChange(op, id)
	}
	return out, nil
}

// ToggleExpand flips the display-only Expanded flag. Not structural.
func ToggleExpand(items []Item, id ItemID) ([]Item, error) {
	i := indexOf(items, id)
	if i < 0 {
		return items, notFound("toggle", id)
	}
	out := Clone(items)
	out[i].Expanded = !out[i].Expanded
	return out, nil
}

// SetExpandedAll expands or collapses every grouping row.
func SetExpandedAll(items []Item, expanded bool) ([]Item, error) {
	parents := parentSet(items)
	out := Clone(items)
	changed := false
	for i := range out {
		if parents.Has(out[i].ID) && out[i].Expanded != expanded {
			out[i].Expanded = expanded
			changed = true
		}
	}
	if !changed {
		return items, fmt.Errorf("expand all: %w", ErrNoChange)
	}
	return out, nil
}

// =============================================================================
// REPARENTING
// =============================================================================

// ReparentByLevel moves id (with its subtree) under the item whose level is
// the prefix of newLevel. A level without a dot moves the item to the root.
// The last segment of newLevel is not a position: the block is placed after
// the new parent's last descendant, or at the end of the list for a root.
func ReparentByLevel(items []Item, id ItemID, newLevel string) ([]Item, error) {
	const op = "reparent"
	i := indexOf(items, id)
	if i < 0 {
		return items, notFound(op, id)
	}
	newLevel = strings.TrimSpace(newLevel)
	if !validLevel(newLevel) {
		return items, reject(op, id, "malformed level %q", newLevel)
	}
	if newLevel == items[i].Level {
		return items, reject(op, id, "level unchanged")
	}

	var parent ItemID
	if prefix := ParentLevel(newLevel); prefix != "" {
		p := indexByLevel(items, prefix)
		if p < 0 {
			return items, reject(op, id, "no item at level %q", prefix)
		}
		parent = items[p].ID
		if parent == id || DescendantIDs(items, id).Has(parent) {
			return items, reject(op, id, "cannot move an item below itself")
		}
	}

	rest, block := detach(items, id)
	setParent(block, id, parent)
	pos := len(rest)
	if !parent.IsZero() {
		pos = subtreeEnd(rest, parent) + 1
	}
	return NormalizeHierarchy(insertAt(rest, pos, block...)), nil
}

// Indent makes id the last child of its nearest preceding sibling. A
// sibling that was a leaf loses its own costs and is expanded.
func Indent(items []Item, id ItemID) ([]Item, error) {
	const op = "indent"
	i := indexOf(items, id)
	if i < 0 {
		return items, notFound(op, id)
	}
	prev := -1
	for j := i - 1; j >= 0; j-- {
		if items[j].ParentID == items[i].ParentID {
			prev = j
			break
		}
	}
	if prev < 0 {
		return items, noChange(op, id)
	}

	newParent := items[prev].ID
	wasLeaf := !parentSet(items).Has(newParent)

	rest, block := detach(items, id)
	setParent(block, id, newParent)
	if wasLeaf {
		rest[indexOf(rest, newParent)].Expanded = true
	}
	pos := subtreeEnd(rest, newParent) + 1
	return NormalizeHierarchy(insertAt(rest, pos, block...)), nil
}

// Outdent makes id a sibling of its former parent, placed after the end of
// that parent's subtree.
func Outdent(items []Item, id ItemID) ([]Item, error) {
	const op = "outdent"
	i := indexOf(items, id)
	if i < 0 {
		return items, notFound(op, id)
	}
	p := indexOf(items, items[i].ParentID)
	if p < 0 {
		return items, noChange(op, id)
	}
	oldParent := items[p].ID
	grandparent := items[p].ParentID

	rest, block := detach(items, id)
	setParent(block, id, grandparent)
	pos := subtreeEnd(rest, oldParent) + 1
	return NormalizeHierarchy(insertAt(rest, pos, block...)), nil
}

// DragReparent drops dragged onto target: dragged becomes target's sibling,
// placed right after target's subtree.
func DragReparent(items []Item, dragged, target ItemID) ([]Item, error) {
	const op = "drag"
	if dragged == target {
		return items, reject(op, dragged, "cannot drop an item on itself")
	}
	if indexOf(items, dragged) < 0 {
		return items, notFound(op, dragged)
	}
	t := indexOf(items, target)
	if t < 0 {
		return items, notFound(op, target)
	}
	if DescendantIDs(items, dragged).Has(target) {
		return items, reject(op, dragged, "cannot drop an item inside its own subtree")
	}
	newParent := items[t].ParentID

	rest, block := detach(items, dragged)
	setParent(block, dragged, newParent)
	pos := subtreeEnd(rest, target) + 1
	return NormalizeHierarchy(insertAt(rest, pos, block...)), nil
}

// =============================================================================
// CREATE AND DELETE
// =============================================================================

// InsertAfter adds a placeholder leaf as the next sibling of afterID.
// A zero newID gets a fresh UUID.
func InsertAfter(items []Item, afterID, newID ItemID) ([]Item, error) {
	const op = "insert"
	a := indexOf(items, afterID)
	if a < 0 {
		return items, notFound(op, afterID)
	}
	if newID.IsZero() {
		newID = NewItemID()
	}
	item := Item{ID: newID, ParentID: items[a].ParentID, Description: PlaceholderDescription}
	// The next sibling slot is after afterID's descendants; inserting right
	// after afterID would take over its children in display order.
	pos := subtreeEnd(items, afterID) + 1
	return NormalizeHierarchy(insertAt(items, pos, item)), nil
}

// AppendRoot adds a placeholder leaf at the end of the root list. It is
// how the first item of an empty budget is created.
func AppendRoot(items []Item, newID ItemID) ([]Item, error) {
	if newID.IsZero() {
		newID = NewItemID()
	}
	item := Item{ID: newID, Description: PlaceholderDescription}
	return NormalizeHierarchy(insertAt(items, len(items), item)), nil
}

// DeleteOne removes id and all of its descendants.
func DeleteOne(items []Item, id ItemID) ([]Item, error) {
	return DeleteMany(items, id)
}

// DeleteMany removes every id and all of their descendants. Ids that no
// longer exist are ignored.
func DeleteMany(items []Item, ids ...ItemID) ([]Item, error) {
	idx := buildChildIndex(items)
	doomed := make(IDSet)
	for _, id := range ids {
		if indexOf(items, id) < 0 {
			continue
		}
		doomed.Add(id)
		for d := range descendantsWith(items, idx, id) {
			doomed.Add(d)
		}
	}
	if len(doomed) == 0 {
		return items, fmt.Errorf("delete: %w", ErrNoChange)
	}

	out := make([]Item, 0, len(items)-len(doomed))
	for _, it := range items {
		if !doomed.Has(it.ID) {
			out = append(out, it)
		}
	}
	return NormalizeHierarchy(out), nil
}

// Duplicate copies id as its next sibling with a new id, a suffixed
// description and Expanded=false. Children are not copied.
// A zero newID gets a fresh UUID.
func Duplicate(items []Item, id, newID ItemID) ([]Item, error) {
	const op = "duplicate"
	i := indexOf(items, id)
	if i < 0 {
		return items, notFound(op, id)
	}
	if newID.IsZero() {
		newID = NewItemID()
	}
	dup := items[i]
	dup.ID = newID
	dup.Description = items[i].Description + CopySuffix
	dup.Expanded = false
	// Same slot as InsertAfter: after the original's descendants.
	pos := subtreeEnd(items, id) + 1
	return NormalizeHierarchy(insertAt(items, pos, dup)), nil
}
