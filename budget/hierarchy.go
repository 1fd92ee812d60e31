/*
hierarchy.go - Pure functions over the flat parent-linked item list

PURPOSE:
  The tree exists only as ParentID links inside one slice. These helpers
  derive structure from that slice: descendants, ancestry, level labels,
  and the rule that grouping rows carry no direct cost.

LEVEL LABELS:
  Roots are "1", "2", ...; the children of "2" are "2.1", "2.2", ...
  Siblings are numbered in slice order. Renumbering never reorders the
  slice - array order is the canonical display order.

WHEN TO NORMALIZE:
  NormalizeHierarchy runs after every structural mutation (reparent,
  indent, outdent, insert, delete, duplicate, import). Pure value edits
  skip it.

SEE ALSO:
  - mutate.go: Calls NormalizeHierarchy
  - aggregate.go: Uses the same child index for rollups
*/
package budget

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// CHILD INDEX
// =============================================================================

// childIndex maps a parent id to the positions of its children, in slice
// order. Roots, and items whose parent is missing, are listed under the
// zero id.
type childIndex map[ItemID][]int

func buildChildIndex(items []Item) childIndex {
	present := make(IDSet, len(items))
	for _, it := range items {
		present.Add(it.ID)
	}
	idx := make(childIndex)
	for i, it := range items {
		parent := it.ParentID
		if !present.Has(parent) {
			parent = ItemID{}
		}
		idx[parent] = append(idx[parent], i)
	}
	return idx
}

// positions maps ids to their slice index.
func positions(items []Item) map[ItemID]int {
	pos := make(map[ItemID]int, len(items))
	for i, it := range items {
		pos[it.ID] = i
	}
	return pos
}

func indexOf(items []Item, id ItemID) int {
	if id.IsZero() {
		return -1
	}
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// parentSet returns the ids that are the parent of at least one other item.
func parentSet(items []Item) IDSet {
	present := make(IDSet, len(items))
	for _, it := range items {
		present.Add(it.ID)
	}
	parents := make(IDSet)
	for _, it := range items {
		if it.ParentID.IsZero() || it.ParentID == it.ID || !present.Has(it.ParentID) {
			continue
		}
		parents.Add(it.ParentID)
	}
	return parents
}

// =============================================================================
// DESCENDANTS AND ANCESTRY
// =============================================================================

// DescendantIDs returns every item transitively below id. id itself is
// never included.
func DescendantIDs(items []Item, id ItemID) IDSet {
	out := make(IDSet)
	if id.IsZero() {
		return out
	}
	return descendantsWith(items, buildChildIndex(items), id)
}

func descendantsWith(items []Item, idx childIndex, id ItemID) IDSet {
	out := make(IDSet)
	stack := []ItemID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, ci := range idx[cur] {
			cid := items[ci].ID
			if cid == id || out.Has(cid) {
				continue
			}
			out.Add(cid)
			stack = append(stack, cid)
		}
	}
	return out
}

// IsAncestor reports whether ancestor appears on id's parent chain.
func IsAncestor(items []Item, ancestor, id ItemID) bool {
	if ancestor.IsZero() {
		return false
	}
	pos := positions(items)
	i, ok := pos[id]
	for steps := 0; ok && steps <= len(items); steps++ {
		parent := items[i].ParentID
		if parent.IsZero() {
			return false
		}
		if parent == ancestor {
			return true
		}
		i, ok = pos[parent]
	}
	return false
}

// ParentLevel strips the last segment of a level label: "2.1.3" -> "2.1",
// "4" -> "".
func ParentLevel(level string) string {
	level = strings.TrimSpace(level)
	if i := strings.LastIndex(level, "."); i >= 0 {
		return level[:i]
	}
	return ""
}

// =============================================================================
// NORMALIZATION
// =============================================================================

// RegenerateLevels renumbers every item depth-first from the roots.
// The returned slice has the same order as the input.
func RegenerateLevels(items []Item) []Item {
	out := Clone(items)
	idx := buildChildIndex(out)
	visited := make([]bool, len(out))

	var walk func(parent ItemID, prefix string)
	walk = func(parent ItemID, prefix string) {
		n := 0
		for _, i := range idx[parent] {
			if visited[i] {
				continue
			}
			visited[i] = true
			n++
			level := strconv.Itoa(n)
			if prefix != "" {
				level = prefix + "." + level
			}
			out[i].Level = level
			walk(out[i].ID, level)
		}
	}
	walk(ItemID{}, "")
	return out
}

// EnforceParentInvariant clears unit, quantity and unit costs on every item
// that has at least one child. Leaves are untouched.
func EnforceParentInvariant(items []Item) []Item {
	out := Clone(items)
	parents := parentSet(out)
	for i := range out {
		if parents.Has(out[i].ID) {
			out[i].clearCosts()
		}
	}
	return out
}

// NormalizeHierarchy applies EnforceParentInvariant and RegenerateLevels.
func NormalizeHierarchy(items []Item) []Item {
	return RegenerateLevels(EnforceParentInvariant(items))
}

// =============================================================================
// VALIDATION AND REPAIR
// =============================================================================

// Repair makes untrusted input structurally valid: parent links to missing
// items are cleared, and every cycle is broken by detaching one of its
// members to the root. Items are otherwise unchanged; call
// NormalizeHierarchy afterwards.
func Repair(items []Item) []Item {
	out := Clone(items)
	present := make(IDSet, len(out))
	for _, it := range out {
		present.Add(it.ID)
	}
	for i := range out {
		if out[i].ParentID == out[i].ID || !present.Has(out[i].ParentID) {
			out[i].ParentID = ItemID{}
		}
	}

	for {
		reached := reachable(out, buildChildIndex(out))
		first := -1
		for i := range out {
			if !reached[i] {
				first = i
				break
			}
		}
		if first < 0 {
			return out
		}

		// Climb until a position repeats; that position lies on the cycle.
		pos := positions(out)
		seen := make(map[int]bool)
		cur := first
		for !seen[cur] {
			seen[cur] = true
			cur = pos[out[cur].ParentID]
		}
		out[cur].ParentID = ItemID{}
	}
}

func reachable(items []Item, idx childIndex) []bool {
	reached := make([]bool, len(items))
	stack := append([]int(nil), idx[ItemID{}]...)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[i] {
			continue
		}
		reached[i] = true
		stack = append(stack, idx[items[i].ID]...)
	}
	return reached
}

// ValidateHierarchy checks the four list invariants and returns a
// *HierarchyError for the first violation, or nil.
func ValidateHierarchy(items []Item) error {
	present := make(IDSet, len(items))
	for _, it := range items {
		if it.ID.IsZero() {
			return &HierarchyError{Invariant: "identity", Detail: "item without id"}
		}
		if present.Has(it.ID) {
			return &HierarchyError{ID: it.ID, Invariant: "identity", Detail: "duplicate id"}
		}
		present.Add(it.ID)
	}

	for _, it := range items {
		if !it.ParentID.IsZero() && !present.Has(it.ParentID) {
			return &HierarchyError{ID: it.ID, Invariant: "parent-exists",
				Detail: fmt.Sprintf("parent %s does not exist", it.ParentID)}
		}
	}

	reached := reachable(items, buildChildIndex(items))
	for i, ok := range reached {
		if !ok {
			return &HierarchyError{ID: items[i].ID, Invariant: "acyclic",
				Detail: "item is not reachable from a root"}
		}
	}

	parents := parentSet(items)
	for _, it := range items {
		if parents.Has(it.ID) && it.hasCosts() {
			return &HierarchyError{ID: it.ID, Invariant: "parent-without-cost",
				Detail: "parent carries unit, quantity or unit cost"}
		}
	}

	expected := RegenerateLevels(items)
	for i := range items {
		if items[i].Level != expected[i].Level {
			return &HierarchyError{ID: items[i].ID, Invariant: "levels",
				Detail: fmt.Sprintf("level %q, expected %q", items[i].Level, expected[i].Level)}
		}
	}
	return nil
}
