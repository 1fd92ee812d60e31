package budget

// ChangeSet is the row-level difference between two item lists.
//
// Positions holds the new slice index of every inserted or updated item;
// a store that keeps an explicit order column writes it alongside.
type ChangeSet struct {
	Inserted  []Item
	Updated   []Item
	Deleted   []ItemID
	Positions map[ItemID]int
}

// IsEmpty reports whether applying the change set would do nothing.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Inserted) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// Diff compares two lists by id. An item counts as updated when any field
// or its position changed. Deleted ids keep the order of before; inserted
// and updated items keep the order of after.
func Diff(before, after []Item) ChangeSet {
	oldPos := positions(before)
	newPos := positions(after)
	cs := ChangeSet{Positions: make(map[ItemID]int)}

	for i, it := range after {
		j, existed := oldPos[it.ID]
		switch {
		case !existed:
			cs.Inserted = append(cs.Inserted, it)
			cs.Positions[it.ID] = i
		case i != j || !before[j].Equal(it):
			cs.Updated = append(cs.Updated, it)
			cs.Positions[it.ID] = i
		}
	}
	for _, it := range before {
		if _, kept := newPos[it.ID]; !kept {
			cs.Deleted = append(cs.Deleted, it.ID)
		}
	}
	return cs
}
