package budget

// History is a linear undo/redo stack of item-list snapshots.
//
// Entries are the slices returned by mutations. Mutations never modify
// their input, so consecutive entries can share items without aliasing;
// everything handed out by History is a clone, and callers must not modify
// a slice after pushing it.
type History struct {
	entries [][]Item
	cursor  int
	limit   int // max undo steps, 0 = unlimited
}

// NewHistory creates an empty history. limit caps the number of undo steps
// kept; older entries are dropped first.
func NewHistory(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{limit: limit}
}

// Reset discards every entry and starts over from initial (entry 0).
// A nil initial leaves the history empty.
func (h *History) Reset(initial []Item) {
	h.entries = nil
	h.cursor = 0
	if initial != nil {
		h.entries = [][]Item{initial}
	}
}

// Push records a new snapshot after the cursor. Entries beyond the cursor
// (the redo branch) are discarded.
func (h *History) Push(items []Item) {
	if len(h.entries) > 0 {
		h.entries = h.entries[:h.cursor+1]
	}
	h.entries = append(h.entries, items)
	if h.limit > 0 && len(h.entries) > h.limit+1 {
		drop := len(h.entries) - (h.limit + 1)
		h.entries = append([][]Item(nil), h.entries[drop:]...)
	}
	h.cursor = len(h.entries) - 1
}

// Undo moves the cursor back. At the first entry it does nothing and
// returns false.
func (h *History) Undo() ([]Item, bool) {
	if !h.CanUndo() {
		return h.Current(), false
	}
	h.cursor--
	return h.Current(), true
}

// Redo moves the cursor forward. At the last entry it does nothing and
// returns false.
func (h *History) Redo() ([]Item, bool) {
	if !h.CanRedo() {
		return h.Current(), false
	}
	h.cursor++
	return h.Current(), true
}

// Current returns a copy of the snapshot at the cursor, or nil when empty.
func (h *History) Current() []Item {
	return Clone(h.current())
}

func (h *History) current() []Item {
	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[h.cursor]
}

func (h *History) CanUndo() bool { return h.cursor > 0 }
func (h *History) CanRedo() bool { return h.cursor < len(h.entries)-1 }

// Len is the number of stored snapshots, including the initial one.
func (h *History) Len() int { return len(h.entries) }

// Cursor is the index of the current snapshot.
func (h *History) Cursor() int { return h.cursor }
