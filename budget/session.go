/*
session.go - Edit-mode lifecycle with undo/redo

PURPOSE:
  Owns the canonical item list of one project and the isolated working
  copy an editor changes. Nothing reaches the canonical list (or the store)
  until Save.

STATE MACHINE:
  Viewing --Begin--> Editing --Save--> Viewing
                             --Cancel-> Viewing (working copy discarded)

  Begin pushes the canonical list as history entry 0. Every successful
  mutation pushes one entry. Undo and redo move the history cursor.

  The session also remembers the list as last read from or written to the
  store. Save and Flush diff against it, so expand/collapse changes made
  while viewing reach the store with the next save or flush.

FAILURE MODES:
  - Mutation while viewing: ErrNotEditing.
  - Save failure: *SaveError; the session stays in Editing with the working
    copy untouched so the save can be retried.
  - Cancel with edits and no confirmation: ErrUnsavedChanges.

CONCURRENCY:
  All methods lock the session, so one Session may be shared by concurrent
  HTTP handlers. Different sessions on the same project are last write wins
  at the store.

SEE ALSO:
  - history.go: Snapshot stack
  - mutate.go: The pure operations applied here
  - diff.go: Row-level changes handed to a ChangeStore
*/
package budget

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mode is the edit state of a Session.
type Mode int

const (
	ModeViewing Mode = iota
	ModeEditing
)

func (m Mode) String() string {
	if m == ModeEditing {
		return "editing"
	}
	return "viewing"
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHistoryLimit caps the number of undo steps. 0 means unlimited.
func WithHistoryLimit(n int) SessionOption {
	return func(s *Session) { s.history = NewHistory(n) }
}

// Session is the edit controller for one project's budget.
type Session struct {
	mu        sync.Mutex
	project   ProjectID
	store     Store
	mode      Mode
	canonical []Item
	stored    []Item // as last read from or written to the store
	original  []Item
	history   *History
}

// NewSession creates a session in viewing mode with an empty list.
// Call Load to read the canonical list from the store.
func NewSession(store Store, project ProjectID, opts ...SessionOption) *Session {
	s := &Session{
		project: project,
		store:   store,
		history: NewHistory(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Load replaces the canonical list with the stored one. Stored data is
// repaired and normalized first. Loading over unsaved edits fails with
// ErrUnsavedChanges; loading over a clean edit session ends it.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeEditing && s.dirty() {
		return fmt.Errorf("load %s: %w", s.project, ErrUnsavedChanges)
	}
	items, err := s.store.LoadItems(ctx, s.project)
	if err != nil {
		return fmt.Errorf("failed to load budget %s: %w", s.project, err)
	}
	s.canonical = NormalizeHierarchy(Repair(items))
	s.stored = s.canonical
	s.endEdit()
	return nil
}

// Begin enters edit mode. Calling it while already editing does nothing.
func (s *Session) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeEditing {
		return
	}
	s.original = Clone(s.canonical)
	if s.original == nil {
		s.original = []Item{}
	}
	s.history.Reset(s.original)
	s.mode = ModeEditing
}

// Save hands the working list to the store and makes it canonical.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeEditing {
		return fmt.Errorf("save: %w", ErrNotEditing)
	}
	working := s.history.current()
	if err := s.write(ctx, working); err != nil {
		return err
	}
	s.canonical = working
	s.endEdit()
	return nil
}

// Flush writes viewing-mode changes (expand/collapse) that no save has
// stored yet. It does nothing while editing; Save covers that case.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeEditing || !s.pending() {
		return nil
	}
	return s.write(ctx, s.canonical)
}

// Pending reports whether the canonical list has changes the store has not
// seen.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending()
}

func (s *Session) pending() bool {
	return !EqualItems(s.canonical, s.stored)
}

// write hands items to the store, as row changes against the stored list
// when the store supports it.
func (s *Session) write(ctx context.Context, items []Item) error {
	var err error
	if cs, ok := s.store.(ChangeStore); ok {
		changes := Diff(s.stored, items)
		if !changes.IsEmpty() {
			err = cs.ApplyChanges(ctx, s.project, changes)
		}
	} else {
		err = s.store.SaveItems(ctx, s.project, Clone(items))
	}
	if err != nil {
		return &SaveError{ProjectID: s.project, Err: err}
	}
	s.stored = items
	return nil
}

// Cancel discards the working copy. When edits exist, confirm is asked
// first; a nil confirm or a false answer keeps editing and returns
// ErrUnsavedChanges. Cancel while viewing does nothing.
func (s *Session) Cancel(confirm func() bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeEditing {
		return nil
	}
	if s.dirty() && (confirm == nil || !confirm()) {
		return fmt.Errorf("cancel %s: %w", s.project, ErrUnsavedChanges)
	}
	s.canonical = s.original
	s.endEdit()
	return nil
}

func (s *Session) endEdit() {
	s.mode = ModeViewing
	s.original = nil
	s.history.Reset(nil)
}

// =============================================================================
// STATE
// =============================================================================

func (s *Session) Project() ProjectID { return s.project }

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Items returns a copy of the list the user currently sees: the working
// copy while editing, the canonical list otherwise.
func (s *Session) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(s.items())
}

func (s *Session) items() []Item {
	if s.mode == ModeEditing {
		return s.history.current()
	}
	return s.canonical
}

// Summary aggregates the list the user currently sees.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Aggregate(s.items())
}

// Dirty reports whether the working copy differs from the pre-edit list.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty()
}

func (s *Session) dirty() bool {
	return s.mode == ModeEditing && !EqualItems(s.history.current(), s.original)
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == ModeEditing && s.history.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == ModeEditing && s.history.CanRedo()
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Apply runs m on the working copy and records the result. A result equal
// to the input is reported as ErrNoChange and not recorded.
func (s *Session) Apply(m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(m)
}

func (s *Session) apply(m Mutation) error {
	if s.mode != ModeEditing {
		return ErrNotEditing
	}
	cur := s.history.current()
	next, err := m(Clone(cur))
	if err != nil {
		return err
	}
	if EqualItems(next, cur) {
		return ErrNoChange
	}
	s.history.Push(next)
	return nil
}

// Undo steps back one snapshot. It reports false at the first snapshot or
// while viewing.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeEditing {
		return false
	}
	_, ok := s.history.Undo()
	return ok
}

// Redo steps forward one snapshot. It reports false at the last snapshot
// or while viewing.
func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeEditing {
		return false
	}
	_, ok := s.history.Redo()
	return ok
}

func (s *Session) EditValue(id ItemID, field Field, value string) error {
	return s.Apply(func(items []Item) ([]Item, error) {
		return EditValue(items, id, field, value)
	})
}

func (s *Session) ReparentByLevel(id ItemID, level string) error {
	return s.Apply(func(items []Item) ([]Item, error) {
		return ReparentByLevel(items, id, level)
	})
}

func (s *Session) Indent(id ItemID) error {
	return s.Apply(func(items []Item) ([]Item, error) { return Indent(items, id) })
}

func (s *Session) Outdent(id ItemID) error {
	return s.Apply(func(items []Item) ([]Item, error) { return Outdent(items, id) })
}

func (s *Session) DragReparent(dragged, target ItemID) error {
	return s.Apply(func(items []Item) ([]Item, error) {
		return DragReparent(items, dragged, target)
	})
}

// InsertAfter adds a placeholder sibling after afterID and returns its id.
func (s *Session) InsertAfter(afterID ItemID) (ItemID, error) {
	id := NewItemID()
	err := s.Apply(func(items []Item) ([]Item, error) {
		return InsertAfter(items, afterID, id)
	})
	if err != nil {
		return ItemID{}, err
	}
	return id, nil
}

// AppendRoot adds a placeholder root item at the end and returns its id.
func (s *Session) AppendRoot() (ItemID, error) {
	id := NewItemID()
	err := s.Apply(func(items []Item) ([]Item, error) {
		return AppendRoot(items, id)
	})
	if err != nil {
		return ItemID{}, err
	}
	return id, nil
}

func (s *Session) Delete(ids ...ItemID) error {
	return s.Apply(func(items []Item) ([]Item, error) {
		return DeleteMany(items, ids...)
	})
}

// Duplicate copies id next to itself and returns the copy's id.
func (s *Session) Duplicate(id ItemID) (ItemID, error) {
	newID := NewItemID()
	err := s.Apply(func(items []Item) ([]Item, error) {
		return Duplicate(items, id, newID)
	})
	if err != nil {
		return ItemID{}, err
	}
	return newID, nil
}

// ToggleExpand flips id's expanded flag. While editing it is an undoable
// step; while viewing it changes the canonical list in memory only and
// reaches the store with the next Save or Flush.
func (s *Session) ToggleExpand(id ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	toggle := func(items []Item) ([]Item, error) { return ToggleExpand(items, id) }
	if s.mode == ModeEditing {
		return s.apply(toggle)
	}
	next, err := toggle(s.canonical)
	if err != nil {
		return err
	}
	s.canonical = next
	return nil
}

func (s *Session) SetExpandedAll(expanded bool) error {
	return s.Apply(func(items []Item) ([]Item, error) {
		return SetExpandedAll(items, expanded)
	})
}

// ImportRecords imports records as one undoable step. Appended items get
// ids after the highest sequential id in the working list and are placed
// at the end of the root list. An import that yields no items fails with
// ErrImportFailed and leaves the working list unchanged.
func (s *Session) ImportRecords(records []ImportRecord, mode ImportMode) (ImportReport, error) {
	var report ImportReport
	err := s.Apply(func(items []Item) ([]Item, error) {
		first := int64(1)
		if mode != ImportReplace {
			first = maxSeq(items) + 1
		}
		imported, r := Import(records, first)
		report = r
		if len(imported) == 0 {
			return items, fmt.Errorf("%w: no usable records (%d skipped)", ErrImportFailed, len(r.Skipped))
		}
		if mode == ImportReplace {
			return imported, nil
		}
		out := make([]Item, 0, len(items)+len(imported))
		out = append(out, items...)
		out = append(out, imported...)
		return NormalizeHierarchy(out), nil
	})
	return report, err
}

// =============================================================================
// KEYBOARD
// =============================================================================

// Key is a parsed keyboard shortcut such as "Ctrl+Shift+Z".
type Key struct {
	Name  string // lower case: "z", "tab"
	Ctrl  bool   // Ctrl, or Cmd/Meta on macOS
	Shift bool
	Alt   bool
}

// ParseKey parses "+"-separated shortcuts, case-insensitively. Cmd, Meta
// and Ctrl are the same modifier.
func ParseKey(s string) (Key, error) {
	var k Key
	for _, part := range strings.Split(s, "+") {
		switch p := strings.ToLower(strings.TrimSpace(part)); p {
		case "ctrl", "control", "cmd", "command", "meta":
			k.Ctrl = true
		case "shift":
			k.Shift = true
		case "alt", "option":
			k.Alt = true
		case "":
			return Key{}, fmt.Errorf("%w: malformed key %q", ErrInvalidValue, s)
		default:
			if k.Name != "" {
				return Key{}, fmt.Errorf("%w: more than one key in %q", ErrInvalidValue, s)
			}
			k.Name = p
		}
	}
	if k.Name == "" {
		return Key{}, fmt.Errorf("%w: no key in %q", ErrInvalidValue, s)
	}
	return k, nil
}

// HandleKey runs the edit shortcut bound to key, if any:
//
//	Ctrl/Cmd+Z                      undo
//	Ctrl/Cmd+Y, Ctrl/Cmd+Shift+Z    redo
//	Tab                             indent focused
//	Shift+Tab                       outdent focused
//
// Shortcuts are active only while editing. handled is false when the key
// is unbound or the session is viewing.
func (s *Session) HandleKey(key Key, focused ItemID) (handled bool, err error) {
	if s.Mode() != ModeEditing || key.Alt {
		return false, nil
	}
	switch {
	case key.Ctrl && key.Name == "z" && !key.Shift:
		s.Undo()
		return true, nil
	case key.Ctrl && (key.Name == "y" || (key.Name == "z" && key.Shift)):
		s.Redo()
		return true, nil
	case !key.Ctrl && key.Name == "tab":
		if focused.IsZero() {
			return false, nil
		}
		if key.Shift {
			return true, s.Outdent(focused)
		}
		return true, s.Indent(focused)
	}
	return false, nil
}
