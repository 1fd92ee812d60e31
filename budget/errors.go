/*
errors.go - Centralized error types for the budget engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (the API layer, a UI) classify errors with errors.Is/As.

ERROR CATEGORIES:
  1. Outcome errors - ErrNoChange: the operation was valid but did nothing
  2. Rejections - ErrRejected: the operation would break an invariant
  3. Session errors - wrong mode, unsaved changes, failed save

USAGE:
  items, err := budget.ReparentByLevel(items, id, "3.1")
  var rej *budget.RejectedError
  if errors.As(err, &rej) {
      // show rej.Reason; items is the unchanged input
  }

SEE ALSO:
  - mutate.go: Returns ErrNoChange and RejectedError
  - session.go: Returns ErrNotEditing, ErrUnsavedChanges and SaveError
*/
package budget

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoChange is returned by mutations that had nothing to do, such as
	// indenting the first sibling or outdenting a root. The list returned
	// alongside it is the input, unchanged.
	ErrNoChange = errors.New("no change")

	// ErrRejected is returned when a mutation would violate a hierarchy
	// invariant (cycle, unknown parent level, unchanged level).
	ErrRejected = errors.New("operation rejected")

	// ErrItemNotFound is returned when a referenced item doesn't exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrInvalidField is returned for unknown or non-editable fields.
	ErrInvalidField = errors.New("invalid field")

	// ErrInvalidValue is returned for values that cannot be stored in a field.
	ErrInvalidValue = errors.New("invalid value")

	// ErrNotEditing is returned when a mutation arrives while the session is
	// in viewing mode.
	ErrNotEditing = errors.New("session is not in edit mode")

	// ErrUnsavedChanges is returned by Cancel when edits exist and the
	// confirmation was declined.
	ErrUnsavedChanges = errors.New("unsaved changes")

	// ErrImportFailed is returned when an import produced no usable items.
	ErrImportFailed = errors.New("import failed")

	// ErrProjectNotFound is returned by stores for unknown projects.
	ErrProjectNotFound = errors.New("project not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RejectedError explains why a mutation was refused.
type RejectedError struct {
	Op     string
	ID     ItemID
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s %s rejected: %s", e.Op, e.ID, e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

func reject(op string, id ItemID, format string, args ...any) *RejectedError {
	return &RejectedError{Op: op, ID: id, Reason: fmt.Sprintf(format, args...)}
}

// notFound wraps ErrItemNotFound with the missing id.
func notFound(op string, id ItemID) error {
	return fmt.Errorf("%s: %w: %s", op, ErrItemNotFound, id)
}

// SaveError wraps a store failure during Save. The session keeps its
// working copy, so the save can be retried.
type SaveError struct {
	ProjectID ProjectID
	Err       error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save budget %s: %v", e.ProjectID, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// HierarchyError describes the first invariant violation found by
// ValidateHierarchy.
type HierarchyError struct {
	ID        ItemID
	Invariant string
	Detail    string
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("hierarchy invariant %q violated at %s: %s", e.Invariant, e.ID, e.Detail)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrImportFailed)
}

// IsNotFound returns true if the error indicates a missing item or project.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrProjectNotFound)
}
