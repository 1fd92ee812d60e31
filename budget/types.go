/*
Package budget provides the hierarchical budget engine.

PURPOSE:
  A budget ("orçamento") is a flat list of line items linked by parent
  references. This package keeps that list consistent while it is edited:
  level labels are renumbered, parent rows are stripped of direct costs,
  totals are rolled up bottom-up, and every edit can be undone.

KEY CONCEPTS IN THIS FILE (types.go):
  - ItemID: Sequential integer (imported) or UUID (created) identifier
  - Item: One budget line, persisted as-is by the Store
  - Field: Editable columns of an Item
  - ProjectID: Which budget a list of items belongs to

DESIGN PRINCIPLES:
  1. Flat list: No child pointers. Children are found by ParentID.
  2. Array order is display order: Siblings are numbered in slice order.
  3. Precision: Quantities and costs use decimal.Decimal.
  4. Value semantics: Item holds no mutable references, so copying a
     slice of items is a full, independent snapshot.

USAGE:
  items := []budget.Item{
      {ID: budget.SeqID(1), Description: "Fundação"},
      {ID: budget.SeqID(2), ParentID: budget.SeqID(1), Description: "Escavação",
       Unit: "m3", Quantity: budget.Dec("10"), MaterialUnitCost: budget.Dec("5")},
  }
  items = budget.NormalizeHierarchy(items)
  summary := budget.Aggregate(items)

SEE ALSO:
  - hierarchy.go: Level renumbering and parent invariant
  - aggregate.go: Bottom-up totals
  - mutate.go: Structural and value edits
  - session.go: Edit mode, undo/redo, save/cancel
*/
package budget

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ProjectID identifies the budget a list of items belongs to.
type ProjectID string

// ItemID identifies a budget item. It holds either a sequential integer
// (items created by bulk import) or a UUID (items created interactively).
// The zero value means "no item" and is the ParentID of every root.
//
// ItemID is comparable and can be used as a map key.
type ItemID struct {
	seq  int64
	uuid uuid.UUID
}

// SeqID returns a sequential identifier. n must be positive.
func SeqID(n int64) ItemID { return ItemID{seq: n} }

// UUIDID wraps an existing UUID.
func UUIDID(u uuid.UUID) ItemID { return ItemID{uuid: u} }

// NewItemID returns a fresh random identifier.
func NewItemID() ItemID { return ItemID{uuid: uuid.New()} }

// ParseItemID parses the textual form produced by String.
// Decimal digits parse as a sequential id, anything else must be a UUID.
func ParseItemID(s string) (ItemID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ItemID{}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return ItemID{}, fmt.Errorf("invalid item id %q: sequential ids start at 1", s)
		}
		return SeqID(n), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return ItemID{}, fmt.Errorf("invalid item id %q: %w", s, err)
	}
	return UUIDID(u), nil
}

// MustParseItemID is ParseItemID for literals in tests and fixtures.
func MustParseItemID(s string) ItemID {
	id, err := ParseItemID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ItemID) IsZero() bool { return id.seq == 0 && id.uuid == uuid.Nil }
func (id ItemID) IsSeq() bool  { return id.seq != 0 }

// Seq returns the sequential number, or 0 for UUID identifiers.
func (id ItemID) Seq() int64 { return id.seq }

func (id ItemID) String() string {
	switch {
	case id.seq != 0:
		return strconv.FormatInt(id.seq, 10)
	case id.uuid != uuid.Nil:
		return id.uuid.String()
	default:
		return ""
	}
}

// MarshalJSON encodes sequential ids as numbers, UUIDs as strings and the
// zero id as null.
func (id ItemID) MarshalJSON() ([]byte, error) {
	switch {
	case id.seq != 0:
		return []byte(strconv.FormatInt(id.seq, 10)), nil
	case id.uuid != uuid.Nil:
		return json.Marshal(id.uuid.String())
	default:
		return []byte("null"), nil
	}
}

func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ItemID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseItemID(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid item id %s: %w", data, err)
	}
	if n <= 0 {
		*id = ItemID{}
		return nil
	}
	*id = SeqID(n)
	return nil
}

// IDSet is a set of item identifiers.
type IDSet map[ItemID]struct{}

func NewIDSet(ids ...ItemID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id ItemID) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id ItemID) { s[id] = struct{}{} }

// =============================================================================
// ITEM - One budget line
// =============================================================================

// Item is a node of the budget tree. Level is derived by RegenerateLevels
// and must not be edited directly; use ReparentByLevel to move an item.
//
// Source and Code record where a service item came from (price table and
// reference code). Unit, Quantity and the unit costs are only meaningful on
// leaves; parents have them cleared by EnforceParentInvariant.
type Item struct {
	ID               ItemID          `json:"id"`
	Level            string          `json:"level"`
	ParentID         ItemID          `json:"parentId"`
	Source           string          `json:"source"`
	Code             string          `json:"code"`
	Description      string          `json:"description"`
	Unit             string          `json:"unit"`
	Quantity         decimal.Decimal `json:"quantity"`
	MaterialUnitCost decimal.Decimal `json:"materialUnitCost"`
	LaborUnitCost    decimal.Decimal `json:"laborUnitCost"`
	Expanded         bool            `json:"expanded"`
}

// IsRoot reports whether the item has no parent.
func (it Item) IsRoot() bool { return it.ParentID.IsZero() }

// clearCosts zeroes the measurable part of an item.
func (it *Item) clearCosts() {
	it.Unit = ""
	it.Quantity = decimal.Zero
	it.MaterialUnitCost = decimal.Zero
	it.LaborUnitCost = decimal.Zero
}

func (it Item) hasCosts() bool {
	return it.Unit != "" || !it.Quantity.IsZero() ||
		!it.MaterialUnitCost.IsZero() || !it.LaborUnitCost.IsZero()
}

// Equal compares two items field by field, using numeric equality for decimals.
func (it Item) Equal(other Item) bool {
	return it.ID == other.ID &&
		it.Level == other.Level &&
		it.ParentID == other.ParentID &&
		it.Source == other.Source &&
		it.Code == other.Code &&
		it.Description == other.Description &&
		it.Unit == other.Unit &&
		it.Quantity.Equal(other.Quantity) &&
		it.MaterialUnitCost.Equal(other.MaterialUnitCost) &&
		it.LaborUnitCost.Equal(other.LaborUnitCost) &&
		it.Expanded == other.Expanded
}

// EqualItems compares two lists item by item, order included.
func EqualItems(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of items.
func Clone(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// =============================================================================
// FIELDS - Editable columns
// =============================================================================

type Field string

const (
	FieldDescription      Field = "description"
	FieldSource           Field = "source"
	FieldCode             Field = "code"
	FieldUnit             Field = "unit"
	FieldQuantity         Field = "quantity"
	FieldMaterialUnitCost Field = "materialUnitCost"
	FieldLaborUnitCost    Field = "laborUnitCost"
)

// ParseField accepts the JSON names above, case-insensitively.
func ParseField(s string) (Field, error) {
	for _, f := range []Field{
		FieldDescription, FieldSource, FieldCode, FieldUnit,
		FieldQuantity, FieldMaterialUnitCost, FieldLaborUnitCost,
	} {
		if strings.EqualFold(string(f), strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidField, s)
}

func (f Field) isNumeric() bool {
	return f == FieldQuantity || f == FieldMaterialUnitCost || f == FieldLaborUnitCost
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

var hundred = decimal.NewFromInt(100)

// Dec parses a decimal literal, returning zero on malformed input.
func Dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseNumber parses user-entered numeric text. Empty text is zero. A comma
// is accepted as decimal separator when the text has no dot ("12,5").
func ParseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, s)
	}
	return d, nil
}
