/*
import.go - Bulk import of structurally unverified records

PURPOSE:
  Turns loosely structured rows (from a spreadsheet or an automated
  document reader) into a valid item list. Records carry an optional level
  hint instead of a parent reference; the parent is found by matching the
  hint's prefix against the levels seen so far.

RULES:
  - Ids are sequential integers starting at firstSeq, in record order.
    Skipped records do not consume an id.
  - A record without a description is skipped and reported.
  - A hint whose prefix matches no earlier record, or a missing hint,
    makes the record a sibling of the previous record.
  - Numeric fields the parser could not read arrive as zero with their
    names in Coerced; the report lists them per record index.
  - UseCombinedUnitCost stores material+labor as the material unit cost
    and zeroes labor.
  - The result is repaired and normalized, so parent rows lose their costs
    and levels are renumbered contiguously.

SEE ALSO:
  - factory/import.go: Parses JSON into ImportRecord
  - session.go: ImportRecords records an import as one undoable step
*/
package budget

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ImportRecord is one row of a bulk import.
type ImportRecord struct {
	Level               string
	Source              string
	Code                string
	Description         string
	Unit                string
	Quantity            decimal.Decimal
	MaterialUnitCost    decimal.Decimal
	LaborUnitCost       decimal.Decimal
	UseCombinedUnitCost bool

	// Coerced names the numeric fields whose source value was not a
	// number and was read as zero.
	Coerced []string
}

// ImportSkip explains why a record produced no item.
type ImportSkip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ImportCoercion lists the numeric fields of a record that defaulted to 0.
type ImportCoercion struct {
	Index  int      `json:"index"`
	Fields []string `json:"fields"`
}

// ImportReport summarizes an import.
type ImportReport struct {
	Imported   int              `json:"imported"`
	Skipped    []ImportSkip     `json:"skipped,omitempty"`
	Coerced    []ImportCoercion `json:"coerced,omitempty"`
	Unresolved int              `json:"unresolved"` // level hints whose parent was not found
}

// ImportMode selects how a session combines imported items with the
// working list.
type ImportMode string

const (
	ImportAppend  ImportMode = "append"
	ImportReplace ImportMode = "replace"
)

// ParseImportMode accepts "append" and "replace"; empty means append.
func ParseImportMode(s string) (ImportMode, error) {
	switch ImportMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ImportAppend:
		return ImportAppend, nil
	case ImportReplace:
		return ImportReplace, nil
	default:
		return "", fmt.Errorf("%w: unknown import mode %q", ErrInvalidValue, s)
	}
}

// Import converts records into a normalized item list.
func Import(records []ImportRecord, firstSeq int64) ([]Item, ImportReport) {
	if firstSeq < 1 {
		firstSeq = 1
	}
	var report ImportReport
	items := make([]Item, 0, len(records))
	byLevel := make(map[string]ItemID)
	next := firstSeq

	for i, rec := range records {
		desc := strings.TrimSpace(rec.Description)
		if desc == "" {
			report.Skipped = append(report.Skipped, ImportSkip{Index: i, Reason: "missing description"})
			continue
		}

		if len(rec.Coerced) > 0 {
			report.Coerced = append(report.Coerced, ImportCoercion{Index: i, Fields: append([]string(nil), rec.Coerced...)})
		}

		it := Item{
			ID:               SeqID(next),
			Source:           strings.TrimSpace(rec.Source),
			Code:             strings.TrimSpace(rec.Code),
			Description:      desc,
			Unit:             strings.TrimSpace(rec.Unit),
			Quantity:         rec.Quantity,
			MaterialUnitCost: rec.MaterialUnitCost,
			LaborUnitCost:    rec.LaborUnitCost,
			Expanded:         true,
		}
		next++
		if rec.UseCombinedUnitCost {
			it.MaterialUnitCost = rec.MaterialUnitCost.Add(rec.LaborUnitCost)
			it.LaborUnitCost = decimal.Zero
		}

		level := levelHint(rec.Level)
		resolved := false
		if level != "" {
			prefix := ParentLevel(level)
			if prefix == "" {
				resolved = true
			} else if parent, ok := byLevel[prefix]; ok {
				it.ParentID = parent
				resolved = true
			} else {
				report.Unresolved++
			}
			byLevel[level] = it.ID
		}
		if !resolved && len(items) > 0 {
			it.ParentID = items[len(items)-1].ParentID
		}

		items = append(items, it)
	}

	report.Imported = len(items)
	return NormalizeHierarchy(Repair(items)), report
}

// levelHint cleans a level hint: "1.2." and " 1.2 " both become "1.2".
// Anything that is not a dotted list of positive integers is dropped.
func levelHint(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if !validLevel(s) {
		return ""
	}
	return s
}

// maxSeq returns the highest sequential id in items, or 0.
func maxSeq(items []Item) int64 {
	var n int64
	for _, it := range items {
		if it.ID.Seq() > n {
			n = it.ID.Seq()
		}
	}
	return n
}
