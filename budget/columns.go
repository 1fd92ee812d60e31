/*
columns.go - Table column layout

PURPOSE:
  Visibility, pinning and width of each budget table column, persisted per
  project through a ColumnStore. AutoSize derives widths from the
  aggregated values a table would render.

WIDTHS:
  Widths are pixels. Text is measured in terminal cells with go-runewidth
  (so "ç" is one cell and CJK is two) and converted with a fixed cell
  width plus padding. Every width is clamped to [MinColumnWidth,
  MaxColumnWidth].
*/
package budget

import (
	"fmt"

	"github.com/mattn/go-runewidth"
)

// Pin is where a column is frozen while the table scrolls horizontally.
type Pin string

const (
	PinNone  Pin = ""
	PinLeft  Pin = "left"
	PinRight Pin = "right"
)

func ParsePin(s string) (Pin, error) {
	switch Pin(s) {
	case PinNone, PinLeft, PinRight:
		return Pin(s), nil
	case "none":
		return PinNone, nil
	}
	return "", fmt.Errorf("%w: unknown pin %q", ErrInvalidValue, s)
}

const (
	MinColumnWidth = 40
	MaxColumnWidth = 600

	cellWidth   = 8
	cellPadding = 24
)

// Column keys. Item fields use their JSON names; derived values use the
// Row names.
const (
	ColLevel                  = "level"
	ColSource                 = "source"
	ColCode                   = "code"
	ColDescription            = "description"
	ColUnit                   = "unit"
	ColQuantity               = "quantity"
	ColMaterialUnitCost       = "materialUnitCost"
	ColLaborUnitCost          = "laborUnitCost"
	ColMaterialPlusLaborUnit  = "materialPlusLaborUnit"
	ColMaterialTotal          = "materialTotal"
	ColLaborTotal             = "laborTotal"
	ColMaterialPlusLaborTotal = "materialPlusLaborTotal"
	ColLevelPercent           = "levelPercent"
)

// Column is the layout of one table column.
type Column struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Visible bool   `json:"visible"`
	Pinned  Pin    `json:"pinned,omitempty"`
	Width   int    `json:"width"`
}

// ColumnConfig is the ordered column layout of a project.
type ColumnConfig struct {
	Columns []Column `json:"columns"`
}

// DefaultColumns is the layout of a project that never saved one.
func DefaultColumns() ColumnConfig {
	return ColumnConfig{Columns: []Column{
		{Key: ColLevel, Label: "Level", Visible: true, Pinned: PinLeft, Width: 80},
		{Key: ColSource, Label: "Source", Visible: false, Width: 100},
		{Key: ColCode, Label: "Code", Visible: true, Width: 100},
		{Key: ColDescription, Label: "Description", Visible: true, Pinned: PinLeft, Width: 320},
		{Key: ColUnit, Label: "Unit", Visible: true, Width: 70},
		{Key: ColQuantity, Label: "Quantity", Visible: true, Width: 100},
		{Key: ColMaterialUnitCost, Label: "Material unit cost", Visible: true, Width: 130},
		{Key: ColLaborUnitCost, Label: "Labor unit cost", Visible: true, Width: 130},
		{Key: ColMaterialPlusLaborUnit, Label: "Unit cost", Visible: false, Width: 130},
		{Key: ColMaterialTotal, Label: "Material total", Visible: true, Width: 140},
		{Key: ColLaborTotal, Label: "Labor total", Visible: true, Width: 140},
		{Key: ColMaterialPlusLaborTotal, Label: "Total", Visible: true, Pinned: PinRight, Width: 140},
		{Key: ColLevelPercent, Label: "%", Visible: true, Width: 80},
	}}
}

// Clone returns an independent copy.
func (c ColumnConfig) Clone() ColumnConfig {
	return ColumnConfig{Columns: append([]Column(nil), c.Columns...)}
}

// Normalize reconciles a stored layout with the current column set:
// unknown keys are dropped, missing columns are appended with their
// defaults, and widths are clamped.
func (c ColumnConfig) Normalize() ColumnConfig {
	defaults := DefaultColumns()
	known := make(map[string]Column, len(defaults.Columns))
	for _, col := range defaults.Columns {
		known[col.Key] = col
	}

	out := ColumnConfig{Columns: make([]Column, 0, len(defaults.Columns))}
	seen := make(map[string]bool)
	for _, col := range c.Columns {
		def, ok := known[col.Key]
		if !ok || seen[col.Key] {
			continue
		}
		seen[col.Key] = true
		if col.Label == "" {
			col.Label = def.Label
		}
		if col.Pinned != PinLeft && col.Pinned != PinRight {
			col.Pinned = PinNone
		}
		col.Width = clampWidth(col.Width)
		out.Columns = append(out.Columns, col)
	}
	for _, def := range defaults.Columns {
		if !seen[def.Key] {
			out.Columns = append(out.Columns, def)
		}
	}
	return out
}

func (c *ColumnConfig) find(key string) (*Column, error) {
	for i := range c.Columns {
		if c.Columns[i].Key == key {
			return &c.Columns[i], nil
		}
	}
	return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidField, key)
}

// Toggle flips a column's visibility.
func (c *ColumnConfig) Toggle(key string) error {
	col, err := c.find(key)
	if err != nil {
		return err
	}
	col.Visible = !col.Visible
	return nil
}

// SetPinned pins a column. pin must be one ParsePin accepts.
func (c *ColumnConfig) SetPinned(key string, pin Pin) error {
	pin, err := ParsePin(string(pin))
	if err != nil {
		return err
	}
	col, err := c.find(key)
	if err != nil {
		return err
	}
	col.Pinned = pin
	return nil
}

// SetWidth sets a column's width, clamped to the allowed range.
func (c *ColumnConfig) SetWidth(key string, width int) error {
	col, err := c.find(key)
	if err != nil {
		return err
	}
	col.Width = clampWidth(width)
	return nil
}

// VisibleColumns returns the visible columns in render order: left-pinned,
// unpinned, right-pinned, each group in configured order.
func (c ColumnConfig) VisibleColumns() []Column {
	var left, middle, right []Column
	for _, col := range c.Columns {
		if !col.Visible {
			continue
		}
		switch col.Pinned {
		case PinLeft:
			left = append(left, col)
		case PinRight:
			right = append(right, col)
		default:
			middle = append(middle, col)
		}
	}
	out := make([]Column, 0, len(left)+len(middle)+len(right))
	out = append(out, left...)
	out = append(out, middle...)
	return append(out, right...)
}

// AutoSize returns a copy of c with every width fitted to the widest of
// the label and the rendered cells of summary. Deeper rows get extra room
// in the description column for the tree indentation.
func (c ColumnConfig) AutoSize(summary Summary) ColumnConfig {
	out := c.Clone()
	for i := range out.Columns {
		col := &out.Columns[i]
		cells := runewidth.StringWidth(col.Label)
		for _, row := range summary.Rows {
			w := runewidth.StringWidth(row.Cell(col.Key))
			if col.Key == ColDescription {
				w += 2 * row.Depth
			}
			if w > cells {
				cells = w
			}
		}
		col.Width = clampWidth(cells*cellWidth + cellPadding)
	}
	return out
}

func clampWidth(w int) int {
	if w < MinColumnWidth {
		return MinColumnWidth
	}
	if w > MaxColumnWidth {
		return MaxColumnWidth
	}
	return w
}

// Cell renders the value of column key for this row as a table shows it.
// Grouping rows render empty unit and unit-cost cells.
func (r Row) Cell(key string) string {
	switch key {
	case ColLevel:
		return r.Level
	case ColSource:
		return r.Source
	case ColCode:
		return r.Code
	case ColDescription:
		return r.Description
	case ColUnit:
		return r.Unit
	case ColQuantity:
		if r.IsParent {
			return ""
		}
		return r.Quantity.String()
	case ColMaterialUnitCost:
		if r.IsParent {
			return ""
		}
		return r.MaterialUnitCost.StringFixed(2)
	case ColLaborUnitCost:
		if r.IsParent {
			return ""
		}
		return r.LaborUnitCost.StringFixed(2)
	case ColMaterialPlusLaborUnit:
		if r.IsParent {
			return ""
		}
		return r.MaterialPlusLaborUnit.StringFixed(2)
	case ColMaterialTotal:
		return r.MaterialTotal.StringFixed(2)
	case ColLaborTotal:
		return r.LaborTotal.StringFixed(2)
	case ColMaterialPlusLaborTotal:
		return r.MaterialPlusLaborTotal.StringFixed(2)
	case ColLevelPercent:
		return r.LevelPercent.StringFixed(2) + "%"
	}
	return ""
}
