// Package export renders aggregated budgets to spreadsheet files.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
	"github.com/xuri/excelize/v2"
)

const (
	defaultSheet  = "Budget"
	maxSheetName  = 31
	titleRow      = 1
	headerRow     = 3
	firstDataRow  = 4
	pixelsPerChar = 7.0
	moneyFormat   = 4 // #,##0.00
)

// Excel renders every row of summary (collapsed ones included) using the
// visible columns of cols, in display order, followed by a grand total
// row. Descriptions are indented by depth.
func Excel(title string, summary budget.Summary, cols budget.ColumnConfig) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(title)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}

	columns := cols.VisibleColumns()
	if len(columns) == 0 {
		columns = budget.DefaultColumns().VisibleColumns()
	}
	lastCol, err := excelize.ColumnNumberToName(len(columns))
	if err != nil {
		return nil, fmt.Errorf("last column: %w", err)
	}

	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	// ── Title and headers ───────────────────────────────────────────────

	titleCell := cellName(1, titleRow)
	if err := f.MergeCell(sheet, titleCell, fmt.Sprintf("%s%d", lastCol, titleRow)); err != nil {
		return nil, fmt.Errorf("merge title: %w", err)
	}
	f.SetCellValue(sheet, titleCell, sanitizeExcelCell(title))
	f.SetCellStyle(sheet, titleCell, titleCell, st.title)

	for i, col := range columns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, name, name, float64(col.Width)/pixelsPerChar); err != nil {
			return nil, fmt.Errorf("set col width %s: %w", name, err)
		}
		f.SetCellValue(sheet, cellName(i+1, headerRow), col.Label)
	}
	f.SetCellStyle(sheet, cellName(1, headerRow), cellName(len(columns), headerRow), st.header)

	// ── Data rows ───────────────────────────────────────────────────────

	row := firstDataRow
	for _, r := range summary.Rows {
		for i, col := range columns {
			cell := cellName(i+1, row)
			if v, ok := numericValue(r, col.Key); ok {
				f.SetCellValue(sheet, cell, v)
				style := st.money
				if r.IsParent {
					style = st.parentMoney
				}
				f.SetCellStyle(sheet, cell, cell, style)
				continue
			}
			text := r.Cell(col.Key)
			if col.Key == budget.ColDescription {
				text = strings.Repeat("  ", r.Depth) + text
			}
			f.SetCellValue(sheet, cell, sanitizeExcelCell(text))
			style := st.text
			if r.IsParent {
				style = st.parentText
			}
			f.SetCellStyle(sheet, cell, cell, style)
		}
		row++
	}

	// ── Grand total ─────────────────────────────────────────────────────

	f.SetCellValue(sheet, cellName(1, row), "Total")
	f.SetCellStyle(sheet, cellName(1, row), cellName(1, row), st.totalLabel)
	for i, col := range columns {
		var v decimal.Decimal
		switch col.Key {
		case budget.ColMaterialTotal:
			v = summary.GrandTotalMaterial
		case budget.ColLaborTotal:
			v = summary.GrandTotalLabor
		case budget.ColMaterialPlusLaborTotal:
			v = summary.GrandTotal
		case budget.ColLevelPercent:
			if summary.GrandTotal.IsZero() {
				continue
			}
			v = decimal.NewFromInt(100)
		default:
			continue
		}
		cell := cellName(i+1, row)
		f.SetCellValue(sheet, cell, v.InexactFloat64())
		f.SetCellStyle(sheet, cell, cell, st.totalValue)
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: cellName(1, firstDataRow),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// numericValue returns the number behind a numeric column. Unit-cost and
// quantity cells of grouping rows have none.
func numericValue(r budget.Row, key string) (float64, bool) {
	var d decimal.Decimal
	switch key {
	case budget.ColQuantity:
		d = r.Quantity
	case budget.ColMaterialUnitCost:
		d = r.MaterialUnitCost
	case budget.ColLaborUnitCost:
		d = r.LaborUnitCost
	case budget.ColMaterialPlusLaborUnit:
		d = r.MaterialPlusLaborUnit
	case budget.ColMaterialTotal:
		return r.MaterialTotal.InexactFloat64(), true
	case budget.ColLaborTotal:
		return r.LaborTotal.InexactFloat64(), true
	case budget.ColMaterialPlusLaborTotal:
		return r.MaterialPlusLaborTotal.InexactFloat64(), true
	case budget.ColLevelPercent:
		return r.LevelPercent.InexactFloat64(), true
	default:
		return 0, false
	}
	if r.IsParent {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// ============================================================================
// STYLES
// ============================================================================

type styles struct {
	title, header          int
	text, parentText       int
	money, parentMoney     int
	totalLabel, totalValue int
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	defs := []struct {
		dst   *int
		name  string
		style *excelize.Style
	}{
		{&st.title, "title", &excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}},
		{&st.header, "header", &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#333333"}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
			Border:    thinBorders(),
		}},
		{&st.text, "text", &excelize.Style{Font: &excelize.Font{Size: 10}, Border: thinBorders()}},
		{&st.parentText, "parent text", &excelize.Style{Font: &excelize.Font{Bold: true, Size: 10}, Border: thinBorders()}},
		{&st.money, "money", &excelize.Style{Font: &excelize.Font{Size: 10}, Border: thinBorders(), NumFmt: moneyFormat}},
		{&st.parentMoney, "parent money", &excelize.Style{
			Font: &excelize.Font{Bold: true, Size: 10}, Border: thinBorders(), NumFmt: moneyFormat,
		}},
		{&st.totalLabel, "total label", &excelize.Style{Font: &excelize.Font{Bold: true, Size: 11}}},
		{&st.totalValue, "total value", &excelize.Style{
			Font: &excelize.Font{Bold: true, Size: 11}, NumFmt: moneyFormat,
			Border: []excelize.Border{{Type: "top", Color: "#000000", Style: 2}},
		}},
	}
	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return st, fmt.Errorf("create %s style: %w", d.name, err)
		}
		*d.dst = id
	}
	return st, nil
}

func thinBorders() []excelize.Border {
	sides := []string{"left", "top", "bottom", "right"}
	borders := make([]excelize.Border, len(sides))
	for i, side := range sides {
		borders[i] = excelize.Border{Type: side, Color: "#000000", Style: 1}
	}
	return borders
}

// ============================================================================
// HELPERS
// ============================================================================

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// sheetName makes title usable as a sheet name: no []:*?/\ and at most
// 31 characters.
func sheetName(title string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
	clean = strings.Trim(clean, "'")
	if utf8.RuneCountInString(clean) > maxSheetName {
		clean = string([]rune(clean)[:maxSheetName])
	}
	if clean == "" {
		return defaultSheet
	}
	return clean
}

// sanitizeExcelCell keeps text starting with a formula character from
// being evaluated as a formula.
func sanitizeExcelCell(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + s
	}
	return s
}
