/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, keeping the HTTP
  contract separate from the budget package's types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

ROW FIELDS:
  RowDTO keeps the item's own JSON names (camelCase) and adds the derived
  values under the same names the column keys use, so a client can render
  row[column.key] directly.

TYPES:
  Projects:   ProjectDTO, CreateProjectRequest
  Budget:     BudgetDTO, RowDTO, MutationResponse
  Editing:    EditValueRequest, LevelRequest, DragRequest, DeleteItemsRequest,
              ExpandAllRequest, CancelRequest, KeyRequest, ImportRequest
  Columns:    budget.ColumnConfig is used as is
  Scenarios:  ScenarioDTO, LoadScenarioRequest

SEE ALSO:
  - handlers.go: Uses these types
  - budget/aggregate.go: Row and Summary
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// PROJECTS
// =============================================================================

// ProjectDTO represents a project in API responses.
type ProjectDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateProjectRequest creates a project. An empty ID gets a random one.
type CreateProjectRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toProjectDTO(p budget.Project) ProjectDTO {
	dto := ProjectDTO{ID: string(p.ID), Name: p.Name}
	if !p.CreatedAt.IsZero() {
		dto.CreatedAt = p.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// BUDGET STATE
// =============================================================================

// RowDTO is one aggregated budget row.
type RowDTO struct {
	budget.Item

	IsParent               bool            `json:"isParent"`
	Depth                  int             `json:"depth"`
	MaterialPlusLaborUnit  decimal.Decimal `json:"materialPlusLaborUnit"`
	MaterialTotal          decimal.Decimal `json:"materialTotal"`
	LaborTotal             decimal.Decimal `json:"laborTotal"`
	MaterialPlusLaborTotal decimal.Decimal `json:"materialPlusLaborTotal"`
	LevelTotal             decimal.Decimal `json:"levelTotal"`
	LevelPercent           decimal.Decimal `json:"levelPercent"`
}

// BudgetDTO is the full state of a project's session.
type BudgetDTO struct {
	Project            string          `json:"project"`
	Mode               string          `json:"mode"`
	Dirty              bool            `json:"dirty"`
	CanUndo            bool            `json:"can_undo"`
	CanRedo            bool            `json:"can_redo"`
	Rows               []RowDTO        `json:"rows"`
	VisibleIDs         []budget.ItemID `json:"visible_ids"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
	GrandTotalMaterial decimal.Decimal `json:"grand_total_material"`
	GrandTotalLabor    decimal.Decimal `json:"grand_total_labor"`
}

// MutationResponse wraps the budget state after a command.
type MutationResponse struct {
	// Changed is false when the command was valid but had no effect.
	Changed   bool                 `json:"changed"`
	Handled   *bool                `json:"handled,omitempty"`
	CreatedID *budget.ItemID       `json:"created_id,omitempty"`
	Report    *budget.ImportReport `json:"report,omitempty"`
	Budget    BudgetDTO            `json:"budget"`
}

func toBudgetDTO(s *budget.Session) BudgetDTO {
	sum := s.Summary()
	dto := BudgetDTO{
		Project:            string(s.Project()),
		Mode:               s.Mode().String(),
		Dirty:              s.Dirty(),
		CanUndo:            s.CanUndo(),
		CanRedo:            s.CanRedo(),
		Rows:               make([]RowDTO, len(sum.Rows)),
		VisibleIDs:         []budget.ItemID{},
		GrandTotal:         sum.GrandTotal,
		GrandTotalMaterial: sum.GrandTotalMaterial,
		GrandTotalLabor:    sum.GrandTotalLabor,
	}
	for i, r := range sum.Rows {
		dto.Rows[i] = RowDTO{
			Item:                   r.Item,
			IsParent:               r.IsParent,
			Depth:                  r.Depth,
			MaterialPlusLaborUnit:  r.MaterialPlusLaborUnit,
			MaterialTotal:          r.MaterialTotal,
			LaborTotal:             r.LaborTotal,
			MaterialPlusLaborTotal: r.MaterialPlusLaborTotal,
			LevelTotal:             r.LevelTotal,
			LevelPercent:           r.LevelPercent,
		}
	}
	for _, r := range sum.Visible() {
		dto.VisibleIDs = append(dto.VisibleIDs, r.ID)
	}
	return dto
}

// =============================================================================
// EDIT REQUESTS
// =============================================================================

// EditValueRequest sets one field. Value may be a JSON string or number.
type EditValueRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// LevelRequest reparents an item by typing a level such as "2.1".
type LevelRequest struct {
	Level string `json:"level"`
}

// DragRequest drops the item onto TargetID.
type DragRequest struct {
	TargetID budget.ItemID `json:"target_id"`
}

// DeleteItemsRequest deletes several items at once.
type DeleteItemsRequest struct {
	IDs []budget.ItemID `json:"ids"`
}

// ExpandAllRequest expands or collapses every parent.
type ExpandAllRequest struct {
	Expanded bool `json:"expanded"`
}

// CancelRequest leaves edit mode. Confirm must be true to discard edits.
type CancelRequest struct {
	Confirm bool `json:"confirm"`
}

// KeyRequest forwards a keyboard shortcut such as "Ctrl+Z" or "Shift+Tab".
type KeyRequest struct {
	Key       string        `json:"key"`
	FocusedID budget.ItemID `json:"focused_id"`
}

// ImportRequest imports loosely typed records; see factory/import.go for
// the accepted record shape.
type ImportRequest struct {
	Mode    string          `json:"mode"` // "append" (default) or "replace"
	Records json.RawMessage `json:"records"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO describes a demo budget.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest loads one demo budget.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
