/*
handlers.go - HTTP API handlers for the budget engine

PURPOSE:
  Exposes edit sessions over REST. Handles HTTP request/response, JSON
  serialization, and delegates to the budget package.

ENDPOINTS:
  Projects:
    GET    /api/projects                         List projects
    POST   /api/projects                         Create project
    GET    /api/projects/{project}               Get project
    DELETE /api/projects/{project}               Delete project and budget

  Session:
    GET    /api/projects/{project}/budget        State and aggregated rows
    POST   .../budget/reload                     Re-read from the store
    POST   .../budget/edit                       Enter edit mode
    POST   .../budget/save                       Persist and leave edit mode
    POST   .../budget/cancel                     Discard ({"confirm": true})
    POST   .../budget/undo, .../budget/redo      History
    POST   .../budget/keys                       Keyboard shortcut

  Items (edit mode unless noted):
    POST   .../budget/items                      Append a root item
    POST   .../budget/items/delete               Delete several items
    POST   .../budget/expand-all                 Expand or collapse all
    POST   .../budget/import                     Bulk import
    PATCH  .../budget/items/{id}                 Edit one field
    DELETE .../budget/items/{id}                 Delete one item
    POST   .../budget/items/{id}/level           Reparent by level
    POST   .../budget/items/{id}/indent|outdent|duplicate|insert-after
    POST   .../budget/items/{id}/drag            Drop onto another item
    POST   .../budget/items/{id}/toggle          Expand/collapse (any mode)

  Output:
    GET    .../budget/export.xlsx                Excel download
    GET    .../columns, PUT .../columns          Column layout
    POST   .../columns/autosize                  Fit widths to content

ARCHITECTURE:
  Handler holds the store and one budget.Session per project. Sessions are
  created on first use (loading the stored list) and evicted by the
  SessionSweeper when idle in viewing mode.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 200: Valid command that changed nothing ("changed": false)
  - 400: Invalid input (bad field, value, key, import payload)
  - 404: Unknown project or item
  - 409: Not in edit mode, or unsaved changes would be lost
  - 422: Mutation rejected by a hierarchy rule
  - 500: Store failures

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - sessions.go: Session registry
  - scenarios.go: Demo budgets
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/export"
	"github.com/warp/budget-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the API needs from persistence.
type Store interface {
	budget.ChangeStore
	budget.ColumnStore
	budget.ProjectStore
	DeleteProject(ctx context.Context, id budget.ProjectID) error
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         Store
	ImportFactory *factory.ImportFactory

	// HistoryLimit caps undo steps of new sessions; 0 is unlimited.
	HistoryLimit int

	sessions *sessions

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store Store) *Handler {
	return &Handler{
		Store:         store,
		ImportFactory: factory.NewImportFactory(),
		sessions:      newSessions(),
	}
}

// session resolves {project} to its loaded session, writing the error
// response itself when that fails.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*budget.Session, bool) {
	project := budget.ProjectID(chi.URLParam(r, "project"))
	if _, err := h.Store.GetProject(r.Context(), project); err != nil {
		writeDomainError(w, "Failed to open project", err)
		return nil, false
	}
	s, err := h.sessions.get(r.Context(), h.Store, project, budget.WithHistoryLimit(h.HistoryLimit))
	if err != nil {
		writeDomainError(w, "Failed to load budget", err)
		return nil, false
	}
	return s, true
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects returns all projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects", err)
		return
	}

	dtos := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		dtos[i] = toProjectDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProject creates an empty project.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	id := budget.ProjectID(strings.TrimSpace(req.ID))
	if id == "" {
		id = budget.ProjectID(uuid.NewString())
	}

	ctx := r.Context()
	if _, err := h.Store.GetProject(ctx, id); err == nil {
		writeError(w, http.StatusConflict, "Project already exists", nil)
		return
	}
	if err := h.Store.SaveProject(ctx, budget.Project{ID: id, Name: req.Name}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create project", err)
		return
	}
	p, err := h.Store.GetProject(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to read project", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectDTO(p))
}

// GetProject returns a single project.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetProject(r.Context(), budget.ProjectID(chi.URLParam(r, "project")))
	if err != nil {
		writeDomainError(w, "Failed to get project", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(p))
}

// DeleteProject removes a project, its budget and any open session.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	project := budget.ProjectID(chi.URLParam(r, "project"))
	if err := h.Store.DeleteProject(r.Context(), project); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete project", err)
		return
	}
	h.sessions.drop(project)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "project": string(project)})
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// GetBudget returns the session state with aggregated rows.
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(s))
}

// ReloadBudget re-reads the stored list. Fails with 409 over unsaved edits.
func (h *Handler) ReloadBudget(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Load(r.Context()); err != nil {
		writeDomainError(w, "Failed to reload budget", err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(s))
}

// BeginEdit enters edit mode.
func (h *Handler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Begin()
	writeJSON(w, http.StatusOK, toBudgetDTO(s))
}

// SaveBudget persists the working list. On failure the session stays in
// edit mode so the save can be retried.
func (h *Handler) SaveBudget(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Save(r.Context()); err != nil {
		writeDomainError(w, "Failed to save budget", err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(s))
}

// CancelEdit discards the working list. With edits, the body must carry
// {"confirm": true}.
func (h *Handler) CancelEdit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := s.Cancel(func() bool { return req.Confirm }); err != nil {
		writeDomainError(w, "Failed to cancel edit", err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(s))
}

// Undo steps back one edit.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, (*budget.Session).Undo)
}

// Redo steps forward one edit.
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, (*budget.Session).Redo)
}

func (h *Handler) step(w http.ResponseWriter, r *http.Request, move func(*budget.Session) bool) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if s.Mode() != budget.ModeEditing {
		writeDomainError(w, "History is only available while editing", budget.ErrNotEditing)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Changed: move(s), Budget: toBudgetDTO(s)})
}

// HandleKey runs a keyboard shortcut against the focused item.
func (h *Handler) HandleKey(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req KeyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	key, err := budget.ParseKey(req.Key)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key", err)
		return
	}

	handled, err := s.HandleKey(key, req.FocusedID)
	resp := MutationResponse{Handled: &handled}
	if !handled {
		resp.Budget = toBudgetDTO(s)
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeMutation(w, s, err, resp)
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// itemCommand adapts a per-item session command to a handler.
func (h *Handler) itemCommand(run func(s *budget.Session, id budget.ItemID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := h.session(w, r)
		if !ok {
			return
		}
		id, ok := itemID(w, r)
		if !ok {
			return
		}
		writeMutation(w, s, run(s, id), MutationResponse{})
	}
}

// creation adapts a session command that creates an item.
func (h *Handler) creation(w http.ResponseWriter, s *budget.Session, create func() (budget.ItemID, error)) {
	id, err := create()
	resp := MutationResponse{}
	if err == nil {
		resp.CreatedID = &id
	}
	writeMutation(w, s, err, resp)
}

// AppendItem adds an empty root item at the end.
func (h *Handler) AppendItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.creation(w, s, s.AppendRoot)
}

// InsertAfter adds an empty sibling after the item's subtree.
func (h *Handler) InsertAfter(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	h.creation(w, s, func() (budget.ItemID, error) { return s.InsertAfter(id) })
}

// DuplicateItem copies the item next to itself.
func (h *Handler) DuplicateItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	h.creation(w, s, func() (budget.ItemID, error) { return s.Duplicate(id) })
}

// EditItem sets one field: {"field": "quantity", "value": "12,5"}.
func (h *Handler) EditItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req EditValueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	field, err := budget.ParseField(req.Field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid field", err)
		return
	}
	value, err := rawText(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid value", err)
		return
	}
	writeMutation(w, s, s.EditValue(id, field, value), MutationResponse{})
}

// SetLevel reparents the item by the level typed into its level cell.
func (h *Handler) SetLevel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req LevelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	writeMutation(w, s, s.ReparentByLevel(id, req.Level), MutationResponse{})
}

// DragItem drops the item onto target_id.
func (h *Handler) DragItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req DragRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	writeMutation(w, s, s.DragReparent(id, req.TargetID), MutationResponse{})
}

// DeleteItems deletes every listed item with its subtree.
func (h *Handler) DeleteItems(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req DeleteItemsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	writeMutation(w, s, s.Delete(req.IDs...), MutationResponse{})
}

// ExpandAll expands or collapses every parent row.
func (h *Handler) ExpandAll(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ExpandAllRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	writeMutation(w, s, s.SetExpandedAll(req.Expanded), MutationResponse{})
}

// ImportBudget imports loosely typed records as one undoable step.
func (h *Handler) ImportBudget(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ImportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	mode, err := budget.ParseImportMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid import mode", err)
		return
	}
	records, err := h.ImportFactory.Parse(req.Records)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid import records", err)
		return
	}

	report, err := s.ImportRecords(records, mode)
	writeMutation(w, s, err, MutationResponse{Report: &report})
}

// =============================================================================
// OUTPUT HANDLERS
// =============================================================================

// ExportExcel downloads the budget as an .xlsx file. While editing, the
// working list is exported.
func (h *Handler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	p, err := h.Store.GetProject(ctx, s.Project())
	if err != nil {
		writeDomainError(w, "Failed to get project", err)
		return
	}
	cols, err := h.columns(ctx, s.Project())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load columns", err)
		return
	}

	title := p.Name
	if title == "" {
		title = string(p.ID)
	}
	data, err := export.Excel(title, s.Summary(), cols)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render spreadsheet", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(p.ID)+".xlsx"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// columns returns the saved layout of project, or the default one.
func (h *Handler) columns(ctx context.Context, project budget.ProjectID) (budget.ColumnConfig, error) {
	cfg, ok, err := h.Store.LoadColumns(ctx, project)
	if err != nil {
		return budget.ColumnConfig{}, err
	}
	if !ok {
		return budget.DefaultColumns(), nil
	}
	return cfg.Normalize(), nil
}

// GetColumns returns the column layout.
func (h *Handler) GetColumns(w http.ResponseWriter, r *http.Request) {
	project := budget.ProjectID(chi.URLParam(r, "project"))
	if _, err := h.Store.GetProject(r.Context(), project); err != nil {
		writeDomainError(w, "Failed to get project", err)
		return
	}
	cfg, err := h.columns(r.Context(), project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load columns", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutColumns replaces the column layout. Unknown keys are dropped and
// widths clamped.
func (h *Handler) PutColumns(w http.ResponseWriter, r *http.Request) {
	project := budget.ProjectID(chi.URLParam(r, "project"))
	ctx := r.Context()
	if _, err := h.Store.GetProject(ctx, project); err != nil {
		writeDomainError(w, "Failed to get project", err)
		return
	}
	var cfg budget.ColumnConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	for _, c := range cfg.Columns {
		if _, err := budget.ParsePin(string(c.Pinned)); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid column pin", err)
			return
		}
	}

	cfg = cfg.Normalize()
	if err := h.Store.SaveColumns(ctx, project, cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save columns", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// AutoSizeColumns fits every column width to the budget's rendered values
// and saves the result.
func (h *Handler) AutoSizeColumns(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	cfg, err := h.columns(ctx, s.Project())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load columns", err)
		return
	}

	cfg = cfg.AutoSize(s.Summary())
	if err := h.Store.SaveColumns(ctx, s.Project(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save columns", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a budget error to its HTTP status.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s: %v", message, err)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case budget.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, budget.ErrNotEditing), errors.Is(err, budget.ErrUnsavedChanges):
		return http.StatusConflict
	case errors.Is(err, budget.ErrRejected):
		return http.StatusUnprocessableEntity
	case budget.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeMutation writes the state after a command. ErrNoChange is a
// success with "changed": false.
func writeMutation(w http.ResponseWriter, s *budget.Session, err error, resp MutationResponse) {
	switch {
	case err == nil:
		resp.Changed = true
	case errors.Is(err, budget.ErrNoChange):
		resp.Changed = false
		resp.CreatedID = nil
	default:
		writeDomainError(w, "Command failed", err)
		return
	}
	resp.Budget = toBudgetDTO(s)
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody decodes a JSON body. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func itemID(w http.ResponseWriter, r *http.Request) (budget.ItemID, bool) {
	id, err := budget.ParseItemID(chi.URLParam(r, "id"))
	if err != nil || id.IsZero() {
		writeError(w, http.StatusBadRequest, "Invalid item id", err)
		return budget.ItemID{}, false
	}
	return id, true
}

// rawText turns a JSON string, number or null into the text a user would
// have typed.
func rawText(raw json.RawMessage) (string, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("value must be a string or a number")
	}
	return n.String(), nil
}
