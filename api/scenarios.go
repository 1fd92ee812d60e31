/*
scenarios.go - Demo budgets for testing and demonstrations

PURPOSE:

	Provides pre-built budgets that populate the database with realistic
	construction data for demos and UI development.

AVAILABLE SCENARIOS:

	casa-terrea:       Single-storey house, three levels deep
	reforma-banheiro:  Small bathroom renovation, flat list with one group
	galpao-importado:  Warehouse budget built through the bulk import path,
	                   with pt-BR keys and combined unit costs

HOW SCENARIOS WORK:
 1. Reset database (clear all data) and drop open sessions
 2. Create the project
 3. Save its normalized item list

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "casa-terrea"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Session handlers
  - factory/import.go: JSON used by galpao-importado
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "casa-terrea",
		Name:        "Casa térrea",
		Description: "Single-storey house: foundation, structure, masonry and finishes",
		Category:    "residential",
	},
	{
		ID:          "reforma-banheiro",
		Name:        "Reforma de banheiro",
		Description: "Bathroom renovation with demolition and a small finishes group",
		Category:    "renovation",
	},
	{
		ID:          "galpao-importado",
		Name:        "Galpão (importado)",
		Description: "Warehouse budget loaded through the bulk import pipeline",
		Category:    "import",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads one scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data and open sessions.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.sessions.clear()
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// LoadScenarioByID resets the database and loads scenario id.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	var build func() (budget.Project, []budget.Item, error)
	switch id {
	case "casa-terrea":
		build = casaTerrea
	case "reforma-banheiro":
		build = reformaBanheiro
	case "galpao-importado":
		build = h.galpaoImportado
	default:
		return fmt.Errorf("unknown scenario %q", id)
	}

	project, items, err := build()
	if err != nil {
		return err
	}
	if err := h.reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	if err := h.Store.SaveProject(ctx, project); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	if err := h.Store.SaveItems(ctx, project.ID, items); err != nil {
		return fmt.Errorf("failed to save items: %w", err)
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	return nil
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

func group(n int64, parent int64, desc string) budget.Item {
	return budget.Item{ID: budget.SeqID(n), ParentID: seqOrRoot(parent), Description: desc, Expanded: true}
}

func leaf(n int64, parent int64, source, code, desc, unit, qty, mat, labor string) budget.Item {
	return budget.Item{
		ID:               budget.SeqID(n),
		ParentID:         seqOrRoot(parent),
		Source:           source,
		Code:             code,
		Description:      desc,
		Unit:             unit,
		Quantity:         budget.Dec(qty),
		MaterialUnitCost: budget.Dec(mat),
		LaborUnitCost:    budget.Dec(labor),
	}
}

func seqOrRoot(n int64) budget.ItemID {
	if n == 0 {
		return budget.ItemID{}
	}
	return budget.SeqID(n)
}

func casaTerrea() (budget.Project, []budget.Item, error) {
	items := []budget.Item{
		group(1, 0, "Serviços preliminares"),
		leaf(2, 1, "SINAPI", "98524", "Limpeza manual do terreno", "m2", "250", "0", "3.12"),
		leaf(3, 1, "SINAPI", "99059", "Locação da obra com gabarito", "m", "64", "9.80", "14.35"),
		group(4, 0, "Fundação"),
		leaf(5, 4, "SINAPI", "96522", "Escavação manual de vala", "m3", "18.5", "0", "57.20"),
		group(6, 4, "Sapatas"),
		leaf(7, 6, "SINAPI", "96557", "Concreto fck 25 MPa para sapatas", "m3", "6.2", "512.40", "88.10"),
		leaf(8, 6, "SINAPI", "96546", "Armação de sapata aço CA-50", "kg", "310", "8.65", "2.90"),
		group(9, 0, "Estrutura"),
		leaf(10, 9, "SINAPI", "92778", "Armação de pilares aço CA-50 10mm", "kg", "420", "8.40", "2.75"),
		leaf(11, 9, "SINAPI", "92417", "Fôrma de pilares em madeira", "m2", "96", "38.90", "41.60"),
		group(12, 0, "Alvenaria"),
		leaf(13, 12, "SINAPI", "87503", "Alvenaria de vedação bloco cerâmico 9cm", "m2", "310", "42.75", "31.20"),
		group(14, 0, "Acabamentos"),
		leaf(15, 14, "SINAPI", "87879", "Chapisco em paredes internas", "m2", "620", "2.10", "3.05"),
		leaf(16, 14, "SINAPI", "87529", "Massa única em paredes internas", "m2", "620", "9.80", "17.40"),
		leaf(17, 14, "SINAPI", "88489", "Pintura látex acrílica duas demãos", "m2", "620", "7.90", "9.15"),
	}
	return budget.Project{ID: "casa-terrea", Name: "Casa térrea 70m²"}, budget.NormalizeHierarchy(items), nil
}

func reformaBanheiro() (budget.Project, []budget.Item, error) {
	items := []budget.Item{
		leaf(1, 0, "", "", "Demolição de revestimento cerâmico", "m2", "22", "0", "18.50"),
		leaf(2, 0, "", "", "Retirada de entulho", "vb", "1", "350", "0"),
		group(3, 0, "Revestimentos"),
		leaf(4, 3, "", "", "Porcelanato 60x60 piso", "m2", "4.5", "89.90", "45"),
		leaf(5, 3, "", "", "Revestimento cerâmico parede", "m2", "17.5", "54.90", "42"),
		leaf(6, 0, "", "", "Louças e metais", "cj", "1", "1850", "380"),
	}
	return budget.Project{ID: "reforma-banheiro", Name: "Reforma de banheiro"}, budget.NormalizeHierarchy(items), nil
}

const galpaoJSON = `{"itens": [
	{"nivel": "1", "descricao": "Movimento de terra"},
	{"nivel": "1.1", "fonte": "SINAPI", "codigo": "100576", "descricao": "Regularização de terreno", "unidade": "m2", "quantidade": "1200", "custo_material": 0, "custo_mao_obra": "2,85"},
	{"nivel": "1.2", "descricao": "Compactação mecânica", "unidade": "m3", "quantidade": 360, "custo_material": "4,10", "custo_mao_obra": "6,20", "custo_unitario_combinado": true},
	{"nivel": "2", "descricao": "Estrutura metálica"},
	{"nivel": "2.1", "descricao": "Pórticos em aço ASTM A36", "unidade": "kg", "quantidade": 18500, "custo_material": "11,40", "custo_mao_obra": "3,60"},
	{"nivel": "2.2", "descricao": "Telhas termoacústicas", "unidade": "m2", "quantidade": 1250, "custo_material": "98,00", "custo_mao_obra": "21,50"},
	{"nivel": "3", "descricao": "Piso industrial", "unidade": "m2", "quantidade": 1150, "custo_material": 72, "custo_mao_obra": 28}
]}`

func (h *Handler) galpaoImportado() (budget.Project, []budget.Item, error) {
	records, err := h.ImportFactory.Parse([]byte(galpaoJSON))
	if err != nil {
		return budget.Project{}, nil, err
	}
	items, _ := budget.Import(records, 1)
	return budget.Project{ID: "galpao-importado", Name: "Galpão logístico"}, items, nil
}
