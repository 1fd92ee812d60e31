// Package store provides in-memory budget.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements budget.ChangeStore, budget.ColumnStore and
// budget.ProjectStore. Unknown projects load as empty budgets.
type Memory struct {
	mu       sync.RWMutex
	items    map[budget.ProjectID][]budget.Item
	columns  map[budget.ProjectID]budget.ColumnConfig
	projects map[budget.ProjectID]budget.Project
}

func NewMemory() *Memory {
	return &Memory{
		items:    make(map[budget.ProjectID][]budget.Item),
		columns:  make(map[budget.ProjectID]budget.ColumnConfig),
		projects: make(map[budget.ProjectID]budget.Project),
	}
}

func (m *Memory) LoadItems(_ context.Context, project budget.ProjectID) ([]budget.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return budget.Clone(m.items[project]), nil
}

// SaveItems replaces the whole list.
func (m *Memory) SaveItems(_ context.Context, project budget.ProjectID, items []budget.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[project] = budget.Clone(items)
	return nil
}

// ApplyChanges applies a change set atomically: either every change is
// applied or, on error, the stored list is left as it was.
func (m *Memory) ApplyChanges(_ context.Context, project budget.ProjectID, cs budget.ChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := applyChangeSet(m.items[project], cs)
	if err != nil {
		return fmt.Errorf("failed to apply changes to %s: %w", project, err)
	}
	m.items[project] = next
	return nil
}

// applyChangeSet builds the new list without touching cur. Inserted and
// updated items go to their recorded positions; untouched items fill the
// remaining slots in their previous order.
func applyChangeSet(cur []budget.Item, cs budget.ChangeSet) ([]budget.Item, error) {
	present := budget.NewIDSet()
	for _, it := range cur {
		present.Add(it.ID)
	}
	deleted := budget.NewIDSet(cs.Deleted...)
	for _, id := range cs.Deleted {
		if !present.Has(id) {
			return nil, fmt.Errorf("delete %s: %w", id, budget.ErrItemNotFound)
		}
	}
	changed := budget.NewIDSet()
	for _, it := range cs.Updated {
		if !present.Has(it.ID) || deleted.Has(it.ID) {
			return nil, fmt.Errorf("update %s: %w", it.ID, budget.ErrItemNotFound)
		}
		changed.Add(it.ID)
	}
	for _, it := range cs.Inserted {
		if present.Has(it.ID) {
			return nil, fmt.Errorf("insert %s: duplicate id", it.ID)
		}
		changed.Add(it.ID)
	}

	n := len(cur) - len(deleted) + len(cs.Inserted)
	out := make([]budget.Item, n)
	placed := make([]bool, n)
	for _, group := range [][]budget.Item{cs.Updated, cs.Inserted} {
		for _, it := range group {
			pos, ok := cs.Positions[it.ID]
			if !ok || pos < 0 || pos >= n || placed[pos] {
				return nil, fmt.Errorf("item %s: invalid position %d", it.ID, pos)
			}
			out[pos] = it
			placed[pos] = true
		}
	}
	slot := 0
	for _, it := range cur {
		if deleted.Has(it.ID) || changed.Has(it.ID) {
			continue
		}
		for placed[slot] {
			slot++
		}
		out[slot] = it
		placed[slot] = true
	}
	return out, nil
}

// =============================================================================
// COLUMNS
// =============================================================================

func (m *Memory) LoadColumns(_ context.Context, project budget.ProjectID) (budget.ColumnConfig, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.columns[project]
	if !ok {
		return budget.ColumnConfig{}, false, nil
	}
	return cfg.Clone(), true, nil
}

func (m *Memory) SaveColumns(_ context.Context, project budget.ProjectID, cfg budget.ColumnConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.columns[project] = cfg.Clone()
	return nil
}

// =============================================================================
// PROJECTS
// =============================================================================

func (m *Memory) ListProjects(_ context.Context) ([]budget.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]budget.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetProject(_ context.Context, id budget.ProjectID) (budget.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return budget.Project{}, fmt.Errorf("%w: %s", budget.ErrProjectNotFound, id)
	}
	return p, nil
}

func (m *Memory) SaveProject(_ context.Context, p budget.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.projects[p.ID] = p
	return nil
}

// DeleteProject removes a project with its items and column layout.
func (m *Memory) DeleteProject(_ context.Context, id budget.ProjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	delete(m.items, id)
	delete(m.columns, id)
	return nil
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[budget.ProjectID][]budget.Item)
	m.columns = make(map[budget.ProjectID]budget.ColumnConfig)
	m.projects = make(map[budget.ProjectID]budget.Project)
	return nil
}
