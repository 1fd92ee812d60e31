/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (Store, ChangeStore, ColumnStore,
  ProjectStore) using SQLite. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  budget.Store:        Whole-list load and save
  budget.ChangeStore:  Row-level insert/update/delete on save
  budget.ColumnStore:  Column layout per project
  budget.ProjectStore: Project records

KEY TABLES:
  projects:       One row per construction project
  budget_items:   Flat item list; position keeps array (display) order
  column_configs: Column layout JSON per project

IDENTIFIERS:
  Item ids are stored as text: sequential ids as decimal digits, UUIDs in
  canonical form. budget.ParseItemID tells them apart on load.

DECIMALS:
  Quantities and costs are stored as TEXT (decimal.String) so no precision
  is lost to floating point.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/budget.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  session := budget.NewSession(store, "casa-01")

SEE ALSO:
  - budget/store.go: Interface definitions
  - budget/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS budget_items (
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		parent_id TEXT,
		level TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		code TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		quantity TEXT NOT NULL DEFAULT '0',
		material_unit_cost TEXT NOT NULL DEFAULT '0',
		labor_unit_cost TEXT NOT NULL DEFAULT '0',
		expanded BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (project_id, id)
	);

	-- Load path: whole list in display order
	CREATE INDEX IF NOT EXISTS idx_budget_items_project_position
		ON budget_items(project_id, position);

	CREATE TABLE IF NOT EXISTS column_configs (
		project_id TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// ITEM STORE (budget.Store interface)
// =============================================================================

// LoadItems returns the project's items in display order.
func (s *Store) LoadItems(ctx context.Context, project budget.ProjectID) ([]budget.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, level, source, code, description, unit,
		       quantity, material_unit_cost, labor_unit_cost, expanded
		FROM budget_items
		WHERE project_id = ?
		ORDER BY position ASC
	`, project)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []budget.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanItem(rows *sql.Rows) (budget.Item, error) {
	var it budget.Item
	var id string
	var parentID sql.NullString
	var qty, mat, labor string

	if err := rows.Scan(&id, &parentID, &it.Level, &it.Source, &it.Code, &it.Description,
		&it.Unit, &qty, &mat, &labor, &it.Expanded); err != nil {
		return it, fmt.Errorf("failed to scan item: %w", err)
	}

	var err error
	if it.ID, err = budget.ParseItemID(id); err != nil {
		return it, err
	}
	if parentID.Valid {
		if it.ParentID, err = budget.ParseItemID(parentID.String); err != nil {
			return it, err
		}
	}
	it.Quantity = parseDecimal(qty)
	it.MaterialUnitCost = parseDecimal(mat)
	it.LaborUnitCost = parseDecimal(labor)
	return it, nil
}

// SaveItems replaces the project's list in one transaction.
func (s *Store) SaveItems(ctx context.Context, project budget.ProjectID, items []budget.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM budget_items WHERE project_id = ?", project); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	for i, it := range items {
		if err := insertItem(ctx, sqlTx, project, it, i); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// ApplyChanges applies a change set in one transaction. An update or delete
// that matches no row aborts the whole set with budget.ErrItemNotFound.
func (s *Store) ApplyChanges(ctx context.Context, project budget.ProjectID, cs budget.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, id := range cs.Deleted {
		res, err := sqlTx.ExecContext(ctx,
			"DELETE FROM budget_items WHERE project_id = ? AND id = ?", project, id.String())
		if err != nil {
			return fmt.Errorf("failed to delete item %s: %w", id, err)
		}
		if err := requireRow(res, "delete", id); err != nil {
			return err
		}
	}

	for _, it := range cs.Updated {
		res, err := sqlTx.ExecContext(ctx, `
			UPDATE budget_items SET
				position = ?, parent_id = ?, level = ?, source = ?, code = ?,
				description = ?, unit = ?, quantity = ?, material_unit_cost = ?,
				labor_unit_cost = ?, expanded = ?, updated_at = ?
			WHERE project_id = ? AND id = ?
		`,
			cs.Positions[it.ID], nullID(it.ParentID), it.Level, it.Source, it.Code,
			it.Description, it.Unit, it.Quantity.String(), it.MaterialUnitCost.String(),
			it.LaborUnitCost.String(), it.Expanded, now(),
			project, it.ID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update item %s: %w", it.ID, err)
		}
		if err := requireRow(res, "update", it.ID); err != nil {
			return err
		}
	}

	for _, it := range cs.Inserted {
		if err := insertItem(ctx, sqlTx, project, it, cs.Positions[it.ID]); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func insertItem(ctx context.Context, db execer, project budget.ProjectID, it budget.Item, position int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO budget_items
		(project_id, id, position, parent_id, level, source, code, description, unit,
		 quantity, material_unit_cost, labor_unit_cost, expanded, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		project, it.ID.String(), position, nullID(it.ParentID), it.Level, it.Source, it.Code,
		it.Description, it.Unit, it.Quantity.String(), it.MaterialUnitCost.String(),
		it.LaborUnitCost.String(), it.Expanded, now(),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %s", budget.ErrProjectNotFound, project)
		}
		return fmt.Errorf("failed to insert item %s: %w", it.ID, err)
	}
	return nil
}

func requireRow(res sql.Result, op string, id budget.ItemID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, budget.ErrItemNotFound)
	}
	return nil
}

// =============================================================================
// COLUMN STORE (budget.ColumnStore interface)
// =============================================================================

func (s *Store) LoadColumns(ctx context.Context, project budget.ProjectID) (budget.ColumnConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT config_json FROM column_configs WHERE project_id = ?", project,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return budget.ColumnConfig{}, false, nil
	}
	if err != nil {
		return budget.ColumnConfig{}, false, fmt.Errorf("failed to load columns: %w", err)
	}

	var cfg budget.ColumnConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return budget.ColumnConfig{}, false, fmt.Errorf("failed to decode columns: %w", err)
	}
	return cfg, true, nil
}

func (s *Store) SaveColumns(ctx context.Context, project budget.ProjectID, cfg budget.ColumnConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO column_configs (project_id, config_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`, project, string(raw), now())
	if isForeignKeyError(err) {
		return fmt.Errorf("%w: %s", budget.ErrProjectNotFound, project)
	}
	return err
}

// =============================================================================
// PROJECT STORE (budget.ProjectStore interface)
// =============================================================================

// SaveProject creates or renames a project.
func (s *Store) SaveProject(ctx context.Context, p budget.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, p.ID, p.Name, createdAt.Format(time.RFC3339))
	return err
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(ctx context.Context, id budget.ProjectID) (budget.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p budget.Project
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return budget.Project{}, fmt.Errorf("%w: %s", budget.ErrProjectNotFound, id)
	}
	if err != nil {
		return budget.Project{}, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return p, nil
}

// ListProjects returns all projects.
func (s *Store) ListProjects(ctx context.Context) ([]budget.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM projects ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []budget.Project
	for rows.Next() {
		var p budget.Project
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project with its items and column layout.
func (s *Store) DeleteProject(ctx context.Context, id budget.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"budget_items", "column_configs", "projects"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullID(id budget.ItemID) sql.NullString {
	if id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
