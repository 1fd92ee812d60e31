package budget

import (
	"context"
	"time"
)

// Project is a budget owner: one construction project, one item list.
type Project struct {
	ID        ProjectID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists the canonical item list of each project. The engine calls
// it only at the edges of an edit session: Load and Save.
type Store interface {
	LoadItems(ctx context.Context, project ProjectID) ([]Item, error)
	SaveItems(ctx context.Context, project ProjectID, items []Item) error
}

// ChangeStore is a Store that can apply row-level inserts, updates and
// deletes instead of rewriting the whole list. Session.Save prefers it.
type ChangeStore interface {
	Store
	ApplyChanges(ctx context.Context, project ProjectID, changes ChangeSet) error
}

// ColumnStore persists the table column layout of each project.
// LoadColumns reports false when nothing was saved yet.
type ColumnStore interface {
	LoadColumns(ctx context.Context, project ProjectID) (ColumnConfig, bool, error)
	SaveColumns(ctx context.Context, project ProjectID, cfg ColumnConfig) error
}

// ProjectStore keeps the project records. GetProject returns
// ErrProjectNotFound for unknown ids.
type ProjectStore interface {
	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id ProjectID) (Project, error)
	SaveProject(ctx context.Context, p Project) error
}
