package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warp/budget-engine/budget"
)

// sessionEntry is a loaded session plus the time it was last used.
type sessionEntry struct {
	session  *budget.Session
	lastUsed time.Time
}

// sessions keeps one budget.Session per project. Sessions are created and
// loaded on first use and live until evicted.
type sessions struct {
	mu      sync.Mutex
	entries map[budget.ProjectID]*sessionEntry
	now     func() time.Time
}

func newSessions() *sessions {
	return &sessions{
		entries: make(map[budget.ProjectID]*sessionEntry),
		now:     time.Now,
	}
}

// get returns the session of project, loading it from store if needed.
// The registry lock is held while loading so a project is never loaded
// twice concurrently.
func (r *sessions) get(ctx context.Context, store budget.Store, project budget.ProjectID, opts ...budget.SessionOption) (*budget.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[project]; ok {
		e.lastUsed = r.now()
		return e.session, nil
	}
	s := budget.NewSession(store, project, opts...)
	if err := s.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	r.entries[project] = &sessionEntry{session: s, lastUsed: r.now()}
	return s, nil
}

// drop forgets the session of project, discarding unsaved edits.
func (r *sessions) drop(project budget.ProjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, project)
}

func (r *sessions) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[budget.ProjectID]*sessionEntry)
}

// evictIdle drops viewing sessions unused for longer than idle and returns
// the evicted projects. Editing sessions are kept, saved or not. A session
// with unstored expand/collapse changes is flushed first and kept if the
// flush fails.
func (r *sessions) evictIdle(ctx context.Context, idle time.Duration) []budget.ProjectID {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	var evicted []budget.ProjectID
	for project, e := range r.entries {
		if e.session.Mode() == budget.ModeEditing || e.lastUsed.After(cutoff) {
			continue
		}
		if err := e.session.Flush(ctx); err != nil {
			log.Printf("[Sweeper] Keeping session %s: %v", project, err)
			continue
		}
		delete(r.entries, project)
		evicted = append(evicted, project)
	}
	return evicted
}

func (r *sessions) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
