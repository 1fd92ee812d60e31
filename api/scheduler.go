/*
scheduler.go - Idle session sweeper

PURPOSE:
  The handler keeps one loaded session per project it has served. The
  sweeper periodically drops the ones nobody used for a while, so a
  long-running server does not hold every budget it ever opened.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Only viewing sessions are evicted; an editing session holds work that
    exists nowhere else
  - An evicted project is simply reloaded from the store on next use

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - IdleTimeout:   Unused time before eviction (default: 30 minutes)
  - Enabled:       Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewSessionSweeper(handler)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - sessions.go: The session registry
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"
)

// SessionSweeper evicts idle sessions from a Handler.
type SessionSweeper struct {
	Handler       *Handler
	CheckInterval time.Duration
	IdleTimeout   time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSessionSweeper creates a new sweeper.
func NewSessionSweeper(handler *Handler) *SessionSweeper {
	return &SessionSweeper{
		Handler:       handler,
		CheckInterval: time.Minute,
		IdleTimeout:   30 * time.Minute,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the sweeper.
func (ss *SessionSweeper) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled || ss.CheckInterval <= 0 {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}
	if ss.ticker != nil {
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Sweeper] Started: interval %v, idle timeout %v", ss.CheckInterval, ss.IdleTimeout)
}

// Stop stops the sweeper and waits for a running sweep to finish.
func (ss *SessionSweeper) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.ticker = nil
		ss.stop = make(chan struct{})
		log.Println("[Sweeper] Stopped")
	}
}

func (ss *SessionSweeper) run() {
	defer ss.wg.Done()

	for {
		select {
		case <-ss.ticker.C:
			ss.Sweep()
		case <-ss.stop:
			return
		}
	}
}

// Sweep runs one eviction pass and returns how many sessions it dropped.
func (ss *SessionSweeper) Sweep() int {
	evicted := ss.Handler.sessions.evictIdle(context.Background(), ss.IdleTimeout)
	if len(evicted) > 0 {
		log.Printf("[Sweeper] Evicted %d idle session(s): %v", len(evicted), evicted)
	}
	return len(evicted)
}
