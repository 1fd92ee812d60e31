/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the budget engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load the TOML config file (defaults when missing)
  3. Initialize the store (SQLite, or in-memory for demos)
  4. Create API handler, optionally seeding a demo scenario
  5. Start the idle session sweeper
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  TOML config file (default: budget.toml)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database, or set
           database.driver = "memory" in the config to skip SQLite

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the sweeper and close the database
  4. Exit

EXAMPLES:
  ./server -config=/etc/budget/budget.toml
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - config/config.go: Config file format
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/budget/store"
	"github.com/warp/budget-engine/config"
	"github.com/warp/budget-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "budget.toml", "TOML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize store
	db, closeStore, err := openStore(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer closeStore()

	// Initialize handler
	handler := api.NewHandler(db)
	handler.HistoryLimit = cfg.Budget.HistoryLimit

	if cfg.Budget.Scenario != "" {
		seedScenario(handler, db, cfg.Budget.Scenario)
	}

	sweeper := api.NewSessionSweeper(handler)
	if cfg.Budget.SessionIdleTimeout > 0 {
		sweeper.IdleTimeout = time.Duration(cfg.Budget.SessionIdleTimeout) * time.Second
	} else {
		sweeper.Enabled = false
	}
	sweeper.Start()
	defer sweeper.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		StaticDir:   cfg.Server.StaticDir,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
		IdleTimeout:  cfg.Server.IdleTimeoutDuration(),
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost%s", server.Addr)
		log.Printf("API available at http://localhost%s/api", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		return
	}

	log.Println("Server stopped")
}

func openStore(cfg config.DatabaseConfig) (api.Store, func() error, error) {
	if cfg.Driver == "memory" {
		log.Println("Using in-memory store, data is lost on exit")
		return store.NewMemory(), func() error { return nil }, nil
	}
	db, err := sqlite.New(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

// seedScenario loads a demo budget into an empty database.
func seedScenario(handler *api.Handler, db api.Store, scenario string) {
	ctx := context.Background()
	projects, err := db.ListProjects(ctx)
	if err != nil {
		log.Printf("Warning: Failed to list projects: %v", err)
		return
	}
	if len(projects) > 0 {
		return
	}
	if err := handler.LoadScenarioByID(ctx, scenario); err != nil {
		log.Printf("Warning: Failed to load scenario %q: %v", scenario, err)
		return
	}
	log.Printf("Loaded demo scenario %q", scenario)
}
