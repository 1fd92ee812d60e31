/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/projects/*                      Projects
  /api/projects/{project}/budget/*     Edit session and items
  /api/projects/{project}/columns/*    Column layout
  /api/scenarios/*                     Demo budgets
  /*                                   Static files (frontend)

STATIC FILE SERVING:
  Serves a built single-page app from RouterOptions.StaticDir when it
  exists, falling back to index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/budget-engine/budget"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	CORSOrigins []string
	StaticDir   string
}

// DefaultRouterOptions allows the local dev frontends.
func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		CORSOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		StaticDir:   "./web/dist",
	}
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.ListProjects)
			r.Post("/", h.CreateProject)

			r.Route("/{project}", func(r chi.Router) {
				r.Get("/", h.GetProject)
				r.Delete("/", h.DeleteProject)

				r.Route("/budget", func(r chi.Router) {
					r.Get("/", h.GetBudget)
					r.Get("/export.xlsx", h.ExportExcel)
					r.Post("/reload", h.ReloadBudget)
					r.Post("/edit", h.BeginEdit)
					r.Post("/save", h.SaveBudget)
					r.Post("/cancel", h.CancelEdit)
					r.Post("/undo", h.Undo)
					r.Post("/redo", h.Redo)
					r.Post("/keys", h.HandleKey)
					r.Post("/import", h.ImportBudget)
					r.Post("/expand-all", h.ExpandAll)

					r.Route("/items", func(r chi.Router) {
						r.Post("/", h.AppendItem)
						r.Post("/delete", h.DeleteItems)
						r.Patch("/{id}", h.EditItem)
						r.Delete("/{id}", h.itemCommand(deleteItem))
						r.Post("/{id}/level", h.SetLevel)
						r.Post("/{id}/indent", h.itemCommand((*budget.Session).Indent))
						r.Post("/{id}/outdent", h.itemCommand((*budget.Session).Outdent))
						r.Post("/{id}/toggle", h.itemCommand((*budget.Session).ToggleExpand))
						r.Post("/{id}/duplicate", h.DuplicateItem)
						r.Post("/{id}/insert-after", h.InsertAfter)
						r.Post("/{id}/drag", h.DragItem)
					})
				})

				r.Route("/columns", func(r chi.Router) {
					r.Get("/", h.GetColumns)
					r.Put("/", h.PutColumns)
					r.Post("/autosize", h.AutoSizeColumns)
				})
			})
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	staticDir := opts.StaticDir
	if staticDir != "" {
		if _, err := os.Stat(staticDir); os.IsNotExist(err) {
			exe, _ := os.Executable()
			staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
		}
	}

	if _, err := os.Stat(staticDir); staticDir != "" && err == nil {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			fullPath := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))
			if _, err := os.Stat(fullPath); os.IsNotExist(err) {
				// SPA routing: serve index.html
				http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	} else {
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Budget Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Budget Engine API</h1>
<p>No frontend build found.</p>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/projects">/api/projects</a> - List projects</li>
<li><a href="/api/scenarios">/api/scenarios</a> - List demo budgets</li>
</ul>
</body>
</html>`))
		})
	}

	return r
}

func deleteItem(s *budget.Session, id budget.ItemID) error {
	return s.Delete(id)
}
