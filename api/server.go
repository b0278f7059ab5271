/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     zerolog access log carrying the request id
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Sentry:     Hub per request, panics reported (when enabled)
  6. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/users/*          Employees, warnings, hours
  /api/tasks/*          Tasks
  /api/leaves/*         Leave applications
  /api/wfh/*            Work-from-home applications
  /api/bugs/*           Bugs and comments
  /api/calendar/{date}  Holiday calendar
  /api/admin/*          Sweep, warnings, scheduler run
  /api/health           Cache and scheduler state
  /tabular/*            Local store served over the remote wire format (optional)

SECURITY NOTE:
  No authentication middleware. Sessions are handled by the fronting
  application.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/warp/workforce-engine/logging"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger      zerolog.Logger
	CORSOrigins []string

	// Sentry attaches a hub to every request. Requires sentry.Init.
	Sentry bool

	// Tabular, when set, is mounted at /tabular.
	Tabular http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	if opts.Sentry && sentry.CurrentHub().Client() != nil {
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{DegradedHeader, "Retry-After"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/calendar/{date}", h.Calendar)

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeactivateUser)
			r.Post("/{id}/reactivate", h.ReactivateUser)
			r.Get("/{id}/tasks", h.UserTasks)
			r.Post("/{id}/warnings/check", h.CheckWarning)
			r.Post("/{id}/warnings/reset", h.ResetWarnings)
			r.Post("/{id}/hours", h.LogHours)
			r.Get("/{id}/hours", h.WorkHours)
		})

		// Task routes
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)
			r.Get("/{id}", h.GetTask)
			r.Put("/{id}", h.UpdateTask)
			r.Delete("/{id}", h.DeleteTask)
		})

		// Application routes
		r.Route("/leaves", h.leaveOps().routes)
		r.Route("/wfh", h.wfhOps().routes)

		// Bug routes
		r.Route("/bugs", func(r chi.Router) {
			r.Get("/", h.ListBugs)
			r.Post("/", h.ReportBug)
			r.Get("/{id}", h.GetBug)
			r.Put("/{id}", h.UpdateBug)
			r.Delete("/{id}", h.DeleteBug)
			r.Post("/{id}/status", h.TransitionBug)
			r.Get("/{id}/comments", h.ListComments)
			r.Post("/{id}/comments", h.AddComment)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.Sweep)
			r.Post("/warnings", h.Warnings)
			r.Post("/run", h.RunScheduler)
		})
	})

	if opts.Tabular != nil {
		r.Mount("/tabular", opts.Tabular)
	}

	return r
}
