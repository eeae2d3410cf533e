// Package httpapi exposes the library service over HTTP.
package httpapi

import (
	"net/http"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/assets"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/catalog"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/circulation"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/health"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/importer"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/membership"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/metrics"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/notice"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/overdue"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the services the HTTP layer delegates to
type Deps struct {
	Members     *membership.Service
	Catalog     *catalog.Service
	Circulation *circulation.Service
	Notices     *notice.Service
	Importer    *importer.Pipeline
	Overdue     *overdue.Job
	Assets      *assets.Store
	Health      *health.Server
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer

	CronSecret     string
	MaxImportBytes int64
}

// Server holds the HTTP handlers
type Server struct {
	members     *membership.Service
	catalog     *catalog.Service
	circulation *circulation.Service
	notices     *notice.Service
	importer    *importer.Pipeline
	overdue     *overdue.Job
	assets      *assets.Store
	health      *health.Server
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer

	cronSecret     string
	maxImportBytes int64
	log            *zap.Logger
}

// NewServer creates the HTTP server handlers
func NewServer(deps Deps, log *zap.Logger) *Server {
	return &Server{
		members:        deps.Members,
		catalog:        deps.Catalog,
		circulation:    deps.Circulation,
		notices:        deps.Notices,
		importer:       deps.Importer,
		overdue:        deps.Overdue,
		assets:         deps.Assets,
		health:         deps.Health,
		metrics:        deps.Metrics,
		gatherer:       deps.Gatherer,
		cronSecret:     deps.CronSecret,
		maxImportBytes: deps.MaxImportBytes,
		log:            log,
	}
}

// Router builds the route tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(correlate)

	if s.health != nil {
		r.Get("/healthz", s.health.Handler())
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.assets != nil {
		r.Handle("/assets/*", http.StripPrefix("/assets/", s.assets.Handler()))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/cron/overdue-loans", s.handleOverdueLoans)
		r.Get("/cron/overdue-loans", s.handleOverdueLoans)

		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/me", s.handleMe)

			r.Get("/books", s.handleListBooks)
			r.Get("/books/{id}", s.handleGetBook)

			r.Post("/loans", s.handleRequestLoan)
			r.Get("/loans", s.handleMyLoans)

			r.Get("/notifications", s.handleNotifications)
			r.Post("/notifications/read-all", s.handleMarkAllRead)
			r.Post("/notifications/{id}/read", s.handleMarkRead)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)

				r.Get("/dashboard", s.handleDashboard)

				r.Get("/users", s.handleListUsers)
				r.Post("/users", s.handleCreateUser)
				r.Patch("/users/{id}/role", s.handleUpdateRole)

				r.Post("/books", s.handleSaveBook)
				r.Delete("/books/{id}", s.handleDeleteBook)
				r.Post("/books/import", s.handleImport)
				r.Post("/books/import/commit", s.handleCommitImport)

				r.Get("/loans", s.handleListLoans)
				r.Post("/loans/{id}/{action}", s.handleLoanAction)
			})
		})
	})

	return r
}
