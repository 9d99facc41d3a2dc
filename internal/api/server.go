package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/press-vault/internal/config"
	"github.com/press-vault/internal/deploy"
	"github.com/press-vault/internal/githost"
	"github.com/press-vault/internal/store"
)

// Server represents the HTTP server
type Server struct {
	*http.Server
	router        chi.Router
	store         *store.VersionedStore
	orchestrator  *deploy.Orchestrator
	githost       *githost.Client
	webhookSecret string
	retention     config.RetentionConfig
	fetcherFor    FetcherFactory
}

// FetcherFactory builds a per-push content fetcher pinned to the pushed
// commit. The server never reads the source repository directly.
type FetcherFactory func(repository, sha string) deploy.FetchContentFunc

// NewServer creates a new HTTP server with all routes configured
func NewServer(cfg *config.Config, st *store.VersionedStore, orch *deploy.Orchestrator, gh *githost.Client, fetcherFor FetcherFactory) *Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		Server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: r,
		},
		router:        r,
		store:         st,
		orchestrator:  orch,
		githost:       gh,
		webhookSecret: cfg.Webhook.Secret,
		retention:     cfg.Retention,
		fetcherFor:    fetcherFor,
	}

	// Setup routes
	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Health check
		r.Get("/health", s.handleHealth)

		// Content
		r.Get("/content", s.handleListContent)
		r.Get("/content/{id:.*}/versions", s.handleListVersions)
		r.Get("/content/{id:.*}/diff/{v1}/{v2}", s.handleDiff)
		r.Post("/content/{id:.*}/rollback/{version}", s.handleRollback)
		r.Post("/content/{id:.*}/promote", s.handlePromote)
		r.Post("/content/{id:.*}/resolve", s.handleResolve)
		r.Post("/content/{id:.*}/cleanup", s.handleCleanup)
		r.Post("/content/{id:.*}", s.handleStoreContent)
		r.Delete("/content/{id:.*}", s.handleDeleteContent)
		r.Get("/content/{id:.*}", s.handleGetContent)

		// Batches
		r.Post("/batch/store", s.handleBatchStore)
		r.Post("/batch/get", s.handleBatchGet)
		r.Post("/batch/delete", s.handleBatchDelete)

		// Storage metrics and blob hygiene
		r.Get("/metrics", s.handleMetrics)
		r.Get("/orphans", s.handleOrphanedBlobs)
	})

	// Webhook entry point; signature-checked against the raw body.
	s.router.Post("/webhook", s.handleWebhook)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
