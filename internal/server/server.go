// Package server provides the HTTP server and routing for fundlens.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/fundlens/fundlens/internal/config"
	"github.com/fundlens/fundlens/internal/database"
	"github.com/fundlens/fundlens/internal/modules/platform"
	"github.com/fundlens/fundlens/internal/modules/portfolio"
	"github.com/fundlens/fundlens/internal/modules/screens"
	"github.com/fundlens/fundlens/internal/modules/snapshots"
	"github.com/fundlens/fundlens/internal/modules/workspace"
)

// Config holds server dependencies.
type Config struct {
	Log         zerolog.Logger
	Config      *config.Config
	ScreensDB   *database.DB
	PortfolioDB *database.DB
	Workspace   *workspace.Workspace
	Snapshots   *snapshots.Store
	Port        int
	DevMode     bool
}

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	screensDB      *database.DB
	portfolioDB    *database.DB
	workspace      *workspace.Workspace
	snapshots      *snapshots.Store
	extractor      *platform.Extractor
	screensRepo    *screens.Repository
	portfolioSvc   *portfolio.Service
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "server").Logger(),
		cfg:          cfg.Config,
		screensDB:    cfg.ScreensDB,
		portfolioDB:  cfg.PortfolioDB,
		workspace:    cfg.Workspace,
		snapshots:    cfg.Snapshots,
		extractor:    platform.NewExtractor(),
		screensRepo:  screens.NewRepository(cfg.ScreensDB, cfg.Log),
		portfolioSvc: portfolio.NewService(portfolio.NewRepository(cfg.PortfolioDB, cfg.Log), cfg.Log),
	}
	s.systemHandlers = NewSystemHandlers(cfg.Log, []*database.DB{cfg.ScreensDB, cfg.PortfolioDB})

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
		})

		r.Route("/dataset", func(r chi.Router) {
			r.Post("/", s.handleLoadDataset)
			r.Post("/validate", s.handleValidateDataset)
		})

		r.Route("/workspace", func(r chi.Router) {
			r.Get("/", s.handleWorkspaceSummary)
			r.Get("/table", s.handleWorkspaceTable)
			r.Get("/scored", s.handleWorkspaceScored)
			r.Get("/categories", s.handleCategoryStats)
			r.Get("/history", s.handleWorkspaceHistory)
			r.Get("/export", s.handleExport)
			r.Post("/filter", s.handleApplyFormula)
			r.Post("/preset/{id}", s.handleApplyPreset)
			r.Post("/platform", s.handleApplyPlatform)
			r.Post("/reset", s.handleReset)
		})

		r.Get("/strategies", s.handleListStrategies)

		r.Route("/screens", func(r chi.Router) {
			r.Get("/", s.handleListScreens)
			r.Post("/", s.handleSaveScreen)
			r.Get("/{id}", s.handleGetScreen)
			r.Put("/{id}", s.handleUpdateScreen)
			r.Delete("/{id}", s.handleDeleteScreen)
			r.Post("/{id}/apply", s.handleApplyScreen)
		})

		r.Route("/platform", func(r chi.Router) {
			r.Post("/extract", s.handleExtractCodes)
			r.Get("/code-sets", s.handleListCodeSets)
			r.Delete("/code-sets/{id}", s.handleDeleteCodeSet)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", s.handleListSnapshots)
			r.Post("/", s.handleSaveSnapshot)
			r.Post("/{id}/restore", s.handleRestoreSnapshot)
			r.Delete("/{id}", s.handleDeleteSnapshot)
		})

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", s.handleListPortfolio)
			r.Post("/", s.handleAddPortfolioFund)
			r.Put("/{apir}", s.handleUpdatePortfolioFund)
			r.Delete("/{apir}", s.handleRemovePortfolioFund)
			r.Get("/metrics", s.handlePortfolioMetrics)
			r.Get("/allocation", s.handlePortfolioAllocation)
			r.Get("/profiles", s.handleListProfiles)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
