// Package server provides the HTTP server and routing for the simulation API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/mcfolio/internal/clients/alphavantage"
	"github.com/aristath/mcfolio/internal/database"
	"github.com/aristath/mcfolio/internal/modules/portfolio"
	"github.com/aristath/mcfolio/internal/modules/reports"
)

// Config holds server configuration.
type Config struct {
	Log         zerolog.Logger
	Service     *portfolio.Service
	Definitions []portfolio.Definition
	Reports     *reports.Writer
	Client      alphavantage.ClientInterface
	HistoryDB   *database.DB
	Port        int
	DevMode     bool
}

// maxRetainedFrontiers bounds the in-memory frontier result history served
// by GET /api/frontier/{id}/top.
const maxRetainedFrontiers = 16

// requestTimeout is the per-request budget. Frontier searches are
// long-running by nature; this is the effective deadline for them.
const requestTimeout = 10 * time.Minute

// Server represents the HTTP server.
type Server struct {
	router      *chi.Mux
	server      *http.Server
	log         zerolog.Logger
	service     *portfolio.Service
	definitions map[string]portfolio.Definition
	reports     *reports.Writer
	client      alphavantage.ClientInterface
	historyDB   *database.DB

	// Recent frontier results, oldest evicted first.
	mu        sync.Mutex
	frontiers map[string]*frontierRun
	order     []string
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	definitions := make(map[string]portfolio.Definition, len(cfg.Definitions))
	for _, def := range cfg.Definitions {
		definitions[def.Name] = def
	}

	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		service:     cfg.Service,
		definitions: definitions,
		reports:     cfg.Reports,
		client:      cfg.Client,
		historyDB:   cfg.HistoryDB,
		frontiers:   make(map[string]*frontierRun),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	// WriteTimeout must not undercut the middleware request budget: the write
	// deadline starts when the request headers are read, so a 15s value would
	// kill any simulation or frontier response that takes longer to compute.
	// The per-request middleware timeout is the effective deadline.
	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Simulation runs can take a while; the frontier search in particular.
	s.router.Use(middleware.Timeout(requestTimeout))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/portfolios", s.handleListPortfolios)
		r.Post("/simulate", s.handleSimulate)
		r.Post("/frontier", s.handleFrontier)
		r.Get("/frontier/{id}/top", s.handleFrontierTop)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
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
