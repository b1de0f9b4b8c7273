// Package server provides the HTTP API for horomatch.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/hyperjump/horomatch/internal/config"
	"github.com/hyperjump/horomatch/internal/models"
	"github.com/hyperjump/horomatch/internal/search"
)

// Locator searches birth locations. *horoscope.Client implements it.
type Locator interface {
	SearchLocations(ctx context.Context, query string) ([]models.Location, error)
}

// Server is the HTTP server for the horomatch API.
type Server struct {
	orch         *search.Orchestrator
	locator      Locator
	config       *config.ServerConfig
	databasePath string
	policy       *bluemonday.Policy
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies. databasePath is
// reported by /health when the SQLite store is in use; pass "" otherwise.
func NewServer(
	orch *search.Orchestrator,
	locator Locator,
	cfg *config.ServerConfig,
	databasePath string,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		orch:         orch,
		locator:      locator,
		config:       cfg,
		databasePath: databasePath,
		policy:       detailsPolicy(),
		logger:       logger,
	}
}

// detailsPolicy keeps the tables and headings of the scoring page and drops
// scripts, styles and event handlers.
func detailsPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Globally()
	p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
	return p
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// Searches run for as long as the ladder takes; everything else is quick.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/locations", s.handleLocations)
			r.Get("/state", s.handleState)
			r.Put("/inputs", s.handleSetInputs)
			r.Get("/match/details", s.handleDetails)
			r.Get("/history", s.handleHistory)
			r.Post("/history/{id}/apply", s.handleApplyHistory)
			r.Get("/ignored", s.handleIgnored)
			r.Delete("/ignored/{day}/{month}", s.handleRemoveIgnored)
		})
		r.Post("/match", s.handleFindMatch)
		r.Post("/match/original", s.handleCheckOriginal)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
