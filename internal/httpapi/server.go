// Package httpapi exposes the resolution engine over HTTP for the
// scheduler and operators: single-pair resolution, free-text search,
// batch enrichment, and a provider health summary.
package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mlahti/bookfetch/internal/batch"
	"github.com/mlahti/bookfetch/internal/book"
	"github.com/mlahti/bookfetch/internal/search"
)

// Resolver resolves a single title and author pair.
type Resolver interface {
	Resolve(ctx context.Context, title, author string) *book.Metadata
}

// Searcher answers ranked free-text queries.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Candidate, string, error)
}

// Enricher runs one batch enrichment pass.
type Enricher interface {
	Run(ctx context.Context, batchSize int, refreshCovers bool) (*batch.Report, error)
}

// Pinger is the provider surface the health endpoint probes.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// Config carries the secrets and wiring the server needs.
type Config struct {
	// SchedulerToken authenticates the batch scheduler via the
	// X-Scheduler-Token header.
	SchedulerToken string
	// AdminToken authenticates operators via a bearer token.
	AdminToken string
}

// Server holds dependencies for the HTTP handlers.
type Server struct {
	resolver  Resolver
	searcher  Searcher
	enricher  Enricher
	providers []Pinger
	config    Config
	router    *chi.Mux

	// enriching rejects overlapping batch runs; the job is sequential
	// and paced, so two at once would double the provider load.
	enriching atomic.Bool
}

// NewServer creates the API server with all routes configured.
func NewServer(resolver Resolver, searcher Searcher, enricher Enricher, providers []Pinger, config Config) *Server {
	s := &Server{
		resolver:  resolver,
		searcher:  searcher,
		enricher:  enricher,
		providers: providers,
		config:    config,
		router:    chi.NewRouter(),
	}

	s.router.Use(requestID)
	s.router.Use(logRequests)
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/api/healthz", s.handleHealthz)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/api/resolve", s.handleResolve)
		r.Get("/api/search", s.handleSearch)
		r.Post("/api/enrich", s.handleEnrich)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
