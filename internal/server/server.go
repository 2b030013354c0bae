// Package server provides the HTTP API for Compendium.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/compendium/internal/config"
	"github.com/hyperjump/compendium/internal/indexer"
	"github.com/hyperjump/compendium/internal/keyword"
	"github.com/hyperjump/compendium/internal/metrics"
	"github.com/hyperjump/compendium/internal/search"
	"github.com/hyperjump/compendium/internal/storage"
	"go.uber.org/zap"
)

// WatchService manages the inbox directories. *watcher.Inbox implements it.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Compendium API.
type Server struct {
	engine       *search.Engine
	indexer      *indexer.Indexer
	storage      storage.Storage
	keywordIndex keyword.ChunkIndex
	config       *config.Config
	metrics      *metrics.Metrics
	logger       *zap.Logger
	server       *http.Server

	// requestTimeout bounds every API route except ingestion.
	requestTimeout time.Duration

	watch      WatchService
	configPath string
	configMu   sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves m at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithWatch enables the watch directory endpoints. Changes are saved to
// configPath when it is non-empty.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// WithKeywordIndex reports the keyword index size in /api/v1/status.
func WithKeywordIndex(k keyword.ChunkIndex) Option {
	return func(s *Server) { s.keywordIndex = k }
}

// WithRequestTimeout overrides the per-request deadline, which defaults to
// the provider timeout plus 30 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	store storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		engine:  engine,
		indexer: idx,
		storage: store,
		config:  cfg,
		logger:  logger,

		requestTimeout: time.Duration(cfg.Provider.TimeoutSeconds+30) * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API routes with middleware applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health-check", s.handleHealth)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Ingestion embeds every batch of a document synchronously and runs
		// until it finishes or the client goes away.
		r.Post("/upload", s.handleUpload)
		r.Post("/embeddings", s.handleCreateEmbeddings)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))
			r.Post("/query", s.handleQuery)
			r.Get("/status", s.handleStatus)

			r.Get("/documents", s.handleListDocuments)
			r.Get("/documents/{id}", s.handleGetDocument)
			r.Delete("/documents/{id}", s.handleDeleteDocument)
			r.Get("/documents/{id}/search", s.handleSearchDocument)

			r.Get("/watch/directories", s.handleWatchDirectoriesList)
			r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
			r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
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
