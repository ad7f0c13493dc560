// Package api provides the HTTP API server and handlers for the WXR import service.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seedhypermedia/wxr-importer/internal/sse"
	"github.com/seedhypermedia/wxr-importer/internal/store"
)

// Options tunes the HTTP surface.
type Options struct {
	// MaxUploadBytes caps request bodies that carry a WXR document.
	MaxUploadBytes int64
	// CORSOrigins lists browser origins allowed to call the API. Empty allows any.
	CORSOrigins []string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store          *store.Store
	services       *Services
	sseManager     *sse.Manager
	sseHandler     *sse.Handler
	router         *chi.Mux
	api            huma.API
	logger         *slog.Logger
	rateLimiter    *RateLimiter
	maxUploadBytes int64
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st *store.Store, services *Services, sseManager *sse.Manager, opts Options, logger *slog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{
		store:          st,
		services:       services,
		sseManager:     sseManager,
		sseHandler:     sse.NewHandler(sseManager, logger),
		router:         chi.NewRouter(),
		logger:         logger,
		rateLimiter:    NewRateLimiter(authRateLimitPerMinute, time.Minute, authRateLimitBurst),
		maxUploadBytes: opts.MaxUploadBytes,
	}

	s.setupMiddleware(opts.CORSOrigins)

	humaConfig := huma.DefaultConfig("WXR Importer API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	s.router.Use(RateLimitMiddleware(s.rateLimiter, s.logger))
	s.router.Use(authMiddleware(s.services.Tokens))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerImportRoutes()

	// The event stream is a plain handler; huma does not model SSE.
	s.router.With(s.requireToken).Get("/api/v1/imports/events", s.sseHandler.ServeHTTP)
}
