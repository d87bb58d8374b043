// Package web provides the JSON HTTP API for spreadsheet imports.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server of the import service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
	limiter *middleware.IPRateLimiter
}

// NewServer creates a Server with all middleware and routes installed.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.limiter = middleware.NewIPRateLimiter(s.cfg.Rate.RequestsPerMinute, s.cfg.Rate.Burst)
		s.router.Use(s.limiter.Middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		// Schemas
		r.Get("/schemas", s.handleListSchemas)
		r.Get("/schemas/{schemaKey}/template", s.handleDownloadTemplate)

		// Import sessions
		r.Post("/schemas/{schemaKey}/imports", s.handleStartImport)
		r.Get("/imports/{sessionID}", s.handleGetImport)
		r.Delete("/imports/{sessionID}", s.handleDiscardImport)
		r.Put("/imports/{sessionID}/mapping", s.handleUpdateMapping)
		r.Post("/imports/{sessionID}/preview", s.handleGeneratePreview)
		r.Post("/imports/{sessionID}/rows/{rowID}/toggle", s.handleToggleRow)
		r.Put("/imports/{sessionID}/rows/{rowID}", s.handleSelectRow)
		r.Post("/imports/{sessionID}/selection", s.handleSelectAll)
		r.Post("/imports/{sessionID}/execute", s.handleExecute)
		r.Post("/imports/{sessionID}/reset", s.handleReset)
		r.Post("/imports/{sessionID}/file", s.handleProcessFile)

		// Saved mappings
		r.Get("/schemas/{schemaKey}/mapping-templates", s.handleListMappingTemplates)
		r.Get("/schemas/{schemaKey}/mapping-templates/match", s.handleMatchMappingTemplates)
		r.Post("/mapping-templates", s.handleCreateMappingTemplate)
		r.Delete("/mapping-templates/{id}", s.handleDeleteMappingTemplate)

		// Import history
		r.Get("/history/{schemaKey}", s.handleHistory)
	})
}

// Start begins listening for HTTP requests. It blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	if s.limiter != nil {
		go s.limiter.StartSweeper(ctx, time.Minute)
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
