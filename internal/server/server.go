// Package server exposes connections, structure and queries over a JSON
// REST API.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/koustreak/dbconnector/internal/connection"
	"github.com/koustreak/dbconnector/internal/logger"
	"github.com/koustreak/dbconnector/internal/query"
	"github.com/koustreak/dbconnector/internal/structure"
	"golang.org/x/sync/errgroup"
)

// DefaultCORSOrigins are the local frontend dev servers.
var DefaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

const shutdownTimeout = 10 * time.Second

// Config holds everything the API needs.
type Config struct {
	Addr        string
	CORSOrigins []string

	Connections *connection.Manager
	Executor    *query.Executor
	Inspector   *structure.Inspector

	// Archiver is optional; without it the archive route answers 501.
	Archiver *query.Archiver

	Logger *logger.Logger
}

// Server is the HTTP API server.
type Server struct {
	addr        string
	corsOrigins []string
	conns       *connection.Manager
	exec        *query.Executor
	inspector   *structure.Inspector
	archiver    *query.Archiver
	log         *logger.Logger
}

// New creates a Server. Nil Executor and Inspector get default settings.
func New(cfg Config) *Server {
	s := &Server{
		addr:        cfg.Addr,
		corsOrigins: cfg.CORSOrigins,
		conns:       cfg.Connections,
		exec:        cfg.Executor,
		inspector:   cfg.Inspector,
		archiver:    cfg.Archiver,
		log:         cfg.Logger,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.exec == nil {
		s.exec = &query.Executor{Log: s.log}
	}
	if s.inspector == nil {
		s.inspector = &structure.Inspector{Log: s.log}
	}
	if s.archiver != nil && s.archiver.Executor == nil {
		s.archiver.Executor = s.exec
	}
	if len(s.corsOrigins) == 0 {
		s.corsOrigins = DefaultCORSOrigins
	}
	return s
}

// Handler returns the routed API with its middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		s.log.Middleware,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/connections", func(r chi.Router) {
			r.Post("/test", s.handleTestConnection)
			r.Post("/", s.handleCreateConnection)
			r.Get("/", s.handleListConnections)
			r.Delete("/{id}", s.handleDeleteConnection)
		})

		r.Route("/database/{id}", func(r chi.Router) {
			r.Get("/structure", s.handleStructure)
			r.Get("/tables/{schema}/{table}/rows", s.handleTableRows)
		})

		r.Route("/query", func(r chi.Router) {
			r.Post("/execute", s.handleExecute)
			r.Post("/export", s.handleExport)
			r.Post("/export/archive", s.handleArchive)
		})
	})

	return r
}

// Serve listens on the configured address and blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.With().Str("addr", ln.Addr().String()).Logger().Info("starting API server")

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.log.Info("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "DB Connector API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
