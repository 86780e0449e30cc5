package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"returnsdesk/infrastructure/sqlite"
	"returnsdesk/infrastructure/storage"
	"returnsdesk/upload"
)

var ShutdownTimeout = 2 * time.Second

// Server bundles dependencies and route wiring.
type Server struct {
	Addr   string
	ln     net.Listener
	server *http.Server
	router *chi.Mux

	DB        *sqlite.DB
	Store     storage.Store
	UploadCfg upload.Config

	// FilesRoot serves stored objects over /files/ when the disk
	// store backend is active; empty otherwise.
	FilesRoot string
}

// NewServer creates a new http server.
func NewServer(addr string, db *sqlite.DB, store storage.Store, uploadCfg upload.Config, filesRoot string) *Server {
	s := &Server{
		Addr:      addr,
		router:    chi.NewRouter(),
		DB:        db,
		Store:     store,
		UploadCfg: uploadCfg,
		FilesRoot: filesRoot,
		server: &http.Server{
			MaxHeaderBytes:    1 << 20,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.RegisterReturnsRoutes()
	s.server.Handler = s.router
	return s
}

// Start begins listening and serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server stopped", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
