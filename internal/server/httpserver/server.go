// Package httpserver wires the API and admin HTTP servers. The API server
// carries the public build and archive endpoints behind optional basic auth;
// the admin server exposes metrics and liveness on a separate port.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	derrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
	"git.home.luguber.info/inful/bookbuilder/internal/server/handlers"
	smw "git.home.luguber.info/inful/bookbuilder/internal/server/middleware"
)

// Options collects the server's collaborators.
type Options struct {
	Builds   handlers.BuildService
	Books    handlers.BookService
	Archive  handlers.ArchiveService
	Events   handlers.TranscriptService // nil disables the transcript endpoint
	Registry *prometheus.Registry       // nil disables the /metrics endpoint
	Logger   *slog.Logger
}

// Server manages the API and admin HTTP servers.
type Server struct {
	apiServer   *http.Server
	adminServer *http.Server
	cfg         *config.ServerConfig
	logger      *slog.Logger
	registry    *prometheus.Registry
	api         *handlers.APIHandlers
	mchain      func(http.Handler) http.Handler
	started     time.Time
}

// New constructs the HTTP server wiring.
func New(cfg *config.ServerConfig, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		registry: opts.Registry,
		api:      handlers.New(opts.Builds, opts.Books, opts.Archive, opts.Events, logger),
		mchain:   smw.Chain(logger, derrors.NewHTTPErrorAdapter(logger)),
		started:  time.Now(),
	}
}

// Start binds both ports up front so startup fails fast with an aggregate
// error instead of partially initialized servers.
func (s *Server) Start(ctx context.Context) error {
	type preBind struct {
		name string
		port int
		ln   net.Listener
	}
	binds := []preBind{
		{name: "api", port: s.cfg.APIPort},
		{name: "admin", port: s.cfg.AdminPort},
	}

	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", binds[i].port))
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s port %d: %w", binds[i].name, binds[i].port, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return fmt.Errorf("http startup failed: %w", errors.Join(bindErrs...))
	}

	s.startAPIServer(binds[0].ln)
	s.startAdminServer(binds[1].ln)

	s.logger.Info("HTTP servers started",
		slog.Int("api_port", s.cfg.APIPort),
		slog.Int("admin_port", s.cfg.AdminPort))
	return nil
}

// Stop gracefully shuts down both servers.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if s.apiServer != nil {
		if err := s.apiServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	s.logger.Info("HTTP servers stopped")
	return nil
}

// APIMux builds the public API mux; exported for handler-level tests.
func (s *Server) APIMux() http.Handler {
	mux := http.NewServeMux()
	s.api.Register(mux)
	return s.mchain(smw.BasicAuth(s.cfg.BasicAuth, mux))
}

func (s *Server) startAPIServer(ln net.Listener) {
	s.apiServer = &http.Server{
		Handler:           s.APIMux(),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: build submissions return fast but archive
		// operations pace their provider calls.
	}
	s.serve("api", s.apiServer, ln)
}

func (s *Server) startAdminServer(ln net.Listener) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"uptime": time.Since(s.started).Round(time.Second).String(),
		})
	})
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	s.adminServer = &http.Server{
		Handler:           s.mchain(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serve("admin", s.adminServer, ln)
}

func (s *Server) serve(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(fmt.Sprintf("%s server error", kind), "error", err)
		}
	}()
}
