// Package httpserver implements the DLNA/UPnP HTTP surface: device
// description, SCPD, SOAP control, byte-range media streaming, and GENA
// eventing, all served from a single chi router.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lumin-project/lumin/internal/config"
	"github.com/lumin-project/lumin/internal/httpserver/middleware"
	"github.com/lumin-project/lumin/internal/store"
)

// DeviceInfo names the values device description and SCPD rendering need
// beyond what config.ServerConfig already carries.
type DeviceInfo struct {
	FriendlyName string
	UUID         string
	Manufacturer string
	ModelName    string
	ModelNumber  string
}

// Server is the DLNA HTTP surface: device description, SCPD, SOAP control,
// byte-range media streaming, and GENA eventing, wired onto one chi router.
type Server struct {
	config        config.ServerConfig
	device        DeviceInfo
	router        *chi.Mux
	httpServer    *http.Server
	logger        *slog.Logger
	mediaStore    *store.Store
	streamBaseURL string
	gena          *genaRegistry
	health        *Health
}

// NewServer builds the router and registers middleware, but does not bind
// a listener until Start is called. mediaStore and streamBaseURL must be
// set (via WithMediaStore) before RegisterRoutes is called.
func NewServer(cfg config.ServerConfig, device DeviceInfo, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		config: cfg,
		device: device,
		router: router,
		logger: logger,
		gena:   newGenaRegistry(),
	}

	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// WithMediaStore wires the MediaStore and the absolute base URL
// ("http://host:port") used to build stream URLs in DIDL-Lite res elements.
func (s *Server) WithMediaStore(mediaStore *store.Store, streamBaseURL string) *Server {
	s.mediaStore = mediaStore
	s.streamBaseURL = streamBaseURL
	return s
}

// RegisterRoutes attaches every route group to the router. Call once, after
// WithMediaStore.
func (s *Server) RegisterRoutes() {
	s.registerDescriptionRoutes()
	s.registerSCPDRoutes()
	s.registerSOAPRoutes()
	s.registerStreamRoutes()
	s.registerGENARoutes()
	s.registerHealthzRoutes()
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.NewLoggingMiddleware(s.logger, false))
	s.router.Use(middleware.CORS())

	compress := chimiddleware.Compress(5)
	s.router.Use(middleware.SkipCompressionForStreaming(compress))
}

// Router exposes the chi router so route-registration files in this
// package (description.go, scpd.go, soap.go, stream.go, gena.go, healthz.go)
// can attach handlers during construction.
func (s *Server) Router() chi.Router {
	return s.router
}

// Addr returns the configured bind address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start binds the listener and begins serving in a background goroutine,
// reporting a later Serve failure (or nil once the server is closed) on the
// returned channel. A bind error (e.g. the port already in use) is returned
// synchronously instead.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("binding http listener on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	s.logger.Info("http server listening", slog.String("addr", s.httpServer.Addr))
	return errCh, nil
}

// Shutdown drains in-flight requests with the configured grace period and
// then closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
