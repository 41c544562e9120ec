package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dbrouter/pkg/listing"
	"dbrouter/pkg/log"
	"dbrouter/pkg/router"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	viewTimeout            = 5 * time.Second
	healthTimeout          = 3 * time.Second
)

// Server exposes the listing API and the operator endpoints of the storage router.
type Server struct {
	echo            *echo.Echo
	proxy           *router.Proxy
	monitor         *router.Monitor
	listings        *listing.Store
	adminToken      string
	shutdownTimeout time.Duration
	version         string

	// background tracks fire-and-forget work started by requests.
	background sync.WaitGroup
}

// NewServer creates a server over proxy. monitor is nil in single backend mode.
func NewServer(proxy *router.Proxy, monitor *router.Monitor, adminToken, version string, shutdownTimeout time.Duration) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	srv := &Server{
		echo:            echo.New(),
		proxy:           proxy,
		monitor:         monitor,
		listings:        listing.NewStore(proxy),
		adminToken:      adminToken,
		shutdownTimeout: shutdownTimeout,
		version:         version,
	}
	srv.setupRoutes()
	return srv
}

// Start runs the capacity monitor and the HTTP server until SIGINT or SIGTERM.
func (srv *Server) Start(addr string) error {
	srv.startMonitor()

	go func() {
		log.Info().
			Str("addr", addr).
			Str("version", srv.version).
			Bool("multi_backend", srv.proxy.MultiBackend()).
			Msg("Starting database router server")

		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return srv.Shutdown()
}

// startMonitor starts the capacity monitor and reports whether one exists.
// Single backend servers have none.
func (srv *Server) startMonitor() bool {
	if srv.monitor == nil {
		return false
	}
	srv.monitor.Start(context.Background())
	return true
}

// Shutdown stops accepting requests, stops the monitor, waits for background
// work and closes every database handle.
func (srv *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), srv.shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		errs = append(errs, err)
	}

	if srv.monitor != nil {
		srv.monitor.Stop()
	}
	srv.background.Wait()

	if r := srv.proxy.Router(); r != nil {
		if err := r.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close backend handles")
			errs = append(errs, err)
		}
	}
	if err := srv.proxy.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close default handle")
		errs = append(errs, err)
	}

	log.Info().Msg("Shutdown complete")
	return errors.Join(errs...)
}

func (srv *Server) setupRoutes() {
	srv.echo.HideBanner = true
	srv.echo.HidePort = true

	srv.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
	}))
	srv.echo.Use(middleware.Recover())

	srv.echo.GET("/healthz", srv.healthz)
	srv.echo.GET("/metrics", metricsHandler())

	admin := srv.echo.Group("/admin/db")
	if srv.adminToken != "" {
		admin.Use(adminAuth(srv.adminToken))
	}
	admin.GET("/status", srv.getStatus)
	admin.POST("/switch", srv.switchBackend)
	admin.POST("/backends/:index/retry", srv.retryBackend)

	srv.echo.POST("/listings", srv.createListing)
	srv.echo.GET("/listings", srv.listListings)
	srv.echo.GET("/listings/:id", srv.getListing)
	srv.echo.DELETE("/listings/:id", srv.deleteListing)
}

// runBackground starts fn in a goroutine that Shutdown waits for.
func (srv *Server) runBackground(timeout time.Duration, fn func(ctx context.Context)) {
	srv.background.Add(1)
	go func() {
		defer srv.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	}()
}

func errorResponse(ctx echo.Context, status int, message string) error {
	return ctx.JSON(status, map[string]string{
		"error": message,
	})
}
