// Package server is the HTTP face of sitewatch: dashboard, JSON API, screenshot blobs
// and, when storage is local, the bucket gateway for remote instances.
package server

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // only served on DebugAddr
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
	"sitewatch/pkg/objectstore"
	"sitewatch/pkg/server/gateway"
)

const (
	shutdownTimeout = 10 * time.Second
	syncTimeout     = 30 * time.Second
)

// Monitor is the check engine driven by the API.
type Monitor interface {
	Statuses(ctx context.Context) ([]models.SiteStatus, error)
	TriggerCheckAll() error
	CheckSite(ctx context.Context, id string) (models.SiteStatus, error)
	ApproveBaseline(ctx context.Context, id string) (models.SiteStatus, error)
	Running() bool
}

// SitesStore reads and replaces the sites document.
type SitesStore interface {
	Read(ctx context.Context) (*models.SitesDocument, error)
	Write(ctx context.Context, doc *models.SitesDocument) error
}

// Config holds the server settings.
type Config struct {
	// WebDir holds index.html and the static assets.
	WebDir string
	// DataDir is reported by the health endpoint and flushed on shutdown.
	DataDir string
	Version string
	// Gateway, when set, exposes the local store under /bucket and /file.
	Gateway *objectstore.Local
	// SyncOnShutdown flushes filesystem buffers after the listener stops.
	SyncOnShutdown bool
	// DebugAddr, when set, serves pprof on a separate listener.
	DebugAddr string
}

// Server wires the API routes onto echo.
type Server struct {
	cfg     Config
	echo    *echo.Echo
	monitor Monitor
	sites   SitesStore
	objects objectstore.Store
	started time.Time
}

// New builds a server with all routes registered.
func New(cfg Config, monitor Monitor, sites SitesStore, objects objectstore.Store) *Server {
	srv := &Server{
		cfg:     cfg,
		echo:    echo.New(),
		monitor: monitor,
		sites:   sites,
		objects: objects,
		started: time.Now(),
	}
	srv.setupRoutes()
	return srv
}

// Handler exposes the router, mainly for tests.
func (srv *Server) Handler() http.Handler {
	return srv.echo
}

// Start serves on addr until SIGINT or SIGTERM, then shuts down gracefully.
func (srv *Server) Start(addr string) error {
	if srv.cfg.DebugAddr != "" {
		go func() {
			log.Info().Str("addr", srv.cfg.DebugAddr).Msg("Starting pprof server")
			if err := http.ListenAndServe(srv.cfg.DebugAddr, nil); err != nil { //nolint:gosec // debug only
				log.Warn().Err(err).Msg("pprof server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("version", srv.cfg.Version).
			Str("web_dir", srv.cfg.WebDir).
			Bool("gateway", srv.cfg.Gateway != nil).
			Msg("Starting sitewatch server")

		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("Server startup failed")
		return err
	}

	return srv.Shutdown()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (srv *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}
	log.Info().Msg("Server gracefully stopped")

	if srv.cfg.SyncOnShutdown {
		syncCtx, syncCancel := context.WithTimeout(context.Background(), syncTimeout)
		defer syncCancel()

		if err := exec.CommandContext(syncCtx, "sync").Run(); err != nil {
			log.Warn().Err(err).Msg("Sync command failed")
		} else {
			log.Info().Msg("Filesystem buffers flushed successfully")
		}
	}

	return nil
}

func (srv *Server) setupRoutes() {
	srv.echo.HideBanner = true
	srv.echo.HidePort = true

	srv.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
	}))
	// No global gzip: blobs must be served byte for byte.
	srv.echo.Use(middleware.Recover())

	srv.echo.GET("/", srv.serveDashboard)
	srv.echo.Static("/static", srv.cfg.WebDir)
	srv.echo.GET("/healthz", srv.health)

	api := srv.echo.Group("/api")
	api.GET("/sites", srv.listSites)
	api.POST("/check", srv.checkAll)
	api.POST("/check/:siteId", srv.checkSite)
	api.POST("/approve/:siteId", srv.approve)
	api.GET("/config", srv.getConfig)
	api.POST("/config", srv.updateConfig)

	srv.echo.GET("/objects/:hash", srv.downloadObject)

	if srv.cfg.Gateway != nil {
		gateway.New(srv.cfg.Gateway).Register(srv.echo)
	}
}
