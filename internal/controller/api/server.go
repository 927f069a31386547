// Package api exposes the Controller's HTTP/WebSocket surface from
// spec.md §6: the versioned /api/v1 scan lifecycle and read endpoints,
// fronting a *controller.Service plus the report/statistics readers.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/garak-ctl/garak-ctl/internal/blobstore"
	"github.com/garak-ctl/garak-ctl/internal/controller"
	"github.com/garak-ctl/garak-ctl/internal/fanout"
	"github.com/garak-ctl/garak-ctl/internal/reportcache"
	"github.com/garak-ctl/garak-ctl/internal/workflow"
)

// Server is the Controller's HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	service *controller.Service
	runner  *controller.RunnerClient
	reader  *reportcache.Reader
	stats   *reportcache.StatsComputer
	hub     *fanout.Hub
	graphs  *workflow.Store
	blobs   blobstore.Store
}

// NewServer builds a Server wired to its dependencies and registers
// every route under /api/v1.
func NewServer(service *controller.Service, runner *controller.RunnerClient, reader *reportcache.Reader, stats *reportcache.StatsComputer, hub *fanout.Hub, graphs *workflow.Store, blobs blobstore.Store) *Server {
	e := echo.New()
	s := &Server{echo: e, service: service, runner: runner, reader: reader, stats: stats, hub: hub, graphs: graphs, blobs: blobs}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))

	v1 := s.echo.Group("/api/v1")

	v1.POST("/scan/start", s.startScanHandler)
	v1.GET("/scan/history", s.historyHandler)
	v1.GET("/scan/statistics", s.statisticsHandler)
	v1.GET("/scan/:id/status", s.statusHandler)
	v1.GET("/scan/:id/results", s.resultsHandler)
	v1.GET("/scan/:id/probes", s.probesHandler)
	v1.GET("/scan/:id/probes/:probe/attempts", s.attemptsHandler)
	v1.GET("/scan/:id/report/html", s.reportHTMLHandler)
	v1.GET("/scan/:id/report/detailed", s.reportDetailedHandler)
	v1.GET("/scan/:id/workflow", s.workflowHandler)
	v1.GET("/scan/:id/workflow/mermaid", s.workflowMermaidHandler)
	v1.DELETE("/scan/:id/cancel", s.cancelHandler)
	v1.DELETE("/scan/:id", s.deleteHandler)

	v1.GET("/scan/:id/progress", s.progressWSHandler)

	s.echo.GET("/health", s.healthHandler)
}

// Start serves on addr.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo, ReadHeaderTimeout: 10 * time.Second}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener, used by tests to
// bind a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
