// Package api exposes the Runner's HTTP/SSE surface from spec.md §4.3:
// scan lifecycle, progress streaming, plugin listing, and artifact
// download, fronting a *runner.Manager.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/garak-ctl/garak-ctl/internal/runner"
)

// Server is the Runner's HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	manager    *runner.Manager
	reportsDir string
}

// NewServer builds a Server wired to manager, serving artifacts out of
// reportsDir for GET /reports/{filename}.
func NewServer(manager *runner.Manager, reportsDir string) *Server {
	e := echo.New()
	s := &Server{echo: e, manager: manager, reportsDir: reportsDir}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/version", s.versionHandler)

	s.echo.POST("/scans", s.startScanHandler)
	s.echo.GET("/scans", s.listScansHandler)
	s.echo.GET("/scans/:id/progress", s.progressHandler)
	s.echo.GET("/scans/:id/status", s.statusHandler)
	s.echo.DELETE("/scans/:id", s.cancelHandler)

	s.echo.GET("/plugins/:kind", s.pluginsHandler)
	s.echo.GET("/reports/:filename", s.reportHandler)
}

// Start serves on addr (non-blocking beyond ListenAndServe's own
// blocking call — callers run this in a goroutine).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
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
