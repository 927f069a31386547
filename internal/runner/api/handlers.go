package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	echo "github.com/labstack/echo/v5"

	"github.com/garak-ctl/garak-ctl/internal/apperr"
)

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:          "healthy",
		EngineInstalled: s.manager.IsEngineAvailable(),
	})
}

func (s *Server) versionHandler(c *echo.Context) error {
	v, err := s.manager.Version(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, &VersionResponse{Version: v})
}

func (s *Server) startScanHandler(c *echo.Context) error {
	var req StartScanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ScanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scan_id is required")
	}

	snap, err := s.manager.Start(c.Request().Context(), req.ScanID, req.Config)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusAccepted, &StartScanResponse{
		ScanID:  snap.ScanID,
		Status:  snap.Status,
		Message: "scan started",
	})
}

func (s *Server) listScansHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.manager.List())
}

func (s *Server) statusHandler(c *echo.Context) error {
	id := c.Param("id")
	snap, ok := s.manager.Status(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown scan_id")
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) cancelHandler(c *echo.Context) error {
	id := c.Param("id")
	snap, ok := s.manager.Status(id)
	if !ok || snap.Status.Terminal() {
		return echo.NewHTTPError(http.StatusNotFound, "unknown or already-terminal scan_id")
	}
	cancelled := s.manager.Cancel(id)
	return c.JSON(http.StatusOK, &CancelResponse{ScanID: id, Cancelled: cancelled})
}

func (s *Server) pluginsHandler(c *echo.Context) error {
	kind := c.Param("kind")
	plugins, err := s.manager.ListPlugins(c.Request().Context(), kind)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &PluginsResponse{Kind: kind, Plugins: plugins})
}

// reportHandler serves a raw artifact out of the spool directory by
// filename. Path traversal is rejected with 400, per spec.md §4.3.
func (s *Server) reportHandler(c *echo.Context) error {
	filename := c.Param("filename")
	if filename == "" || strings.Contains(filename, "..") || strings.ContainsRune(filename, '/') {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filename")
	}
	return c.File(filepath.Join(s.reportsDir, filename))
}

// progressHandler streams scanID's parsed events as SSE frames, one
// `event: <kind>\ndata: <json>\n\n` per frame, per spec.md §4.3. The
// stream ends with EOF once the queue is closed and drained.
func (s *Server) progressHandler(c *echo.Context) error {
	id := c.Param("id")

	queue, release, err := s.manager.OpenProgressStream(id)
	if err != nil {
		return mapError(err)
	}
	defer release()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		ev, ok := queue.Dequeue()
		if !ok {
			return nil
		}
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
			return nil
		}
		w.Flush()
	}
}

// mapError translates apperr sentinels to HTTP status codes with a
// stable detail string, per spec.md §7.
func mapError(err error) *echo.HTTPError {
	switch {
	case apperr.Is(err, apperr.ErrEngineUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case apperr.Is(err, apperr.ErrConfigInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case apperr.Is(err, apperr.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
