package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/garak-ctl/garak-ctl/internal/apperr"
	"github.com/garak-ctl/garak-ctl/internal/blobstore"
	"github.com/garak-ctl/garak-ctl/internal/storage/postgres"
	"github.com/garak-ctl/garak-ctl/internal/workflow"
)

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":           "healthy",
		"runner_reachable": s.runner.Health(c.Request().Context()),
	})
}

func (s *Server) startScanHandler(c *echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := s.service.Submit(c.Request().Context(), req.Config)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusAccepted, rec)
}

// historyHandler implements GET /scan/history from spec.md §4.4:
// paginated, filterable by status and target type, sorted newest-first.
func (s *Server) historyHandler(c *echo.Context) error {
	opts := postgres.ListOpts{
		Status:     c.QueryParam("status"),
		TargetType: c.QueryParam("target_type"),
		Limit:      queryInt(c, "page_size", 50),
		Offset:     (queryInt(c, "page", 1) - 1) * queryInt(c, "page_size", 50),
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}

	scans, err := s.service.History(c.Request().Context(), opts)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, &HistoryResponse{
		Scans:    scans,
		Page:     queryInt(c, "page", 1),
		PageSize: opts.Limit,
	})
}

func (s *Server) statisticsHandler(c *echo.Context) error {
	days := queryInt(c, "days", 7)
	stats, err := s.service.Statistics(c.Request().Context(), days, time.Now())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &StatisticsResponse{Statistics: stats})
}

func (s *Server) statusHandler(c *echo.Context) error {
	id := c.Param("id")
	rec, err := s.service.Snapshot(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// resultsHandler returns the scan's current snapshot plus the report's
// digest entry, when the report has been produced.
func (s *Server) resultsHandler(c *echo.Context) error {
	id := c.Param("id")
	rec, err := s.service.Snapshot(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}

	resp := &ResultsResponse{ScanRecord: rec}
	if entries, found, err := s.reader.Entries(c.Request().Context(), id); err == nil && found {
		for _, e := range entries {
			if e.EntryType() == "digest" {
				resp.Digest = e
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) probesHandler(c *echo.Context) error {
	id := c.Param("id")
	page, err := s.reader.ProbeDetails(c.Request().Context(), id, c.QueryParam("filter"),
		queryInt(c, "page", 1), queryInt(c, "page_size", 50))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &ProbesResponse{ProbeDetailsPage: page})
}

func (s *Server) attemptsHandler(c *echo.Context) error {
	id := c.Param("id")
	probe := c.Param("probe")

	var statusFilter *int
	if raw := c.QueryParam("status"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "status must be an integer")
		}
		statusFilter = &v
	}

	page, err := s.reader.ProbeAttempts(c.Request().Context(), id, probe, statusFilter,
		queryInt(c, "page", 1), queryInt(c, "page_size", 50))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &AttemptsResponse{AttemptsPage: page})
}

// reportHTMLHandler and reportDetailedHandler proxy blob bytes directly,
// per spec.md §4.4 ("proxies blob bytes"), rather than round-tripping
// through the JSON entry reader.
func (s *Server) reportHTMLHandler(c *echo.Context) error {
	return s.proxyBlob(c, "html", "text/html")
}

func (s *Server) reportDetailedHandler(c *echo.Context) error {
	return s.proxyBlob(c, "jsonl", "application/jsonl")
}

func (s *Server) proxyBlob(c *echo.Context, suffix, contentType string) error {
	id := c.Param("id")
	key := blobstore.ReportKey(id, suffix)

	data, err := s.blobs.Get(c.Request().Context(), key)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report artifact not available")
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func (s *Server) workflowHandler(c *echo.Context) error {
	id := c.Param("id")
	g, found, err := s.graphs.Graph(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "no workflow graph for scan")
	}
	return c.JSON(http.StatusOK, &WorkflowResponse{Graph: g})
}

func (s *Server) workflowMermaidHandler(c *echo.Context) error {
	id := c.Param("id")
	g, found, err := s.graphs.Graph(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "no workflow graph for scan")
	}
	return c.Blob(http.StatusOK, "text/plain", []byte(workflow.ToMermaid(g)))
}

func (s *Server) cancelHandler(c *echo.Context) error {
	id := c.Param("id")
	if err := s.service.Cancel(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &CancelResponse{ScanID: id, Cancelled: true})
}

func (s *Server) deleteHandler(c *echo.Context) error {
	id := c.Param("id")
	if err := s.service.Delete(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	s.reader.Invalidate(id)
	return c.NoContent(http.StatusNoContent)
}

func queryInt(c *echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// mapError translates apperr sentinels to HTTP status codes with a
// stable detail string, per spec.md §7.
func mapError(err error) *echo.HTTPError {
	switch {
	case apperr.Is(err, apperr.ErrCapacity):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case apperr.Is(err, apperr.ErrConfigInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case apperr.Is(err, apperr.ErrEngineUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case apperr.Is(err, apperr.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case apperr.Is(err, apperr.ErrUpstream):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case apperr.Is(err, apperr.ErrCancelDisallowed):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
