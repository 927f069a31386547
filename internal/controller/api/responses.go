package api

import (
	"github.com/garak-ctl/garak-ctl/internal/controller"
	"github.com/garak-ctl/garak-ctl/internal/reportcache"
	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
	"github.com/garak-ctl/garak-ctl/internal/workflow"
)

// SubmitRequest is the body of POST /api/v1/scan/start.
type SubmitRequest struct {
	Config scanmodel.ScanConfig `json:"config" validate:"required"`
}

// HistoryResponse is returned by GET /api/v1/scan/history.
type HistoryResponse struct {
	Scans      []scanmodel.ScanRecord `json:"scans"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalCount int                    `json:"total_count"`
}

// ResultsResponse is returned by GET /api/v1/scan/{id}/results: the
// live/persisted snapshot plus the report's digest entry (spec.md's
// single JSON-Lines record summarizing per-probe evaluation statistics),
// when the report is available.
type ResultsResponse struct {
	scanmodel.ScanRecord
	Digest reportcache.Entry `json:"digest,omitempty"`
}

// CancelResponse is returned by DELETE /api/v1/scan/{id}/cancel.
type CancelResponse struct {
	ScanID    string `json:"scan_id"`
	Cancelled bool   `json:"cancelled"`
}

// ErrorResponse is a {detail} error body. Handlers return *echo.HTTPError
// values, which echo's default error handler renders; no handler in this
// package encodes an ErrorResponse.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// WorkflowResponse is returned by GET /api/v1/scan/{id}/workflow.
type WorkflowResponse struct {
	*workflow.Graph
}

// ProbesResponse is returned by GET /api/v1/scan/{id}/probes.
type ProbesResponse struct {
	reportcache.ProbeDetailsPage
}

// AttemptsResponse is returned by GET /api/v1/scan/{id}/probes/{probe}/attempts.
type AttemptsResponse struct {
	reportcache.AttemptsPage
}

// StatisticsResponse is returned by GET /api/v1/scan/statistics.
type StatisticsResponse struct {
	controller.Statistics
}
