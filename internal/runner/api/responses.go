package api

import "github.com/garak-ctl/garak-ctl/internal/scanmodel"

// StartScanRequest is the body of POST /scans.
type StartScanRequest struct {
	ScanID string                 `json:"scan_id" validate:"required"`
	Config scanmodel.ScanConfig   `json:"config" validate:"required"`
}

// StartScanResponse is returned by POST /scans.
type StartScanResponse struct {
	ScanID  string            `json:"scan_id"`
	Status  scanmodel.Status  `json:"status"`
	Message string            `json:"message"`
}

// CancelResponse is returned by DELETE /scans/{id}.
type CancelResponse struct {
	ScanID    string `json:"scan_id"`
	Cancelled bool   `json:"cancelled"`
}

// PluginsResponse is returned by GET /plugins/{kind}.
type PluginsResponse struct {
	Kind    string   `json:"kind"`
	Plugins []string `json:"plugins"`
}

// VersionResponse is returned by GET /version.
type VersionResponse struct {
	Version string `json:"version"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string `json:"status"`
	EngineInstalled bool   `json:"engine_installed"`
}

// ErrorResponse is a {detail} error body. Handlers return *echo.HTTPError
// values, which echo's default error handler renders; no handler in this
// package encodes an ErrorResponse.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
