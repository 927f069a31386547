package controller

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/garak-ctl/garak-ctl/internal/apperr"
	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

// RunnerClient is the Controller's outbound HTTP client to the Runner,
// carrying the explicit per-operation timeouts from spec.md §5: 30s for
// start-scan and listPlugins, 10s for cancel, 5s for health/version.
type RunnerClient struct {
	base       string
	httpClient *http.Client
}

// NewRunnerClient returns a RunnerClient talking to baseURL (the
// Runner's listen address, e.g. "http://runner:8081").
func NewRunnerClient(baseURL string) *RunnerClient {
	return &RunnerClient{base: strings.TrimRight(baseURL, "/"), httpClient: &http.Client{}}
}

type startScanBody struct {
	ScanID string               `json:"scan_id"`
	Config scanmodel.ScanConfig `json:"config"`
}

// StartScan dispatches the scan config to the Runner's POST /scans.
func (c *RunnerClient) StartScan(ctx context.Context, scanID string, cfg scanmodel.ScanConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	body, err := json.Marshal(startScanBody{ScanID: scanID, Config: cfg})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/scans", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: runner returned %s", apperr.ErrUpstream, resp.Status)
	}
	return nil
}

// Cancel signals the Runner to cancel scanID. A non-2xx response (e.g.
// the Runner already considers it terminal) is not itself an error at
// this layer — the Registry's own terminal check is authoritative.
func (c *RunnerClient) Cancel(ctx context.Context, scanID string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/scans/"+scanID, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()
	return nil
}

type pluginsResponseBody struct {
	Plugins []string `json:"plugins"`
}

// ListPlugins proxies the Runner's GET /plugins/{kind}.
func (c *RunnerClient) ListPlugins(ctx context.Context, kind string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/plugins/"+kind, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: runner returned %s", apperr.ErrUpstream, resp.Status)
	}

	var out pluginsResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Plugins, nil
}

// Health reports whether the Runner's GET /health returned 200.
func (c *RunnerClient) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
