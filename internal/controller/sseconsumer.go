package controller

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/garak-ctl/garak-ctl/internal/parser"
	"github.com/garak-ctl/garak-ctl/internal/reportcache"
	"github.com/garak-ctl/garak-ctl/internal/workflow"
)

const (
	sseConnectMaxAttempts = 3
	sseConnectTimeout     = 10 * time.Second
)

// SSEConsumer subscribes to one scan's progress stream on the Runner
// and folds every decoded event into a Registry, per spec.md §4.4. The
// connect phase is retried up to sseConnectMaxAttempts times with
// backoff 2s×attempt; once connected, reads are unbounded — the
// transport's ResponseHeaderTimeout bounds only the handshake, never
// the SSE body, so a long-running scan's stream isn't torn down by the
// same timeout that guards the initial connect.
type SSEConsumer struct {
	runnerBase string
	httpClient *http.Client
	registry   *Registry
	analyzer   *workflow.Analyzer
	stats      *reportcache.StatsComputer
}

// NewSSEConsumer returns an SSEConsumer reading from runnerBase and
// folding events into registry. analyzer and stats may be nil, in which
// case the live workflow graph and post-completion probe-stats
// materialization are skipped respectively.
func NewSSEConsumer(runnerBase string, registry *Registry, analyzer *workflow.Analyzer, stats *reportcache.StatsComputer) *SSEConsumer {
	return &SSEConsumer{
		runnerBase: strings.TrimRight(runnerBase, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: sseConnectTimeout},
		},
		registry: registry,
		analyzer: analyzer,
		stats:    stats,
	}
}

// Run connects to scanID's progress stream and blocks until the stream
// ends, the retry budget is exhausted, or ctx is cancelled. Intended to
// be launched in its own goroutine right after a scan is submitted.
func (c *SSEConsumer) Run(ctx context.Context, scanID string) {
	resp, err := c.connectWithRetry(ctx, scanID)
	if err != nil {
		_ = c.registry.MarkFailed(ctx, scanID, fmt.Sprintf("progress stream unreachable: %v", err))
		return
	}
	defer resp.Body.Close()

	c.consume(ctx, scanID, resp.Body)
}

func (c *SSEConsumer) connectWithRetry(ctx context.Context, scanID string) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= sseConnectMaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.runnerBase+"/scans/"+scanID+"/progress", nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			if resp.StatusCode == http.StatusOK {
				return resp, nil
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("runner returned %s", resp.Status)
		} else {
			lastErr = err
		}

		if attempt == sseConnectMaxAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// consume reads body frame by frame (event:/data: pairs separated by a
// blank line) and folds each into the registry. On EOF it applies the
// defensive "still active → promote to completed" rule from spec.md
// §4.4.
func (c *SSEConsumer) consume(ctx context.Context, scanID string, body io.Reader) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var kind, data string
	flush := func() {
		if kind == "" {
			return
		}
		c.applyFrame(ctx, scanID, data)
		kind, data = "", ""
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event: "):
			kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	flush()

	_ = c.registry.PromoteIfStillActive(ctx, scanID)

	if c.stats != nil {
		_, _ = c.stats.ProbeStats(ctx, scanID)
	}
}

func (c *SSEConsumer) applyFrame(ctx context.Context, scanID, data string) {
	var ev parser.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return
	}
	_ = c.registry.ApplyAndPersist(ctx, scanID, ev)
	if c.analyzer != nil {
		c.analyzer.ApplyEvent(scanID, ev)
	}
}
