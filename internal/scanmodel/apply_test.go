package scanmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garak-ctl/garak-ctl/internal/parser"
)

func TestApplyEvent_ProgressUpdatesCurrentProbeAndPercent(t *testing.T) {
	r := &ScanRecord{Status: StatusRunning}
	r.ApplyEvent(parser.Event{Kind: parser.KindProgress, Probe: "probes.dan.Dan_11_0", Percent: 50})
	assert.Equal(t, "probes.dan.Dan_11_0", r.CurrentProbe)
	assert.Equal(t, 50, r.Progress)
}

func TestApplyEvent_ProgressUpdatesElapsedAndRemaining(t *testing.T) {
	r := &ScanRecord{Status: StatusRunning}
	r.ApplyEvent(parser.Event{Kind: parser.KindProgress, Probe: "probes.dan.Dan_11_0", Percent: 50, Elapsed: "00:55", Remaining: "01:13"})
	assert.Equal(t, "00:55", r.Elapsed)
	assert.Equal(t, "01:13", r.EstimatedRemaining)
}

func TestApplyEvent_CompleteSetsTerminalAndKeys(t *testing.T) {
	r := &ScanRecord{Status: StatusRunning}
	r.ApplyEvent(parser.Event{
		Kind:        parser.KindComplete,
		TotalPassed: 2,
		TotalFailed: 1,
		ReportKeys:  map[string]string{"jsonl": "s1/garak.s1.report.jsonl", "html": "s1/garak.s1.report.html"},
	})
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 100, r.Progress)
	assert.Equal(t, "s1/garak.s1.report.jsonl", r.JSONLKey)
	assert.Equal(t, "s1/garak.s1.report.html", r.HTMLKey)
}

func TestApplyEvent_ErrorSetsFailedWithMessage(t *testing.T) {
	r := &ScanRecord{Status: StatusRunning}
	r.ApplyEvent(parser.Event{Kind: parser.KindError, Message: "ConnectionError: connection refused"})
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "ConnectionError: connection refused", r.ErrorMessage)
}

func TestApplyEvent_IgnoredOnceTerminal(t *testing.T) {
	r := &ScanRecord{Status: StatusCancelled}
	r.ApplyEvent(parser.Event{Kind: parser.KindComplete, TotalPassed: 5})
	assert.Equal(t, StatusCancelled, r.Status)
	assert.Equal(t, 0, r.Passed)
}
