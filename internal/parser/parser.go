// Package parser turns ENGINE's line-oriented stdout into typed
// Events. It is stateful per scan (cumulative pass/fail totals and the
// last-seen probe module) and single-threaded: callers feed it one
// line at a time from the reader task and never call it concurrently
// for the same scan.
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// errorSentinel is the Unicode cross-mark garak prints alongside a
// fatal error banner, independent of the exception-type match below.
const errorSentinel = "❌"

var (
	reUnknownProbes = regexp.MustCompile(`Unknown probes.*?:\s*(.+)`)
	reExceptionLine  = regexp.MustCompile(`(?:^|\s)(ModuleNotFoundError|ImportError|RuntimeError|FileNotFoundError|ConnectionError|TimeoutError|ValueError|KeyError|TypeError|AttributeError|PermissionError|OSError):`)

	reProgressIter = regexp.MustCompile(`probes\.(\S+?):\s+(\d+)%\|[^|]*\|\s*(\d+)/(\d+)\s+\[([^<]+)<([^,]+),`)
	reProgress     = regexp.MustCompile(`probes\.(\S+?):\s+(\d+)%`)
	reProbeCounter = regexp.MustCompile(`(\d+)\s+(\d+)/(\d+)\s+\[`)
	reProbeResult  = regexp.MustCompile(`([\w.]+)\s+([\w.]+):\s+(PASS|FAIL)`)
	reFraction     = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	reReportHTML   = regexp.MustCompile(`report html summary being written to\s+(.+\.html)`)
	reReportJSONL  = regexp.MustCompile(`report closed.*?([/\w\-.]+\.jsonl)`)
	rePassedCount  = regexp.MustCompile(`(?i)passed[:\s]+(\d+)`)
	reFailedCount  = regexp.MustCompile(`(?i)failed[:\s]+(\d+)`)
)

// Parser holds the cumulative state described in spec.md §4.2.
type Parser struct {
	completedProbes   int
	totalProbes       int
	totalPassed       int
	totalFailed       int
	lastCompletedProbe string
}

// New returns a fresh Parser for one scan.
func New() *Parser {
	return &Parser{}
}

// Totals returns the cumulative passed/failed counts accumulated so
// far, used by the reader to build the terminal `complete` event.
func (p *Parser) Totals() (passed, failed int) {
	return p.totalPassed, p.totalFailed
}

// ParseLine matches line against the recognized patterns in order,
// first match wins, and returns the resulting Event. An empty line
// yields (Event{}, false). An unrecognized non-empty line is reported
// as a KindOutput event so downstream consumers keep full context.
func (p *Parser) ParseLine(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Event{}, false
	}

	if ev, ok := p.checkErrors(trimmed); ok {
		return ev, true
	}

	if m := reProgressIter.FindStringSubmatch(trimmed); m != nil {
		return Event{
			Kind:      KindProgress,
			RawLine:   trimmed,
			Probe:     m[1],
			Percent:   atoi(m[2]),
			Current:   atoi(m[3]),
			Total:     atoi(m[4]),
			Elapsed:   strings.TrimSpace(m[5]),
			Remaining: strings.TrimSpace(m[6]),
		}, true
	}

	if m := reProgress.FindStringSubmatch(trimmed); m != nil {
		return Event{
			Kind:    KindProgress,
			RawLine: trimmed,
			Probe:   m[1],
			Percent: atoi(m[2]),
		}, true
	}

	if !strings.Contains(trimmed, "probes.") && !strings.Contains(trimmed, "%") {
		if m := reProbeCounter.FindStringSubmatch(trimmed); m != nil {
			p.completedProbes = atoi(m[2])
			p.totalProbes = atoi(m[3])
			return Event{
				Kind:            KindProbeCount,
				RawLine:         trimmed,
				CompletedProbes: p.completedProbes,
				TotalProbes:     p.totalProbes,
			}, true
		}
	}

	if m := reProbeResult.FindStringSubmatch(trimmed); m != nil {
		probeModule := m[1]
		if probeModule != p.lastCompletedProbe {
			p.completedProbes++
			p.lastCompletedProbe = probeModule
		}
		// No event emitted for this match alone (spec.md §4.2 rule 5).
	}

	if idx := strings.Index(trimmed, "probes."); idx >= 0 {
		for _, part := range strings.Fields(trimmed) {
			if strings.HasPrefix(part, "probes.") {
				probe := strings.TrimRight(part, ":,;")
				return Event{Kind: KindCurrentProbe, RawLine: trimmed, Probe: probe}, true
			}
		}
	}

	upper := strings.ToUpper(trimmed)
	lower := strings.ToLower(trimmed)
	if (strings.Contains(upper, "PASS") || strings.Contains(upper, "FAIL")) && strings.Contains(lower, "ok on") {
		if m := reFraction.FindStringSubmatch(trimmed); m != nil {
			testsPassed := atoi(m[1])
			total := atoi(m[2])
			testsFailed := total - testsPassed
			p.totalPassed += testsPassed
			p.totalFailed += testsFailed
			return Event{
				Kind:        KindResult,
				RawLine:     trimmed,
				TestsPassed: testsPassed,
				TestsFailed: testsFailed,
				TotalTests:  total,
				TotalPassed: p.totalPassed,
				TotalFailed: p.totalFailed,
			}, true
		}
	}

	if m := reReportHTML.FindStringSubmatch(trimmed); m != nil {
		return Event{Kind: KindReport, RawLine: trimmed, ReportType: "html", Path: strings.TrimSpace(m[1])}, true
	}
	if m := reReportJSONL.FindStringSubmatch(trimmed); m != nil {
		return Event{Kind: KindReport, RawLine: trimmed, ReportType: "jsonl", Path: strings.TrimSpace(m[1])}, true
	}

	if strings.Contains(lower, "passed") || strings.Contains(lower, "failed") {
		passedMatch := rePassedCount.FindStringSubmatch(trimmed)
		failedMatch := reFailedCount.FindStringSubmatch(trimmed)
		if passedMatch != nil || failedMatch != nil {
			if passedMatch != nil {
				p.totalPassed = atoi(passedMatch[1])
			}
			if failedMatch != nil {
				p.totalFailed = atoi(failedMatch[1])
			}
			return Event{
				Kind:        KindResult,
				RawLine:     trimmed,
				TotalPassed: p.totalPassed,
				TotalFailed: p.totalFailed,
			}, true
		}
	}

	return Event{Kind: KindOutput, RawLine: trimmed}, true
}

// checkErrors implements pattern 1 (error indicators). It deliberately
// never matches a bare "Traceback" header — only the exception line
// itself carries useful information.
func (p *Parser) checkErrors(line string) (Event, bool) {
	if strings.Contains(line, "Unknown probes") {
		msg := line
		if m := reUnknownProbes.FindStringSubmatch(line); m != nil {
			msg = "Unknown probes: " + strings.TrimSpace(m[1])
		}
		return Event{Kind: KindError, RawLine: line, Message: msg}, true
	}

	if strings.Contains(line, errorSentinel) {
		return Event{Kind: KindError, RawLine: line, Message: line}, true
	}

	if reExceptionLine.MatchString(line) {
		return Event{Kind: KindError, RawLine: line, Message: line}, true
	}

	return Event{}, false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
