package scanmodel

import "github.com/garak-ctl/garak-ctl/internal/parser"

// ApplyEvent folds one parser.Event into the record's live fields,
// per the per-kind update rules in spec.md §4.2/§4.4. Both the Runner
// (maintaining its own live snapshot while a child runs) and the
// Controller's SSE consumer call this so the two stay in lockstep.
//
// Once Status has reached a terminal value, ApplyEvent is a no-op:
// invariant (viii) in spec.md §8 forbids any event from moving a
// terminal scan back to a non-terminal state, and a terminal scan's
// fields must not drift after the fact.
func (r *ScanRecord) ApplyEvent(ev parser.Event) {
	if r.Status.Terminal() {
		return
	}

	switch ev.Kind {
	case parser.KindProgress:
		if ev.Probe != "" {
			r.CurrentProbe = ev.Probe
		}
		r.Progress = ev.Percent
		if ev.Total > 0 {
			r.CurrentIteration = ev.Current
			r.TotalIterations = ev.Total
		}
		r.Elapsed = ev.Elapsed
		r.EstimatedRemaining = ev.Remaining

	case parser.KindCurrentProbe:
		r.CurrentProbe = ev.Probe

	case parser.KindProbeCount:
		r.CompletedProbes = ev.CompletedProbes
		r.TotalProbes = ev.TotalProbes

	case parser.KindResult:
		r.Passed = ev.TotalPassed
		r.Failed = ev.TotalFailed

	case parser.KindReport:
		switch ev.ReportType {
		case "html":
			r.HTMLPath = ev.Path
		case "jsonl":
			r.JSONLPath = ev.Path
		}

	case parser.KindError:
		r.Status = StatusFailed
		r.ErrorMessage = ev.Message

	case parser.KindComplete:
		r.Status = StatusCompleted
		r.Progress = 100
		if ev.ReportKeys != nil {
			r.JSONLKey = ev.ReportKeys["jsonl"]
			r.HTMLKey = ev.ReportKeys["html"]
			r.HitlogKey = ev.ReportKeys["hitlog"]
		}
	}
}
