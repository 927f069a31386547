package workflow

import (
	"fmt"
	"sync"

	"github.com/garak-ctl/garak-ctl/internal/parser"
	"github.com/garak-ctl/garak-ctl/internal/reportcache"
)

// Analyzer builds and holds one in-memory Graph per scan. It may be fed
// incrementally while a scan is live (ApplyEvent, alongside the
// Controller's own SSE consumer) or built once, post-hoc, from a
// completed report's JSON-Lines entries (BuildFromEntries). Graphs are
// process-local and cleared on explicit request, per spec.md §4.7.
type Analyzer struct {
	mu     sync.Mutex
	graphs map[string]*Graph
}

// NewAnalyzer returns an empty Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{graphs: make(map[string]*Graph)}
}

// Graph returns scanID's current graph, or (nil, false) if none exists
// yet.
func (a *Analyzer) Graph(scanID string) (*Graph, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.graphs[scanID]
	if !ok {
		return nil, false
	}
	cp := *g
	return &cp, true
}

// Clear discards scanID's graph.
func (a *Analyzer) Clear(scanID string) {
	a.mu.Lock()
	delete(a.graphs, scanID)
	a.mu.Unlock()
}

func (a *Analyzer) graphFor(scanID string) *Graph {
	g, ok := a.graphs[scanID]
	if !ok {
		g = &Graph{ScanID: scanID}
		a.graphs[scanID] = g
	}
	return g
}

// ApplyEvent incrementally folds a live parser.Event into scanID's
// graph: current_probe events introduce probe nodes chained in
// emission order, matching the live half of spec.md §4.7 ("may run
// live, consuming raw lines alongside the Controller's SSE consumer").
// Fine-grained detector/vulnerability edges require full attempt
// payloads the streaming events don't carry, so those are only
// materialized by BuildFromEntries once the report is available.
func (a *Analyzer) ApplyEvent(scanID string, ev parser.Event) {
	if ev.Kind != parser.KindCurrentProbe && ev.Kind != parser.KindProgress {
		return
	}
	probe := ev.Probe
	if probe == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	g := a.graphFor(scanID)

	id := "probe:" + probe
	for _, n := range g.Nodes {
		if n.ID == id {
			return // already tracked
		}
	}

	g.addNode(Node{ID: id, Type: NodeProbe, Label: probe})
	if len(g.Nodes) > 1 {
		prev := g.Nodes[len(g.Nodes)-2]
		if prev.Type == NodeProbe {
			g.addEdge(Edge{From: prev.ID, To: id, Type: EdgeChain})
		}
	}
	g.recomputeStatistics()
}

type probeTally struct {
	passed, failed int
	responseIDs    []string
}

// BuildFromEntries rebuilds scanID's graph from scratch out of a
// completed report's parsed entries, the post-hoc half of spec.md
// §4.7. Every attempt contributes a probe node, a response node, and a
// detection edge to each detector named in its detector_results; any
// probe whose tally has passed < total additionally gets a
// vulnerability node per the severity rule in spec.md §4.7.
func (a *Analyzer) BuildFromEntries(scanID string, entries []reportcache.Entry) *Graph {
	g := &Graph{ScanID: scanID}
	tallies := map[string]*probeTally{}
	var probeOrder []string

	seq := map[string]int{}
	for _, e := range entries {
		if e.EntryType() != "attempt" {
			continue
		}
		probe := e.ProbeClassname()
		if probe == "" {
			continue
		}

		probeID := "probe:" + probe
		if _, ok := tallies[probe]; !ok {
			tallies[probe] = &probeTally{}
			probeOrder = append(probeOrder, probe)
			g.addNode(Node{ID: probeID, Type: NodeProbe, Label: probe})
		}
		tally := tallies[probe]

		seq[probe]++
		responseID := fmt.Sprintf("response:%s:%d", probe, seq[probe])
		g.addNode(Node{ID: responseID, Type: NodeLLMResponse, Label: fmt.Sprintf("%s #%d", probe, seq[probe])})
		g.addEdge(Edge{From: probeID, To: responseID, Type: EdgePrompt})
		tally.responseIDs = append(tally.responseIDs, responseID)

		switch e.Status() {
		case 2:
			tally.passed++
		case 1:
			tally.failed++
		}

		if results, ok := e["detector_results"].(map[string]any); ok {
			for detector := range results {
				detectorID := "detector:" + detector
				if !g.hasNode(detectorID) {
					g.addNode(Node{ID: detectorID, Type: NodeDetector, Label: detector})
				}
				g.addEdge(Edge{From: responseID, To: detectorID, Type: EdgeDetection})
			}
		}
	}

	for _, probe := range probeOrder {
		tally := tallies[probe]
		g.Traces = append(g.Traces, Trace{ProbeClassname: probe, NodeIDs: tally.responseIDs})
		total := tally.passed + tally.failed
		if total == 0 || tally.passed >= total {
			continue
		}
		vulnID := "vulnerability:" + probe
		sev := severityFor(tally.passed, tally.failed)
		g.addNode(Node{
			ID:    vulnID,
			Type:  NodeVulnerability,
			Label: probe + " vulnerability",
			Metadata: map[string]any{
				"severity": string(sev),
				"passed":   tally.passed,
				"failed":   tally.failed,
			},
		})
		g.addEdge(Edge{From: "probe:" + probe, To: vulnID, Type: EdgeChain})
	}

	g.recomputeStatistics()

	a.mu.Lock()
	a.graphs[scanID] = g
	a.mu.Unlock()

	cp := *g
	return &cp
}

func (g *Graph) hasNode(id string) bool {
	for _, n := range g.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}
