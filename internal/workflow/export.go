package workflow

import (
	"fmt"
	"strings"
)

// shapeFor returns the Mermaid node-shape delimiters for a NodeType,
// per spec.md §4.7's "Mermaid export with shape-per-node-type":
// probes as rounded boxes, generators as stadiums, detectors as
// hexagons, responses as subroutine boxes, vulnerabilities as a
// diamond to draw the eye.
func shapeFor(t NodeType) (open, close string) {
	switch t {
	case NodeProbe:
		return "(", ")"
	case NodeGenerator:
		return "([", "])"
	case NodeDetector:
		return "{{", "}}"
	case NodeLLMResponse:
		return "[[", "]]"
	case NodeVulnerability:
		return "{", "}"
	default:
		return "[", "]"
	}
}

func mermaidID(id string) string {
	r := strings.NewReplacer(":", "_", ".", "_", " ", "_", "/", "_")
	return r.Replace(id)
}

// ToMermaid renders g as a Mermaid flowchart, per spec.md §4.7.
func ToMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	for _, n := range g.Nodes {
		open, close := shapeFor(n.Type)
		label := strings.ReplaceAll(n.Label, `"`, `'`)
		fmt.Fprintf(&b, "  %s%s\"%s\"%s\n", mermaidID(n.ID), open, label, close)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %s -->|%s| %s\n", mermaidID(e.From), e.Type, mermaidID(e.To))
	}

	if g.Statistics.HighSeverityCount > 0 {
		for _, n := range g.Nodes {
			if n.Type == NodeVulnerability {
				if sev, _ := n.Metadata["severity"].(string); sev == string(SeverityHigh) {
					fmt.Fprintf(&b, "  style %s fill:#f66,stroke:#900\n", mermaidID(n.ID))
				}
			}
		}
	}

	return b.String()
}
