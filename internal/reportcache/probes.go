package reportcache

import (
	"context"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/garak-ctl/garak-ctl/internal/knowledge"
)

// ProbeDetail summarizes one probe_classname's results, enriched with
// static security metadata, per spec.md §4.5's probe_details contract.
type ProbeDetail struct {
	ProbeClassname string             `json:"probe_classname"`
	Passed         int                `json:"passed"`
	Failed         int                `json:"failed"`
	Total          int                `json:"total"`
	PassRate       float64            `json:"pass_rate"`
	Metadata       knowledge.Metadata `json:"metadata"`
}

// ProbeDetailsPage is a single page of ProbeDetail results.
type ProbeDetailsPage struct {
	Probes     []ProbeDetail `json:"probes"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalCount int           `json:"total_count"`
}

// ProbeDetails groups every attempt entry by probe_classname, computes
// its pass rate, enriches it with security metadata, and returns a
// worst-pass-rate-first page. An optional substring filter narrows by
// probe_classname.
func (r *Reader) ProbeDetails(ctx context.Context, scanID, filter string, page, pageSize int) (ProbeDetailsPage, error) {
	entries, found, err := r.Entries(ctx, scanID)
	if err != nil {
		return ProbeDetailsPage{}, err
	}
	if !found {
		return ProbeDetailsPage{}, nil
	}

	tallies := map[string]*ProbeDetail{}
	var order []string
	for _, e := range entries {
		if e.EntryType() != "attempt" {
			continue
		}
		probe := e.ProbeClassname()
		if probe == "" {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(probe), strings.ToLower(filter)) {
			continue
		}
		d, ok := tallies[probe]
		if !ok {
			d = &ProbeDetail{ProbeClassname: probe, Metadata: knowledge.Lookup(probe)}
			tallies[probe] = d
			order = append(order, probe)
		}
		switch e.Status() {
		case 2:
			d.Passed++
		case 1:
			d.Failed++
		}
	}

	details := make([]ProbeDetail, 0, len(order))
	for _, probe := range order {
		d := tallies[probe]
		d.Total = d.Passed + d.Failed
		if d.Total > 0 {
			d.PassRate = float64(d.Passed) / float64(d.Total) * 100
		}
		details = append(details, *d)
	}

	sort.SliceStable(details, func(i, j int) bool {
		return details[i].PassRate < details[j].PassRate
	})

	total := len(details)
	return ProbeDetailsPage{
		Probes:     paginate(details, page, pageSize),
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}, nil
}

// Attempt is one rendered attempt belonging to a probe_classname, per
// spec.md §4.5's probe_attempts contract.
type Attempt struct {
	UUID            string         `json:"uuid"`
	Seq             int            `json:"seq"`
	Status          int            `json:"status"`
	PromptText      string         `json:"prompt_text"`
	OutputText      string         `json:"output_text"`
	AllOutputs      []string       `json:"all_outputs"`
	Triggers        []string       `json:"triggers"`
	DetectorResults map[string]any `json:"detector_results"`
	Goal            string         `json:"goal"`
}

// AttemptsPage is a single page of Attempt results.
type AttemptsPage struct {
	Attempts   []Attempt `json:"attempts"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalCount int       `json:"total_count"`
}

// ProbeAttempts returns every attempt matching probeClassname (and,
// if set, statusFilter), paginated, in report order (ascending
// sequence).
func (r *Reader) ProbeAttempts(ctx context.Context, scanID, probeClassname string, statusFilter *int, page, pageSize int) (AttemptsPage, error) {
	entries, found, err := r.Entries(ctx, scanID)
	if err != nil {
		return AttemptsPage{}, err
	}
	if !found {
		return AttemptsPage{}, nil
	}

	var attempts []Attempt
	seq := 0
	for _, e := range entries {
		if e.EntryType() != "attempt" || e.ProbeClassname() != probeClassname {
			continue
		}
		seq++
		status := e.Status()
		if statusFilter != nil && status != *statusFilter {
			continue
		}
		attempts = append(attempts, renderAttempt(e, seq))
	}

	total := len(attempts)
	return AttemptsPage{
		Attempts:   paginate(attempts, page, pageSize),
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}, nil
}

func renderAttempt(e Entry, seq int) Attempt {
	a := Attempt{
		Seq:    seq,
		Status: e.Status(),
		Goal:   e.str("goal"),
		UUID:   e.str("uuid"),
	}

	if outputs, ok := e["outputs"].([]any); ok {
		for _, o := range outputs {
			if s, ok := o.(string); ok {
				a.AllOutputs = append(a.AllOutputs, s)
			}
		}
		if len(a.AllOutputs) > 0 {
			a.OutputText = a.AllOutputs[0]
		}
	}

	if triggers, ok := e["triggers"].([]any); ok {
		for _, tr := range triggers {
			if s, ok := tr.(string); ok {
				a.Triggers = append(a.Triggers, s)
			}
		}
	}

	if results, ok := e["detector_results"].(map[string]any); ok {
		a.DetectorResults = results
	}

	a.PromptText = extractPromptText(e["prompt"])
	return a
}

// extractPromptText implements the prompt-extraction rule from
// spec.md §4.5: the first turn's content.text, or the content
// stringified if no such field exists.
func extractPromptText(prompt any) string {
	switch p := prompt.(type) {
	case string:
		return p
	case map[string]any:
		if turns, ok := p["turns"].([]any); ok && len(turns) > 0 {
			if turn, ok := turns[0].(map[string]any); ok {
				if content, ok := turn["content"].(map[string]any); ok {
					if text, ok := content["text"].(string); ok {
						return text
					}
					return stringify(content)
				}
			}
		}
		if content, ok := p["content"].(map[string]any); ok {
			if text, ok := content["text"].(string); ok {
				return text
			}
			return stringify(content)
		}
		return stringify(p)
	default:
		if prompt == nil {
			return ""
		}
		return stringify(prompt)
	}
}

func stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		pageSize = 50
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
