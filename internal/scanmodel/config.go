// Package scanmodel holds the data model shared by the Runner and the
// Controller: the immutable ScanConfig a client submits and the mutable
// ScanRecord the Controller tracks for its lifetime.
package scanmodel

// ScanConfig is the immutable request spec for a single scan. It is
// never mutated after submission; the Controller snapshots it onto the
// ScanRecord it creates.
type ScanConfig struct {
	TargetType string `json:"target_type" validate:"required"`
	TargetName string `json:"target_name" validate:"required"`

	Probes    []string `json:"probes,omitempty"`
	Detectors []string `json:"detectors,omitempty"`
	Buffs     []string `json:"buffs,omitempty"`

	Generations int     `json:"generations" validate:"min=1,max=500"`
	EvalThreshold float64 `json:"eval_threshold" validate:"min=0,max=1"`

	Seed              *int64         `json:"seed,omitempty"`
	ParallelRequests  *int           `json:"parallel_requests,omitempty"`
	ParallelAttempts  *int           `json:"parallel_attempts,omitempty"`
	GeneratorOptions  map[string]any `json:"generator_options,omitempty"`
	ProbeOptions      map[string]any `json:"probe_options,omitempty"`
	ProbeTags         []string       `json:"probe_tags,omitempty"`
	SystemPrompt      *string        `json:"system_prompt,omitempty"`

	Deprefix          bool `json:"deprefix"`
	ExtendedDetectors bool `json:"extended_detectors"`
	SkipUnknown       bool `json:"skip_unknown"`
	ContinueOnError   bool `json:"continue_on_error"`
	CollectTiming     bool `json:"collect_timing"`
	NoReport          bool `json:"no_report"`

	Verbose int `json:"verbose" validate:"min=0,max=3"`

	TimeoutPerProbe *int     `json:"timeout_per_probe,omitempty" validate:"omitempty,min=1,max=3600"`
	ReportThreshold *float64 `json:"report_threshold,omitempty" validate:"omitempty,min=0,max=1"`
	HitRate         *float64 `json:"hit_rate,omitempty" validate:"omitempty,min=0,max=1"`

	ExcludeProbes    []string `json:"exclude_probes,omitempty"`
	ExcludeDetectors []string `json:"exclude_detectors,omitempty"`
	OutputDir        *string  `json:"output_dir,omitempty"`
	ConfigFile       *string  `json:"config_file,omitempty"`
}

// Status is a ScanRecord's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is an absorbing terminal state (invariant
// iv in spec.md §3: no event may move a scan back to running/pending
// once it reaches one of these).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RecentOutputCap is the maximum number of lines retained in a
// ScanRecord's ring buffer (invariant viii).
const RecentOutputCap = 200

// ProbeStats is the per-category pass/fail tally materialized on first
// aggregation read and then persisted write-once.
type ProbeStats map[string]CategoryTally

// CategoryTally holds pass/fail counts for one probe category.
type CategoryTally struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// BlobKeys holds the artifact keys produced by an upload (or fetched
// write-through), as persisted on a ScanRecord.
type BlobKeys struct {
	JSONLKey string `json:"jsonl_key,omitempty"`
	HTMLKey  string `json:"html_key,omitempty"`
	HitlogKey string `json:"hitlog_key,omitempty"`
}

// ScanRecord is the mutable state the Controller owns for one scan.
type ScanRecord struct {
	ScanID string `json:"scan_id"`
	Status Status `json:"status"`

	Progress        int    `json:"progress"`
	CurrentProbe    string `json:"current_probe,omitempty"`
	CompletedProbes int    `json:"completed_probes"`
	TotalProbes     int    `json:"total_probes"`
	CurrentIteration int   `json:"current_iteration"`
	TotalIterations  int   `json:"total_iterations"`

	Passed int `json:"passed"`
	Failed int `json:"failed"`

	Elapsed            string `json:"elapsed,omitempty"`
	EstimatedRemaining string `json:"estimated_remaining,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAtUnix   int64  `json:"created_at"`
	StartedAtUnix   *int64 `json:"started_at,omitempty"`
	CompletedAtUnix *int64 `json:"completed_at,omitempty"`

	JSONLPath string `json:"jsonl_path,omitempty"`
	HTMLPath  string `json:"html_path,omitempty"`
	JSONLKey  string `json:"jsonl_key,omitempty"`
	HTMLKey   string `json:"html_key,omitempty"`
	HitlogKey string `json:"hitlog_key,omitempty"`

	Config ScanConfig `json:"config"`

	ProbeStats ProbeStats `json:"probe_stats,omitempty"`

	RecentOutput []string `json:"recent_output,omitempty"`
}

// PushOutputLine appends a line to the record's bounded ring buffer,
// evicting the oldest entry once RecentOutputCap is exceeded (invariant
// viii).
func (r *ScanRecord) PushOutputLine(line string) {
	r.RecentOutput = append(r.RecentOutput, line)
	if over := len(r.RecentOutput) - RecentOutputCap; over > 0 {
		r.RecentOutput = r.RecentOutput[over:]
	}
}

// LastOutputLines returns up to n of the most recent output lines, used
// to synthesize the failure message for a nonzero exit code.
func (r *ScanRecord) LastOutputLines(n int) []string {
	if len(r.RecentOutput) <= n {
		return append([]string(nil), r.RecentOutput...)
	}
	return append([]string(nil), r.RecentOutput[len(r.RecentOutput)-n:]...)
}

// PassRate returns passed/(passed+failed)*100, or 0 when there have
// been no tests yet.
func (r *ScanRecord) PassRate() float64 {
	total := r.Passed + r.Failed
	if total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(total) * 100
}
