// Package argv builds a deterministic ENGINE command line from a
// ScanConfig. The mapping is order-insensitive in the spec but this
// builder always emits flags in the same order for a given config, so
// two builds of the same config produce byte-identical argv — useful
// for logging and for tests.
package argv

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

// GeneratorHostEnv maps a generator family to the environment variable
// that, when set, should be injected into that family's options object
// as "host" — unless the caller already set one. Modeled on garak's
// convention of OLLAMA_HOST / similar per-family environment overrides.
var GeneratorHostEnv = map[string]string{
	"ollama": "OLLAMA_HOST",
}

// Build converts cfg into ENGINE argv, given the process environment
// lookup fn (injected so callers can test without real env vars).
func Build(cfg scanmodel.ScanConfig, getenv func(string) string) ([]string, error) {
	var args []string

	args = append(args, "--target_type", cfg.TargetType)
	args = append(args, "--target_name", cfg.TargetName)

	if len(cfg.Probes) > 0 {
		args = append(args, "--probes", joinStripped(cfg.Probes, "probes."))
	}
	if len(cfg.Detectors) > 0 {
		args = append(args, "--detectors", joinStripped(cfg.Detectors, "detectors."))
	}
	if len(cfg.Buffs) > 0 {
		args = append(args, "--buffs", joinStripped(cfg.Buffs, "buffs."))
	}
	if len(cfg.ProbeTags) > 0 {
		args = append(args, "--probe_tags", strings.Join(cfg.ProbeTags, ","))
	}
	if len(cfg.ExcludeProbes) > 0 {
		args = append(args, "--exclude_probes", joinStripped(cfg.ExcludeProbes, "probes."))
	}
	if len(cfg.ExcludeDetectors) > 0 {
		args = append(args, "--exclude_detectors", joinStripped(cfg.ExcludeDetectors, "detectors."))
	}

	args = append(args, "--generations", fmt.Sprintf("%d", cfg.Generations))
	args = append(args, "--eval_threshold", formatFloat(cfg.EvalThreshold))

	if cfg.Seed != nil {
		args = append(args, "--seed", fmt.Sprintf("%d", *cfg.Seed))
	}
	if cfg.ParallelRequests != nil {
		args = append(args, "--parallel_requests", fmt.Sprintf("%d", *cfg.ParallelRequests))
	}
	if cfg.ParallelAttempts != nil {
		args = append(args, "--parallel_attempts", fmt.Sprintf("%d", *cfg.ParallelAttempts))
	}
	if cfg.SystemPrompt != nil && *cfg.SystemPrompt != "" {
		args = append(args, "--system_prompt", *cfg.SystemPrompt)
	}
	if cfg.TimeoutPerProbe != nil {
		args = append(args, "--timeout_per_probe", fmt.Sprintf("%d", *cfg.TimeoutPerProbe))
	}
	if cfg.ReportThreshold != nil {
		args = append(args, "--report_threshold", formatFloat(*cfg.ReportThreshold))
	}
	if cfg.HitRate != nil {
		args = append(args, "--hit_rate", formatFloat(*cfg.HitRate))
	}
	if cfg.OutputDir != nil && *cfg.OutputDir != "" {
		args = append(args, "--output_dir", *cfg.OutputDir)
	}
	if cfg.ConfigFile != nil && *cfg.ConfigFile != "" {
		args = append(args, "--config_file", *cfg.ConfigFile)
	}

	if cfg.Deprefix {
		args = append(args, "--deprefix")
	}
	if cfg.ExtendedDetectors {
		args = append(args, "--extended_detectors")
	}
	if cfg.SkipUnknown {
		args = append(args, "--skip_unknown")
	}
	if cfg.ContinueOnError {
		args = append(args, "--continue_on_error")
	}
	if cfg.CollectTiming {
		args = append(args, "--collect_timing")
	}
	if cfg.NoReport {
		args = append(args, "--no_report")
	}

	if cfg.Verbose > 0 {
		args = append(args, "-"+strings.Repeat("v", cfg.Verbose))
	}

	genOpts, err := generatorOptions(cfg, getenv)
	if err != nil {
		return nil, fmt.Errorf("generator_options: %w", err)
	}
	if genOpts != "" {
		args = append(args, "--generator_options", genOpts)
	}

	if len(cfg.ProbeOptions) > 0 {
		b, err := json.Marshal(cfg.ProbeOptions)
		if err != nil {
			return nil, fmt.Errorf("probe_options: %w", err)
		}
		args = append(args, "--probe_options", string(b))
	}

	return args, nil
}

// generatorOptions wraps cfg.GeneratorOptions under the generator-type
// top-level key (e.g. {"ollama": {...}}) unless the caller already
// nested it that way, then injects a host override from the
// environment when the target's generator family has one and the user
// did not already set "host".
func generatorOptions(cfg scanmodel.ScanConfig, getenv func(string) string) (string, error) {
	family := cfg.TargetType
	opts := cfg.GeneratorOptions

	wrapped := map[string]any{}
	if len(opts) > 0 {
		if inner, ok := opts[family]; ok {
			// Already nested under the generator type.
			if m, ok := inner.(map[string]any); ok {
				wrapped[family] = m
			} else {
				wrapped = opts
			}
		} else {
			wrapped[family] = opts
		}
	}

	if envVar, ok := GeneratorHostEnv[family]; ok {
		if host := getenv(envVar); host != "" {
			inner, _ := wrapped[family].(map[string]any)
			if inner == nil {
				inner = map[string]any{}
				wrapped[family] = inner
			}
			if _, hasHost := inner["host"]; !hasHost {
				inner["host"] = host
			}
		}
	}

	if len(wrapped) == 0 {
		return "", nil
	}

	b, err := json.Marshal(wrapped)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// joinStripped comma-joins names after stripping a leading qualifying
// prefix (e.g. "probes.") from any element that already carries it.
func joinStripped(names []string, prefix string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.TrimPrefix(n, prefix)
	}
	return strings.Join(out, ",")
}

// formatFloat renders a float the way a Python CLI argument parser
// would accept it: no trailing zeros, but never scientific notation for
// the small [0,1] range these options live in.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
