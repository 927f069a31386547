// Package knowledge is a static table mapping probe categories to
// security metadata (OWASP LLM Top 10 tags, CWE ids, mitigation
// guidance) used to enrich per-probe report detail. Grounded on
// probe_knowledge.py's two-tier category/override lookup.
package knowledge

import "strings"

// Metadata describes the security characteristics of a probe category
// or an individual probe override.
type Metadata struct {
	Category        string   `json:"category"`
	Severity        string   `json:"severity"`
	Description     string   `json:"description"`
	RiskExplanation string   `json:"risk_explanation"`
	Mitigation      string   `json:"mitigation"`
	CWEIDs          []string `json:"cwe_ids"`
	OWASPLLM        []string `json:"owasp_llm"`
}

// categories holds metadata keyed by the probe module prefix (the part
// of probe_classname before the first '.').
var categories = map[string]Metadata{
	"ansiescape": {
		Category:        "ANSI Escape Injection",
		Severity:        "high",
		Description:     "Tests whether the model can be made to output ANSI escape sequences that manipulate terminal displays or exfiltrate data.",
		RiskExplanation: "ANSI escape codes can manipulate terminal output, hide malicious content, overwrite displayed text, or exfiltrate data through terminal-specific side channels.",
		Mitigation:      "Strip ANSI escape codes from model outputs before display. Implement output encoding to neutralize terminal control sequences.",
		CWEIDs:          []string{"CWE-116"},
		OWASPLLM:        []string{"LLM02"},
	},
	"apikey": {
		Category:        "API Key Leakage",
		Severity:        "medium",
		Description:     "Tests whether the model will generate, complete, or reveal API keys and secrets when prompted.",
		RiskExplanation: "Leaked or realistic-looking credentials can aid credential guessing or expose sensitive training data.",
		Mitigation:      "Train models to refuse generating credential-like strings. Scan output for patterns matching API keys and tokens.",
		CWEIDs:          []string{"CWE-200", "CWE-312"},
		OWASPLLM:        []string{"LLM06"},
	},
	"atkgen": {
		Category:        "Automated Attack Generation",
		Severity:        "high",
		Description:     "Tests the model's resistance to automatically generated adversarial prompts designed to bypass safety measures.",
		RiskExplanation: "Automated attack generators can discover novel jailbreaks at scale.",
		Mitigation:      "Implement robust input classification and multi-layer defense with both input filtering and output monitoring.",
		CWEIDs:          []string{"CWE-693"},
		OWASPLLM:        []string{"LLM01"},
	},
	"dan": {
		Category:        "DAN Jailbreak",
		Severity:        "critical",
		Description:     "Tests resistance to 'Do Anything Now' jailbreak prompts that attempt to make the model ignore all safety restrictions.",
		RiskExplanation: "DAN jailbreaks can cause the model to ignore its safety training entirely, producing harmful or dangerous content without restriction.",
		Mitigation:      "Strengthen system prompts with explicit refusal instructions and jailbreak-detection classifiers on input.",
		CWEIDs:          []string{"CWE-693"},
		OWASPLLM:        []string{"LLM01"},
	},
	"encoding": {
		Category:        "Encoding Attacks",
		Severity:        "high",
		Description:     "Tests whether the model can be tricked via encoded payloads (Base16, Base64, Base85, ROT13, Braille, Morse, etc.).",
		RiskExplanation: "Encoded payloads can smuggle instructions past naive input filters that only inspect plaintext.",
		Mitigation:      "Decode and re-inspect inbound content before it reaches the model; apply the same content policy to decoded text.",
		CWEIDs:          []string{"CWE-116"},
		OWASPLLM:        []string{"LLM01"},
	},
	"donotanswer": {
		Category:        "Refusal Bypass",
		Severity:        "high",
		Description:     "Tests whether safety refusals can be circumvented through rephrasing, social engineering, or indirect questioning.",
		RiskExplanation: "Easily bypassed refusals make content restrictions effectively useless.",
		Mitigation:      "Use semantic intent detection rather than keyword matching for refusal decisions.",
		CWEIDs:          []string{"CWE-693"},
		OWASPLLM:        []string{"LLM01"},
	},
	"malwaregen": {
		Category:        "Malware Generation",
		Severity:        "critical",
		Description:     "Tests if the model will generate malicious payloads such as reverse shells or keyloggers.",
		RiskExplanation: "A model that produces working malware lowers the barrier to entry for unsophisticated attackers.",
		Mitigation:      "Refuse code-generation requests that match known malicious payload patterns; add static analysis to generated code before returning it.",
		CWEIDs:          []string{"CWE-506"},
		OWASPLLM:        []string{"LLM01"},
	},
	"promptinject": {
		Category:        "Prompt Injection",
		Severity:        "critical",
		Description:     "Tests whether untrusted input can override the model's system instructions.",
		RiskExplanation: "A successful injection lets an attacker redirect the model's behavior regardless of the operator's intended instructions.",
		Mitigation:      "Separate trusted instructions from untrusted content structurally; apply instruction-hierarchy-aware filtering.",
		CWEIDs:          []string{"CWE-74"},
		OWASPLLM:        []string{"LLM01"},
	},
	"web_injection": {
		Category:        "Web Content Injection",
		Severity:        "high",
		Description:     "Tests if the model outputs markdown or HTML constructs that could exfiltrate data via URL parameters.",
		RiskExplanation: "Rendered markdown image tags or links can leak conversation content to a third party when the client follows them.",
		Mitigation:      "Strip or sandbox markdown image/link rendering for untrusted model output.",
		CWEIDs:          []string{"CWE-201"},
		OWASPLLM:        []string{"LLM02"},
	},
	"leakreplay": {
		Category:        "Training Data Leakage",
		Severity:        "medium",
		Description:     "Tests whether the model reproduces memorized training data verbatim.",
		RiskExplanation: "Verbatim reproduction of training data can expose copyrighted or sensitive source material.",
		Mitigation:      "Apply output similarity checks against known training corpora; rate-limit repeated verbatim completions.",
		CWEIDs:          []string{"CWE-200"},
		OWASPLLM:        []string{"LLM10"},
	},
}

// overrides holds metadata keyed by full probe_classname, applied on
// top of the category base.
var overrides = map[string]Metadata{}

var generic = Metadata{
	Category:        "Security Probe",
	Severity:        "info",
	Description:     "A security probe testing the model for potential vulnerabilities.",
	RiskExplanation: "Consult the probe's documentation for details on this probe type.",
	Mitigation:      "Review the probe documentation for specific mitigation advice.",
	CWEIDs:          []string{},
	OWASPLLM:        []string{},
}

// Lookup returns the security metadata for probeClassname, falling
// back from a per-probe override to the category entry to a generic
// entry when neither is known.
func Lookup(probeClassname string) Metadata {
	category := probeClassname
	if idx := strings.Index(probeClassname, "."); idx >= 0 {
		category = probeClassname[:idx]
	}

	base, ok := categories[category]
	if !ok {
		base = generic
	}

	if override, ok := overrides[probeClassname]; ok {
		base = mergeOverride(base, override)
	}
	return base
}

func mergeOverride(base, override Metadata) Metadata {
	if override.Category != "" {
		base.Category = override.Category
	}
	if override.Severity != "" {
		base.Severity = override.Severity
	}
	if override.Description != "" {
		base.Description = override.Description
	}
	if override.RiskExplanation != "" {
		base.RiskExplanation = override.RiskExplanation
	}
	if override.Mitigation != "" {
		base.Mitigation = override.Mitigation
	}
	if len(override.CWEIDs) > 0 {
		base.CWEIDs = override.CWEIDs
	}
	if len(override.OWASPLLM) > 0 {
		base.OWASPLLM = override.OWASPLLM
	}
	return base
}
