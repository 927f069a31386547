// Package reportcache implements the write-once cached reader over
// ENGINE's JSON-Lines report artifacts: a multi-layer lookup (immutable
// in-memory cache → object store → local filesystem → upstream HTTP
// write-through), materialized per-probe statistics, and paginated
// per-probe detail/attempt views. Grounded on garak_wrapper.py's
// _get_report_entries/_parse_report_file and the object-store
// write-through rule added in spec.md §4.5.
package reportcache

import (
	"bufio"
	"io"

	"github.com/goccy/go-json"
)

// Entry is one line of a JSON-Lines report artifact, kept as a raw map
// since ENGINE's entry shape varies by entry_type and this package
// only interprets the handful of fields it needs.
type Entry map[string]any

// EntryType returns the entry's "entry_type" field, or "" if absent.
func (e Entry) EntryType() string {
	return e.str("entry_type")
}

// ProbeClassname returns the entry's "probe_classname" field.
func (e Entry) ProbeClassname() string {
	return e.str("probe_classname")
}

// Status returns the entry's numeric "status" field (2 == passed,
// 1 == failed, per ENGINE's convention), or -1 if absent/non-numeric.
func (e Entry) Status() int {
	v, ok := e["status"]
	if !ok {
		return -1
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return -1
	}
}

func (e Entry) str(key string) string {
	v, ok := e[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// ParseJSONL decodes r line by line into Entries. Malformed lines are
// dropped, not fatal (spec.md §4.5), so a best-effort partial result is
// always returned rather than an error.
func ParseJSONL(r io.Reader) []Entry {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}
