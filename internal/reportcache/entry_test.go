package reportcache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONL_DropsMalformedLinesWithoutFailing(t *testing.T) {
	input := strings.Join([]string{
		`{"entry_type": "config", "plugins.target_type": "ollama"}`,
		`not json at all`,
		`{"entry_type": "attempt", "probe_classname": "dan.DanJailbreak", "status": 2}`,
		``,
	}, "\n")

	entries := ParseJSONL(strings.NewReader(input))
	require.Len(t, entries, 2)
	assert.Equal(t, "config", entries[0].EntryType())
	assert.Equal(t, "dan.DanJailbreak", entries[1].ProbeClassname())
	assert.Equal(t, 2, entries[1].Status())
}

func TestEntry_StatusMissingReturnsNegativeOne(t *testing.T) {
	e := Entry{"entry_type": "digest"}
	assert.Equal(t, -1, e.Status())
}
