package reportcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeProbeStats_TalliesByCategory(t *testing.T) {
	entries := []Entry{
		{"entry_type": "config"},
		{"entry_type": "attempt", "probe_classname": "dan.DanJailbreak", "status": float64(2)},
		{"entry_type": "attempt", "probe_classname": "dan.DanJailbreak", "status": float64(1)},
		{"entry_type": "attempt", "probe_classname": "encoding.InjectBase64", "status": float64(2)},
		{"entry_type": "eval", "probe": "dan.DanJailbreak"},
	}

	stats := ComputeProbeStats(entries)
	assert.Equal(t, 1, stats["dan"].Passed)
	assert.Equal(t, 1, stats["dan"].Failed)
	assert.Equal(t, 1, stats["encoding"].Passed)
	assert.Equal(t, 0, stats["encoding"].Failed)
}

func TestCategory_SplitsOnFirstDot(t *testing.T) {
	assert.Equal(t, "dan", category("dan.DanJailbreak"))
	assert.Equal(t, "standalone", category("standalone"))
}
