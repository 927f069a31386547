package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup_KnownCategory(t *testing.T) {
	m := Lookup("dan.DanJailbreak")
	assert.Equal(t, "DAN Jailbreak", m.Category)
	assert.Equal(t, "critical", m.Severity)
}

func TestLookup_UnknownProbeFallsBackToGeneric(t *testing.T) {
	m := Lookup("totally_unknown_probe_family.Foo")
	assert.Equal(t, generic.Category, m.Category)
}

func TestLookup_NoDotUsesWholeNameAsCategory(t *testing.T) {
	m := Lookup("dan")
	assert.Equal(t, "DAN Jailbreak", m.Category)
}
