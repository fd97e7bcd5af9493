package rehydrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpander_AddsSynonyms(t *testing.T) {
	e := NewQueryExpander(5)

	expanded, added := e.Expand("current priority")
	assert.Contains(t, added, "roadmap")
	assert.Contains(t, added, "sprint")

	// Original terms stay first for exact-match weight
	terms := strings.Fields(expanded)
	require.GreaterOrEqual(t, len(terms), 2)
	assert.Equal(t, "current", terms[0])
	assert.Equal(t, "priority", terms[1])
}

func TestExpander_MaxExpansionsRespected(t *testing.T) {
	e := NewQueryExpander(1)

	_, added := e.Expand("priority")
	// One synonym plus no identifier variants for a single plain word
	assert.Len(t, added, 1)
}

func TestExpander_SplitsIdentifiers(t *testing.T) {
	e := NewQueryExpander(5)

	_, added := e.Expand("rehydrateMemory")
	assert.Contains(t, added, "rehydrate")
	assert.Contains(t, added, "memory")

	_, added = e.Expand("dev_workflow")
	assert.Contains(t, added, "dev")
	assert.Contains(t, added, "workflow")
}

func TestExpander_NoExpansionForUnknownTerms(t *testing.T) {
	e := NewQueryExpander(5)

	expanded, added := e.Expand("zebra telescope")
	assert.Empty(t, added)
	assert.Equal(t, "zebra telescope", expanded)
}

func TestExpander_DeduplicatesCaseInsensitive(t *testing.T) {
	e := NewQueryExpander(5)

	expanded, _ := e.Expand("Docs docs DOCS")
	terms := strings.Fields(expanded)
	lower := make(map[string]int)
	for _, term := range terms {
		lower[strings.ToLower(term)]++
	}
	for term, n := range lower {
		assert.Equal(t, 1, n, "term %q duplicated", term)
	}
}

func TestExpander_EmptyQuery(t *testing.T) {
	e := NewQueryExpander(5)

	expanded, added := e.Expand("   ")
	assert.Equal(t, "   ", expanded)
	assert.Nil(t, added)
}
