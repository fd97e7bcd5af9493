package rehydrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMonk2121/rehydrate/internal/store"
)

func tokenCandidate(id string, tokens int, score float64) *Candidate {
	return &Candidate{
		ChunkID: id,
		Score:   score,
		Chunk: &store.EvidenceChunk{
			ID:            id,
			FilePath:      "notes/" + id + ".md",
			StartChar:     0,
			EndChar:       tokens * 4,
			Text:          strings.Repeat("w ", tokens),
			TokenEstimate: tokens,
		},
	}
}

func TestPackEvidence_FillsBudgetInOrder(t *testing.T) {
	candidates := []*Candidate{
		tokenCandidate("a", 50, 0.9),
		tokenCandidate("b", 40, 0.8),
		tokenCandidate("c", 30, 0.7),
	}

	evidence, used, warnings := packEvidence(candidates, 100)
	require.Len(t, evidence, 2)
	assert.Equal(t, "a", evidence[0].ChunkID)
	assert.Equal(t, "b", evidence[1].ChunkID)
	assert.Equal(t, 90, used)
	assert.Empty(t, warnings)
}

func TestPackEvidence_StopsAtFirstOverflow(t *testing.T) {
	candidates := []*Candidate{
		tokenCandidate("a", 50, 0.9),
		tokenCandidate("big", 500, 0.8),
		tokenCandidate("c", 30, 0.7),
	}

	// "c" would fit, but a lower-ranked chunk never leapfrogs one that
	// did not.
	evidence, used, warnings := packEvidence(candidates, 100)
	require.Len(t, evidence, 1)
	assert.Equal(t, "a", evidence[0].ChunkID)
	assert.Equal(t, 50, used)
	assert.Empty(t, warnings)
}

func TestPackEvidence_FirstChunkEscape(t *testing.T) {
	// Even the best chunk exceeds the budget: admit it anyway with a
	// warning rather than returning an empty bundle.
	candidates := []*Candidate{
		tokenCandidate("big", 500, 0.9),
		tokenCandidate("small", 10, 0.8),
	}

	evidence, used, warnings := packEvidence(candidates, 100)
	require.Len(t, evidence, 1)
	assert.Equal(t, "big", evidence[0].ChunkID)
	assert.Equal(t, 500, used)
	assert.Contains(t, warnings, WarnBudgetExceeded)
}

func TestPackEvidence_WholeChunksOnly(t *testing.T) {
	candidates := []*Candidate{
		tokenCandidate("a", 60, 0.9),
		tokenCandidate("b", 60, 0.8),
	}

	evidence, used, _ := packEvidence(candidates, 100)
	require.Len(t, evidence, 1, "second chunk must not be split to fit")
	assert.Equal(t, 60, used)
}

func TestPackEvidence_Empty(t *testing.T) {
	evidence, used, warnings := packEvidence(nil, 100)
	assert.Empty(t, evidence)
	assert.Zero(t, used)
	assert.Empty(t, warnings)
}

func TestPackEvidence_EstimatesMissingTokens(t *testing.T) {
	c := tokenCandidate("a", 10, 0.9)
	c.Chunk.TokenEstimate = 0

	evidence, used, _ := packEvidence([]*Candidate{c}, 100)
	require.Len(t, evidence, 1)
	assert.Positive(t, used)
	assert.Equal(t, store.EstimateTokens(c.Chunk.Text), evidence[0].Tokens)
}

func TestBundle_Markdown(t *testing.T) {
	b := &Bundle{
		Pins: []PackedPin{
			{Key: "system_overview", Priority: 1, Text: "Bundles are assembled per role.", Tokens: 8},
		},
		Evidence: []PackedEvidence{
			{ChunkID: "c1", FilePath: "notes/plan.md", StartChar: 0, EndChar: 120, Text: "Ship the retrieval engine.", Tokens: 7, Score: 0.92},
		},
		Metadata: BundleMetadata{
			Role:          "planner",
			FusionMethod:  FusionRRF,
			PinsCount:     1,
			EvidenceCount: 1,
			TotalTokens:   15,
			MaxTokens:     1200,
			Warnings:      []string{WarnPinsTruncated},
		},
	}

	md := b.Markdown()
	assert.Contains(t, md, "# Context Bundle (planner)")
	assert.Contains(t, md, "## Pinned Context")
	assert.Contains(t, md, "### system_overview")
	assert.Contains(t, md, "notes/plan.md:0-120")
	assert.Contains(t, md, "score 0.920")
	assert.Contains(t, md, "warnings: pins_truncated")
}

func TestBundle_MarkdownEmpty(t *testing.T) {
	b := &Bundle{Metadata: BundleMetadata{Role: "planner", FusionMethod: FusionRRF}}
	md := b.Markdown()
	assert.Contains(t, md, "No pinned context or evidence")
}
