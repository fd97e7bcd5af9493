package rehydrate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMonk2121/rehydrate/internal/store"
)

func candidate(id, file string, start, end int, score float64) *Candidate {
	return &Candidate{
		ChunkID: id,
		Score:   score,
		Chunk: &store.EvidenceChunk{
			ID:        id,
			FilePath:  file,
			StartChar: start,
			EndChar:   end,
			Text:      fmt.Sprintf("chunk %s", id),
		},
	}
}

func TestDedupe_PerFileCap(t *testing.T) {
	candidates := []*Candidate{
		candidate("a1", "notes.md", 0, 100, 0.9),
		candidate("a2", "notes.md", 100, 200, 0.8),
		candidate("a3", "notes.md", 200, 300, 0.7),
		candidate("b1", "plan.md", 0, 100, 0.6),
	}

	kept, removed, capped := NewDeduper(DedupeFile, 2, 0).Dedupe(candidates)
	require.Len(t, kept, 3, "third notes.md chunk is over the cap")
	assert.Zero(t, removed)
	assert.Equal(t, 1, capped)

	assert.Equal(t, "a1", kept[0].ChunkID)
	assert.Equal(t, "a2", kept[1].ChunkID)
	assert.Equal(t, "b1", kept[2].ChunkID)
}

func TestDedupe_CapOnePromotesOtherFiles(t *testing.T) {
	candidates := []*Candidate{
		candidate("a1", "notes.md", 0, 100, 0.9),
		candidate("a2", "notes.md", 100, 200, 0.8),
		candidate("b1", "plan.md", 0, 100, 0.7),
	}

	kept, _, capped := NewDeduper(DedupeFile, 1, 0).Dedupe(candidates)
	require.Len(t, kept, 2)
	assert.Equal(t, "a1", kept[0].ChunkID)
	assert.Equal(t, "b1", kept[1].ChunkID, "cap=1 keeps one chunk per file, in fused order")
	assert.Equal(t, 1, capped)
}

func TestDedupe_OverlapRemoved(t *testing.T) {
	candidates := []*Candidate{
		candidate("a1", "notes.md", 0, 100, 0.9),
		candidate("a2", "notes.md", 20, 110, 0.8), // 80/90 overlap with a1
		candidate("a3", "notes.md", 200, 300, 0.7),
	}

	kept, removed, _ := NewDeduper(DedupeFileOverlap, 5, 0.5).Dedupe(candidates)
	require.Len(t, kept, 2)
	assert.Equal(t, 1, removed)
	assert.Equal(t, "a1", kept[0].ChunkID)
	assert.Equal(t, "a3", kept[1].ChunkID)
}

func TestDedupe_OverlapBelowThresholdKept(t *testing.T) {
	candidates := []*Candidate{
		candidate("a1", "notes.md", 0, 100, 0.9),
		candidate("a2", "notes.md", 80, 200, 0.8), // 20/100 overlap
	}

	kept, removed, _ := NewDeduper(DedupeFileOverlap, 5, 0.5).Dedupe(candidates)
	assert.Len(t, kept, 2)
	assert.Zero(t, removed)
}

func TestDedupe_FileModeIgnoresOverlap(t *testing.T) {
	candidates := []*Candidate{
		candidate("a1", "notes.md", 0, 100, 0.9),
		candidate("a2", "notes.md", 10, 90, 0.8), // fully contained in a1
	}

	kept, removed, _ := NewDeduper(DedupeFile, 5, 0).Dedupe(candidates)
	assert.Len(t, kept, 2)
	assert.Zero(t, removed)
}

func TestDedupe_MissingChunkDropped(t *testing.T) {
	candidates := []*Candidate{
		candidate("a1", "notes.md", 0, 100, 0.9),
		{ChunkID: "stale", Score: 0.8}, // no chunk metadata
	}

	kept, removed, _ := NewDeduper(DedupeFile, 2, 0).Dedupe(candidates)
	assert.Len(t, kept, 1)
	assert.Equal(t, 1, removed)
}

func TestDedupe_NoDuplicateIDs(t *testing.T) {
	var candidates []*Candidate
	for f := 0; f < 3; f++ {
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("f%d-c%d", f, i)
			file := fmt.Sprintf("file%d.md", f)
			candidates = append(candidates, candidate(id, file, i*100, i*100+100, 1.0-float64(i)*0.1))
		}
	}

	kept, _, capped := NewDeduper(DedupeFile, 2, 0).Dedupe(candidates)
	assert.Equal(t, 9, capped, "three of five chunks per file are over the cap")

	seen := make(map[string]bool)
	perFile := make(map[string]int)
	for _, c := range kept {
		assert.False(t, seen[c.ChunkID], "chunk %s appears twice", c.ChunkID)
		seen[c.ChunkID] = true
		perFile[c.Chunk.FilePath]++
	}
	for file, n := range perFile {
		assert.LessOrEqual(t, n, 2, "file %s exceeds the cap", file)
	}
}

func TestSpanOverlap(t *testing.T) {
	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd int
		want                       float64
	}{
		{"identical", 0, 100, 0, 100, 1.0},
		{"disjoint", 0, 100, 100, 200, 0.0},
		{"half of smaller", 0, 100, 50, 250, 0.5},
		{"contained", 0, 100, 25, 75, 1.0},
		{"zero length", 50, 50, 0, 100, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, spanOverlap(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd), 1e-9)
		})
	}
}
