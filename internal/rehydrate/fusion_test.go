package rehydrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMonk2121/rehydrate/internal/store"
)

func sparseList(pairs map[string]float64, order []string) []*store.LexicalResult {
	out := make([]*store.LexicalResult, 0, len(order))
	for _, id := range order {
		out = append(out, &store.LexicalResult{ChunkID: id, Score: pairs[id]})
	}
	return out
}

func denseList(pairs map[string]float32, order []string) []*store.DenseResult {
	out := make([]*store.DenseResult, 0, len(order))
	for _, id := range order {
		out = append(out, &store.DenseResult{ChunkID: id, Score: pairs[id]})
	}
	return out
}

func TestRRFFuser_BothChannelsWins(t *testing.T) {
	sparse := sparseList(map[string]float64{"a": 5.0, "b": 3.0}, []string{"a", "b"})
	dense := denseList(map[string]float32{"a": 0.9, "c": 0.8}, []string{"a", "c"})

	results := NewRRFFuser(60).Fuse(sparse, dense, DefaultWeights())
	require.Len(t, results, 3)

	// "a" appears rank 1 in both channels and must come first
	assert.Equal(t, "a", results[0].ChunkID)
	assert.True(t, results[0].InBoth)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9, "top score normalizes to 1.0")

	for _, r := range results[1:] {
		assert.Less(t, r.Score, results[0].Score)
		assert.False(t, r.InBoth)
	}
}

func TestRRFFuser_AbsentChannelContributesZero(t *testing.T) {
	sparse := sparseList(map[string]float64{"b": 4.0}, []string{"b"})
	dense := denseList(map[string]float32{"x": 0.9, "a": 0.8}, []string{"x", "a"})

	results := NewRRFFuser(60).Fuse(sparse, dense, Weights{Dense: 0.65, Sparse: 0.35})
	require.Len(t, results, 3)

	// Dense rank 2 at weight 0.65 outscores sparse rank 1 at weight
	// 0.35; a channel that did not return a document adds nothing.
	assert.Equal(t, "x", results[0].ChunkID)
	assert.Equal(t, "a", results[1].ChunkID)
	assert.Equal(t, "b", results[2].ChunkID)
}

func TestRRFFuser_Empty(t *testing.T) {
	results := NewRRFFuser(0).Fuse(nil, nil, DefaultWeights())
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRRFFuser_PreservesChannelScoresAndRanks(t *testing.T) {
	sparse := []*store.LexicalResult{
		{ChunkID: "a", Score: 7.5, MatchedTerms: []string{"roadmap"}},
	}
	dense := denseList(map[string]float32{"b": 0.95}, []string{"b"})

	results := NewRRFFuser(60).Fuse(sparse, dense, DefaultWeights())
	require.Len(t, results, 2)

	byID := map[string]*Candidate{}
	for _, r := range results {
		byID[r.ChunkID] = r
	}

	assert.Equal(t, 7.5, byID["a"].SparseScore)
	assert.Equal(t, 1, byID["a"].SparseRank)
	assert.Zero(t, byID["a"].DenseRank)
	assert.Equal(t, []string{"roadmap"}, byID["a"].MatchedTerms)

	assert.InDelta(t, 0.95, byID["b"].DenseScore, 1e-6)
	assert.Equal(t, 1, byID["b"].DenseRank)
	assert.Zero(t, byID["b"].SparseRank)
}

func TestRRFFuser_TieBreaksDeterministic(t *testing.T) {
	// Symmetric inputs: "x" and "y" get identical RRF contributions,
	// so ordering must fall through to the chunk ID tie-break.
	weights := Weights{Dense: 0.5, Sparse: 0.5}
	sparse := sparseList(map[string]float64{"y": 2.0, "x": 2.0}, []string{"y", "x"})
	dense := denseList(map[string]float32{"x": 0.5, "y": 0.5}, []string{"y", "x"})

	first := NewRRFFuser(60).Fuse(sparse, dense, weights)
	for i := 0; i < 10; i++ {
		again := NewRRFFuser(60).Fuse(sparse, dense, weights)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].ChunkID, again[j].ChunkID, "fusion order must be stable across runs")
		}
	}
}

func TestRRFFuser_InBothBreaksScoreTie(t *testing.T) {
	a := &Candidate{ChunkID: "z", Score: 0.5, InBoth: true}
	b := &Candidate{ChunkID: "a", Score: 0.5, InBoth: false}

	sorted := toSortedCandidates(map[string]*Candidate{"z": a, "a": b})
	assert.Equal(t, "z", sorted[0].ChunkID, "in-both candidate wins the tie despite larger ID")
}

func TestZScoreFuser_ScaleInvariance(t *testing.T) {
	// Multiplying one channel's raw scores by a constant must not change
	// the fused ordering: z-normalization removes per-channel scale.
	dense := denseList(map[string]float32{"a": 0.9, "b": 0.7, "c": 0.5}, []string{"a", "b", "c"})

	small := sparseList(map[string]float64{"b": 3.0, "c": 2.0, "d": 1.0}, []string{"b", "c", "d"})
	scaled := sparseList(map[string]float64{"b": 300.0, "c": 200.0, "d": 100.0}, []string{"b", "c", "d"})

	f := NewZScoreFuser()
	r1 := f.Fuse(small, dense, DefaultWeights())
	r2 := f.Fuse(scaled, dense, DefaultWeights())

	require.Equal(t, len(r1), len(r2))
	for i := range r1 {
		assert.Equal(t, r1[i].ChunkID, r2[i].ChunkID)
	}
}

func TestZScoreFuser_ZeroVarianceContributesNothing(t *testing.T) {
	// All sparse scores equal: that channel cannot discriminate, so the
	// dense channel alone determines the order.
	sparse := sparseList(map[string]float64{"a": 2.0, "b": 2.0, "c": 2.0}, []string{"a", "b", "c"})
	dense := denseList(map[string]float32{"c": 0.9, "b": 0.6, "a": 0.3}, []string{"c", "b", "a"})

	results := NewZScoreFuser().Fuse(sparse, dense, DefaultWeights())
	require.Len(t, results, 3)
	assert.Equal(t, "c", results[0].ChunkID)
	assert.Equal(t, "b", results[1].ChunkID)
	assert.Equal(t, "a", results[2].ChunkID)
}

func TestZNormalize(t *testing.T) {
	z := zNormalize([]float64{1, 2, 3})
	require.Len(t, z, 3)
	assert.InDelta(t, 0, z[0]+z[1]+z[2], 1e-9, "z-scores sum to zero")
	assert.Negative(t, z[0])
	assert.Positive(t, z[2])

	flat := zNormalize([]float64{5, 5, 5})
	for _, v := range flat {
		assert.Zero(t, v)
	}

	assert.Nil(t, zNormalize(nil))
}

func TestCandidatesFromSingleChannel(t *testing.T) {
	sparse := sparseList(map[string]float64{"a": 4.0, "b": 2.0}, []string{"a", "b"})
	fromSparse := candidatesFromSparse(sparse)
	require.Len(t, fromSparse, 2)
	assert.Equal(t, "a", fromSparse[0].ChunkID)
	assert.InDelta(t, 1.0, fromSparse[0].Score, 1e-9)
	assert.Equal(t, 1, fromSparse[0].SparseRank)
	assert.Equal(t, 2, fromSparse[1].SparseRank)

	dense := denseList(map[string]float32{"x": 0.8, "y": 0.4}, []string{"x", "y"})
	fromDense := candidatesFromDense(dense)
	require.Len(t, fromDense, 2)
	assert.Equal(t, "x", fromDense[0].ChunkID)
	assert.Equal(t, 1, fromDense[0].DenseRank)
}
