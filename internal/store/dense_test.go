package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 4

func newTestDenseIndex(t *testing.T) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(DefaultDenseConfig(testDims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestDenseIndex_SearchReturnsNearest(t *testing.T) {
	idx := newTestDenseIndex(t)
	ctx := context.Background()

	err := idx.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0.9, 0.1, 0, 0},
		})
	require.NoError(t, err)

	results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "c", results[1].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestDenseIndex_ScoresInUnitRange(t *testing.T) {
	idx := newTestDenseIndex(t)
	ctx := context.Background()

	err := idx.Add(ctx,
		[]string{"same", "opposite"},
		[][]float32{
			{1, 0, 0, 0},
			{-1, 0, 0, 0},
		})
	require.NoError(t, err)

	results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	for _, r := range results {
		assert.GreaterOrEqual(t, float64(r.Score), 0.0)
		assert.LessOrEqual(t, float64(r.Score), 1.0)
	}
}

func TestDenseIndex_DimensionMismatch(t *testing.T) {
	idx := newTestDenseIndex(t)
	ctx := context.Background()

	err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch{Expected: testDims, Got: 2})

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestDenseIndex_EmptyIndexReturnsEmpty(t *testing.T) {
	idx := newTestDenseIndex(t)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDenseIndex_LazyDeleteHidesResults(t *testing.T) {
	idx := newTestDenseIndex(t)
	ctx := context.Background()

	err := idx.Add(ctx,
		[]string{"keep", "drop"},
		[][]float32{
			{1, 0, 0, 0},
			{0.9, 0.1, 0, 0},
		})
	require.NoError(t, err)

	require.NoError(t, idx.Delete(ctx, []string{"drop"}))

	results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "keep", results[0].ChunkID)
	assert.Equal(t, 1, idx.Count())
}

func TestDenseIndex_UpdateReplacesVector(t *testing.T) {
	idx := newTestDenseIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx.Add(ctx, []string{"a"}, [][]float32{{0, 1, 0, 0}}))

	results, err := idx.Search(ctx, []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
	assert.Equal(t, 1, idx.Count())
}

func TestDenseIndex_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")
	ctx := context.Background()

	idx, err := NewHNSWIndex(DefaultDenseConfig(testDims))
	require.NoError(t, err)

	err = idx.Add(ctx,
		[]string{"a", "b"},
		[][]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
		})
	require.NoError(t, err)
	require.NoError(t, idx.Save(path))
	require.NoError(t, idx.Close())

	loaded, err := NewHNSWIndex(DefaultDenseConfig(testDims))
	require.NoError(t, err)
	defer func() { _ = loaded.Close() }()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())

	results, err := loaded.Search(ctx, []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)

	dims, err := ReadHNSWIndexDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, testDims, dims)
}

func TestReadHNSWIndexDimensions_MissingFileIsZero(t *testing.T) {
	dims, err := ReadHNSWIndexDimensions(filepath.Join(t.TempDir(), "nope.hnsw"))
	require.NoError(t, err)
	assert.Equal(t, 0, dims)
}
