package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetadataStore(t *testing.T) *SQLiteMetadataStore {
	t.Helper()
	s, err := NewSQLiteMetadataStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMetadataStore_PutAndGetChunks(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	chunks := []*EvidenceChunk{
		{ID: "a:0-10", DocID: "a", FilePath: "docs/a.md", StartChar: 0, EndChar: 10, Text: "first", TokenEstimate: 2},
		{ID: "a:10-20", DocID: "a", FilePath: "docs/a.md", StartChar: 10, EndChar: 20, Text: "second", TokenEstimate: 2},
		{ID: "b:0-10", DocID: "b", FilePath: "docs/b.md", StartChar: 0, EndChar: 10, Text: "third", TokenEstimate: 2},
	}
	require.NoError(t, s.PutChunks(ctx, chunks))

	// Order of input IDs is preserved, missing IDs skipped
	got, err := s.GetChunks(ctx, []string{"b:0-10", "missing", "a:0-10"})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "b:0-10", got[0].ID)
	assert.Equal(t, "a:0-10", got[1].ID)
	assert.Equal(t, "first", got[1].Text)
}

func TestMetadataStore_ChunksByFileOrderedBySpan(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutChunks(ctx, []*EvidenceChunk{
		{ID: "a:50-90", DocID: "a", FilePath: "docs/a.md", StartChar: 50, EndChar: 90, Text: "later"},
		{ID: "a:0-40", DocID: "a", FilePath: "docs/a.md", StartChar: 0, EndChar: 40, Text: "earlier"},
	}))

	got, err := s.ChunksByFile(ctx, "docs/a.md")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "a:0-40", got[0].ID)
	assert.Equal(t, "a:50-90", got[1].ID)
}

func TestMetadataStore_CountChunks(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.PutChunks(ctx, []*EvidenceChunk{
		{ID: "a:0-10", DocID: "a", FilePath: "docs/a.md"},
	}))

	n, err = s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetadataStore_AnchorsOrderedByPriority(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	pins := []*AnchorPin{
		{Key: "roadmap", Role: "planner", Priority: 2, Text: "roadmap text", Tokens: 10},
		{Key: "system_overview", Role: "planner", Priority: 0, Text: "overview text", Tokens: 20},
		{Key: "current_priorities", Role: "planner", Priority: 1, Text: "priorities text", Tokens: 15},
		{Key: "code_conventions", Role: "implementer", Priority: 0, Text: "conventions", Tokens: 12},
	}
	require.NoError(t, s.ReplaceAnchors(ctx, pins))

	got, err := s.AnchorsForRole(ctx, "planner")
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "system_overview", got[0].Key)
	assert.Equal(t, "current_priorities", got[1].Key)
	assert.Equal(t, "roadmap", got[2].Key)
}

func TestMetadataStore_AnchorsForUnknownRoleIsEmpty(t *testing.T) {
	s := newTestMetadataStore(t)

	got, err := s.AnchorsForRole(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMetadataStore_ReplaceAnchorsIsAtomic(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAnchors(ctx, []*AnchorPin{
		{Key: "old", Role: "planner", Priority: 0, Text: "old pin", Tokens: 5},
	}))
	require.NoError(t, s.ReplaceAnchors(ctx, []*AnchorPin{
		{Key: "new", Role: "planner", Priority: 0, Text: "new pin", Tokens: 5},
	}))

	got, err := s.ListAnchors(ctx)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Key)
}

func TestMetadataStore_State(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	// Absent key is empty, not an error
	v, err := s.GetState(ctx, "embedding_model")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetState(ctx, "embedding_model", "static"))
	require.NoError(t, s.SetState(ctx, "embedding_model", "qwen3-embedding:8b"))

	v, err = s.GetState(ctx, "embedding_model")
	require.NoError(t, err)
	assert.Equal(t, "qwen3-embedding:8b", v)
}

func TestMetadataStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	ctx := context.Background()

	s, err := NewSQLiteMetadataStore(path)
	require.NoError(t, err)
	require.NoError(t, s.PutChunks(ctx, []*EvidenceChunk{
		{ID: "a:0-10", DocID: "a", FilePath: "docs/a.md", Text: "persisted"},
	}))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteMetadataStore(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.GetChunks(ctx, []string{"a:0-10"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persisted", got[0].Text)
}
