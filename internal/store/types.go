// Package store provides the retrieval indexes and the metadata store
// backing the rehydration engine.
package store

import (
	"context"
	"fmt"
)

// EvidenceChunk is a retrievable span of a source document.
type EvidenceChunk struct {
	// ID uniquely identifies the chunk (docID:startChar-endChar).
	ID string `json:"id"`
	// DocID identifies the source document.
	DocID string `json:"doc_id"`
	// FilePath is the document path relative to the project root.
	FilePath string `json:"file_path"`
	// StartChar and EndChar delimit the chunk span in the document.
	StartChar int `json:"start_char"`
	EndChar   int `json:"end_char"`
	// Text is the chunk content.
	Text string `json:"text"`
	// TokenEstimate is the approximate token cost of Text.
	TokenEstimate int `json:"token_estimate"`
}

// AnchorPin is a pinned context snippet keyed for role lookup.
type AnchorPin struct {
	// Key identifies the anchor (e.g., "system_overview").
	Key string `json:"key" yaml:"key"`
	// Role is the role this pin belongs to.
	Role string `json:"role" yaml:"role"`
	// Priority orders pins, ascending: priority 0 is most important.
	Priority int `json:"priority" yaml:"priority"`
	// Text is the pinned content.
	Text string `json:"text" yaml:"text"`
	// Tokens is the approximate token cost of Text.
	Tokens int `json:"tokens" yaml:"tokens"`
}

// LexicalResult is a single sparse-channel hit.
type LexicalResult struct {
	// ChunkID is the matched chunk ID.
	ChunkID string
	// Score is the BM25 relevance score.
	Score float64
	// MatchedTerms lists the query terms that matched.
	MatchedTerms []string
}

// DenseResult is a single dense-channel hit.
type DenseResult struct {
	// ChunkID is the matched chunk ID.
	ChunkID string
	// Distance is the raw metric distance (lower is closer).
	Distance float32
	// Score is the normalized similarity (higher is better).
	Score float32
}

// LexicalIndex provides sparse keyword retrieval.
type LexicalIndex interface {
	// Index adds or updates chunks in the index.
	Index(ctx context.Context, chunks []*EvidenceChunk) error

	// Search returns the top limit chunks for the query, scored by BM25.
	// An empty result is not an error.
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)

	// Delete removes chunks by ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of indexed chunks.
	Count() (int, error)

	// Close releases resources.
	Close() error
}

// DenseIndex provides approximate nearest neighbor retrieval.
type DenseIndex interface {
	// Add inserts vectors with their chunk IDs.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest chunks to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*DenseResult, error)

	// Delete removes vectors by chunk ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored vectors.
	Count() int

	// Save persists the index to disk.
	Save(path string) error

	// Load restores the index from disk.
	Load(path string) error

	// Close releases resources.
	Close() error
}

// MetadataStore persists chunk metadata and the anchor registry.
type MetadataStore interface {
	// PutChunks inserts or updates chunk metadata.
	PutChunks(ctx context.Context, chunks []*EvidenceChunk) error

	// GetChunks fetches chunks by ID. Missing IDs are skipped.
	GetChunks(ctx context.Context, ids []string) ([]*EvidenceChunk, error)

	// ChunksByFile returns all chunks for a file path, ordered by span.
	ChunksByFile(ctx context.Context, filePath string) ([]*EvidenceChunk, error)

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// ReplaceAnchors replaces the entire anchor registry.
	ReplaceAnchors(ctx context.Context, pins []*AnchorPin) error

	// AnchorsForRole returns a role's pins ordered by priority ascending.
	AnchorsForRole(ctx context.Context, role string) ([]*AnchorPin, error)

	// ListAnchors returns all pins ordered by role, priority.
	ListAnchors(ctx context.Context) ([]*AnchorPin, error)

	// GetState and SetState access the small key-value state table
	// (index dimension, embedding model, last index time).
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Close releases resources.
	Close() error
}

// LexicalConfig configures the sparse index.
type LexicalConfig struct {
	// K1 controls term frequency saturation.
	K1 float64
	// B controls document length normalization.
	B float64
	// StopWords are filtered during analysis.
	StopWords []string
}

// DefaultLexicalConfig returns standard BM25 parameters.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		K1:        1.2,
		B:         0.75,
		StopWords: DefaultStopWords,
	}
}

// DenseConfig configures the ANN index.
type DenseConfig struct {
	// Dimensions is the vector dimension.
	Dimensions int
	// M is the maximum connections per node.
	M int
	// EfSearch is the search beam width.
	EfSearch int
	// Metric is the distance metric: "cos" or "l2".
	Metric string
}

// DefaultDenseConfig returns tuned HNSW parameters for the given dimension.
func DefaultDenseConfig(dimensions int) DenseConfig {
	return DenseConfig{
		Dimensions: dimensions,
		M:          32,
		EfSearch:   64,
		Metric:     "cos",
	}
}

// DefaultStopWords are common English and prose stop words filtered
// from lexical analysis.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by",
	"for", "if", "in", "into", "is", "it", "no", "not", "of",
	"on", "or", "such", "that", "the", "their", "then", "there",
	"these", "they", "this", "to", "was", "will", "with",
}

// ErrDimensionMismatch indicates a vector has the wrong dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
