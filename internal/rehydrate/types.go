// Package rehydrate assembles role-scoped context bundles from hybrid
// retrieval. Evidence comes from parallel lexical and dense channels, fused
// with Reciprocal Rank Fusion (RRF) or z-score normalization.
package rehydrate

import (
	"github.com/TheMonk2121/rehydrate/internal/store"
)

// Stage tracks bundle assembly progress. Stages advance monotonically;
// a failure at any stage moves directly to StageFailed.
type Stage string

const (
	StageInit              Stage = "INIT"
	StagePinsLoaded        Stage = "PINS_LOADED"
	StageEvidenceRetrieved Stage = "EVIDENCE_RETRIEVED"
	StageFused             Stage = "FUSED"
	StageDeduped           Stage = "DEDUPED"
	StageBudgetPacked      Stage = "BUDGET_PACKED"
	StageDone              Stage = "DONE"
	StageFailed            Stage = "FAILED"
)

// Warning codes attached to bundle metadata.
const (
	WarnPinsTruncated  = "pins_truncated"
	WarnBudgetExceeded = "budget_exceeded"
	WarnDegraded       = "channel_degraded"
)

// Channel names used in metadata and logs.
const (
	ChannelSparse = "sparse"
	ChannelDense  = "dense"
)

// Candidate is a fused retrieval result before dedup and packing.
type Candidate struct {
	ChunkID      string   // Chunk identifier
	Score        float64  // Fused score (normalized 0-1 for RRF)
	SparseScore  float64  // Original lexical score (preserved)
	SparseRank   int      // Position in lexical list (1-indexed, 0 if absent)
	DenseScore   float64  // Original dense similarity score (preserved)
	DenseRank    int      // Position in dense list (1-indexed, 0 if absent)
	InBoth       bool     // Appeared in both channels
	MatchedTerms []string // Lexical matched terms (for citations)

	// Filled during enrichment
	Chunk *store.EvidenceChunk
}

// PackedPin is an anchor pin admitted into the bundle.
type PackedPin struct {
	Key      string `json:"key"`
	Priority int    `json:"priority"`
	Text     string `json:"text"`
	Tokens   int    `json:"tokens"`
}

// PackedEvidence is an evidence chunk admitted into the bundle.
type PackedEvidence struct {
	ChunkID      string   `json:"chunk_id"`
	FilePath     string   `json:"file_path"`
	StartChar    int      `json:"start_char"`
	EndChar      int      `json:"end_char"`
	Text         string   `json:"text"`
	Tokens       int      `json:"tokens"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// BundleMetadata describes how the bundle was assembled.
type BundleMetadata struct {
	Role            string   `json:"role"`
	Query           string   `json:"query"`
	Stage           Stage    `json:"stage"`
	FusionMethod    string   `json:"fusion_method"` // "rrf", "zscore", or "dense_only"
	DenseWeight     float64  `json:"dense_weight"`
	SparseWeight    float64  `json:"sparse_weight"`
	ExpandedTerms   []string `json:"expanded_terms,omitempty"`
	DegradedChannel string   `json:"degraded_channel,omitempty"` // channel that failed
	Warnings        []string `json:"warnings,omitempty"`

	PinsCount      int `json:"pins_count"`
	PinsDropped    int `json:"pins_dropped"`
	EvidenceCount  int `json:"evidence_count"`
	CandidateCount int `json:"candidate_count"` // fused candidates before dedup
	DedupedCount   int `json:"deduped_count"`   // candidates removed as duplicates or stale
	CapDropped     int `json:"cap_dropped"`     // candidates dropped by the per-file cap

	PinTokens      int `json:"pin_tokens"`
	EvidenceTokens int `json:"evidence_tokens"`
	TotalTokens    int `json:"total_tokens"`
	MaxTokens      int `json:"max_tokens"`

	ElapsedMS int64 `json:"elapsed_ms"`
}

// Bundle is an assembled context bundle ready for injection.
type Bundle struct {
	Pins     []PackedPin      `json:"pins"`
	Evidence []PackedEvidence `json:"evidence"`
	Metadata BundleMetadata   `json:"metadata"`
}
