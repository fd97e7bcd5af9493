package mcp

// RehydrateInput defines the input schema for the rehydrate tool.
type RehydrateInput struct {
	Query       string  `json:"query" jsonschema:"the task or question to rehydrate context for"`
	Role        string  `json:"role" jsonschema:"agent role keying the pinned anchors (planner, implementer, researcher)"`
	MaxTokens   int     `json:"max_tokens,omitempty" jsonschema:"total bundle token budget, default 1200, max 6000"`
	Stability   float64 `json:"stability,omitempty" jsonschema:"pin budget scale between 0 and 1, default 0.6"`
	Fusion      string  `json:"fusion,omitempty" jsonschema:"fusion method: rrf or zscore, default rrf"`
	DenseOnly   bool    `json:"dense_only,omitempty" jsonschema:"skip the keyword channel and use dense retrieval only"`
	DedupeMode  string  `json:"dedupe_mode,omitempty" jsonschema:"dedup mode: file or file+overlap, default file"`
	PerFileCap  int     `json:"per_file_cap,omitempty" jsonschema:"max evidence chunks per file, default 2"`
	ExpandQuery string  `json:"expand_query,omitempty" jsonschema:"query expansion: off or auto, default off"`
}

// RehydrateOutput defines the output schema for the rehydrate tool.
type RehydrateOutput struct {
	Role           string   `json:"role" jsonschema:"role the bundle was assembled for"`
	PinsCount      int      `json:"pins_count" jsonschema:"number of anchor pins included"`
	EvidenceCount  int      `json:"evidence_count" jsonschema:"number of evidence chunks included"`
	TotalTokens    int      `json:"total_tokens" jsonschema:"estimated tokens in the bundle"`
	FusionMethod   string   `json:"fusion_method" jsonschema:"fusion method actually used"`
	Degraded       string   `json:"degraded_channel,omitempty" jsonschema:"retrieval channel that failed, if any"`
	Warnings       []string `json:"warnings,omitempty" jsonschema:"assembly warnings such as pins_truncated"`
	ElapsedMS      int64    `json:"elapsed_ms" jsonschema:"assembly time in milliseconds"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	ChunkCount  int      `json:"chunk_count" jsonschema:"number of indexed evidence chunks"`
	AnchorCount int      `json:"anchor_count" jsonschema:"number of registered anchor pins"`
	Roles       []string `json:"roles" jsonschema:"registered role names"`
	LastIndexed string   `json:"last_indexed,omitempty" jsonschema:"RFC3339 time of the last index run"`
	Embeddings  EmbeddingInfo `json:"embeddings" jsonschema:"active embedding provider details"`
}

// EmbeddingInfo describes the active embedding provider. AI clients can
// use this to adjust query strategy when the static fallback is active.
type EmbeddingInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
	IsFallback bool   `json:"is_fallback"`
}
