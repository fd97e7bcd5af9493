package rehydrate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/TheMonk2121/rehydrate/internal/embed"
	rerr "github.com/TheMonk2121/rehydrate/internal/errors"
	"github.com/TheMonk2121/rehydrate/internal/store"
)

// Engine limits and timeouts.
const (
	// DefaultTimeout bounds a full rehydration request.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxInFlight is the concurrent request limit.
	DefaultMaxInFlight = 8

	// DefaultAcquireWait bounds the wait for a limiter slot.
	DefaultAcquireWait = 2 * time.Second
)

// EngineConfig tunes the rehydration engine.
type EngineConfig struct {
	Weights          Weights
	RRFConstant      int
	CandidateK       int
	Timeout          time.Duration
	MaxInFlight      int64
	AcquireWait      time.Duration
	MaxExpansions    int
	OverlapThreshold float64
}

// DefaultEngineConfig returns production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Weights:          DefaultWeights(),
		RRFConstant:      DefaultRRFConstant,
		CandidateK:       DefaultCandidateK,
		Timeout:          DefaultTimeout,
		MaxInFlight:      DefaultMaxInFlight,
		AcquireWait:      DefaultAcquireWait,
		MaxExpansions:    DefaultMaxExpansions,
		OverlapThreshold: DefaultOverlapThreshold,
	}
}

// Engine assembles context bundles from hybrid retrieval. Safe for
// concurrent use; the limiter bounds in-flight requests.
type Engine struct {
	lexical  store.LexicalIndex
	dense    store.DenseIndex
	meta     store.MetadataStore
	embedder embed.Embedder
	anchors  *AnchorRegistry
	expander *QueryExpander

	config  EngineConfig
	limiter *semaphore.Weighted
}

// NewEngine wires the retrieval channels, metadata store, embedder, and
// anchor registry into an engine.
func NewEngine(
	lexical store.LexicalIndex,
	dense store.DenseIndex,
	meta store.MetadataStore,
	embedder embed.Embedder,
	anchors *AnchorRegistry,
	cfg EngineConfig,
) *Engine {
	if cfg.Weights.Dense == 0 && cfg.Weights.Sparse == 0 {
		cfg.Weights = DefaultWeights()
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.CandidateK <= 0 {
		cfg.CandidateK = DefaultCandidateK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.AcquireWait <= 0 {
		cfg.AcquireWait = DefaultAcquireWait
	}

	return &Engine{
		lexical:  lexical,
		dense:    dense,
		meta:     meta,
		embedder: embedder,
		anchors:  anchors,
		expander: NewQueryExpander(cfg.MaxExpansions),
		config:   cfg,
		limiter:  semaphore.NewWeighted(cfg.MaxInFlight),
	}
}

// Anchors returns the engine's anchor registry.
func (e *Engine) Anchors() *AnchorRegistry {
	return e.anchors
}

// Rehydrate assembles a context bundle for the role and query.
//
// Pins load first, then both retrieval channels run in parallel. A
// single failed channel degrades to the survivor's ranking; both
// failing is a retrieval error. The fused, deduplicated evidence is
// packed into the token budget after pins.
func (e *Engine) Rehydrate(ctx context.Context, query, role string, opts Options) (*Bundle, error) {
	start := time.Now()

	opts = applyDefaults(opts)
	if err := validateOptions(opts); err != nil {
		return nil, rerr.InvalidInput(err.Error(), err)
	}

	if strings.TrimSpace(query) == "" {
		return nil, rerr.QueryEmpty()
	}

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, e.config.AcquireWait)
	defer cancelAcquire()
	if err := e.limiter.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, rerr.ResourceExhausted("too many concurrent rehydration requests")
	}
	defer e.limiter.Release(1)

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	stage := StageInit
	fail := func(err error) (*Bundle, error) {
		slog.Error("rehydrate_failed",
			slog.String("role", role),
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()))
		return nil, err
	}

	meta := BundleMetadata{
		Role:         role,
		Query:        query,
		FusionMethod: opts.FusionMethod,
		DenseWeight:  e.config.Weights.Dense,
		SparseWeight: e.config.Weights.Sparse,
		MaxTokens:    opts.MaxTokens,
	}
	if !opts.UseFusion {
		meta.FusionMethod = "dense_only"
	}

	pins, pinsDropped, err := e.anchors.PinsForRole(ctx, role, opts.Stability)
	if err != nil {
		return fail(err)
	}
	stage = StagePinsLoaded
	meta.PinsCount = len(pins)
	meta.PinsDropped = pinsDropped
	if pinsDropped > 0 {
		meta.Warnings = append(meta.Warnings, WarnPinsTruncated)
	}

	sparseQuery := query
	if opts.ExpandQuery == ExpandAuto {
		expanded, added := e.expander.Expand(query)
		if len(added) > 0 {
			sparseQuery = expanded
			meta.ExpandedTerms = added
			slog.Debug("query_expanded",
				slog.String("original", query),
				slog.Any("added", added))
		}
	}

	sparse, dense, degraded, err := e.retrieve(ctx, query, sparseQuery, opts)
	if err != nil {
		return fail(err)
	}
	stage = StageEvidenceRetrieved

	if degraded != "" {
		meta.DegradedChannel = degraded
		meta.Warnings = append(meta.Warnings, WarnDegraded)
	}

	candidates := e.fuse(sparse, dense, degraded, opts)
	stage = StageFused
	meta.CandidateCount = len(candidates)

	if err := e.enrich(ctx, candidates); err != nil {
		return fail(err)
	}

	deduper := NewDeduper(opts.DedupeMode, opts.PerFileCap, e.config.OverlapThreshold)
	candidates, removed, capped := deduper.Dedupe(candidates)
	stage = StageDeduped
	meta.DedupedCount = removed
	meta.CapDropped = capped

	pinTokens := 0
	for _, p := range pins {
		pinTokens += p.Tokens
	}
	evidenceBudget := opts.MaxTokens - pinTokens
	if evidenceBudget < 0 {
		evidenceBudget = 0
	}

	evidence, evidenceTokens, packWarnings := packEvidence(candidates, evidenceBudget)
	stage = StageBudgetPacked
	meta.Warnings = append(meta.Warnings, packWarnings...)
	meta.EvidenceCount = len(evidence)
	meta.PinTokens = pinTokens
	meta.EvidenceTokens = evidenceTokens
	meta.TotalTokens = pinTokens + evidenceTokens

	stage = StageDone
	meta.Stage = stage
	meta.ElapsedMS = time.Since(start).Milliseconds()

	slog.Info("bundle_assembled",
		slog.String("role", role),
		slog.String("fusion", meta.FusionMethod),
		slog.Int("pins", meta.PinsCount),
		slog.Int("evidence", meta.EvidenceCount),
		slog.Int("tokens", meta.TotalTokens),
		slog.Int64("elapsed_ms", meta.ElapsedMS))

	return &Bundle{
		Pins:     pins,
		Evidence: evidence,
		Metadata: meta,
	}, nil
}

// retrieve runs the sparse and dense channels in parallel. A single
// channel failure returns the survivor with the failed channel's name;
// both failing (or context expiry) is an error.
func (e *Engine) retrieve(ctx context.Context, query, sparseQuery string, opts Options) (
	sparse []*store.LexicalResult,
	dense []*store.DenseResult,
	degraded string,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var sparseErr, denseErr error

	if opts.UseFusion {
		g.Go(func() error {
			var searchErr error
			sparse, searchErr = e.lexical.Search(gctx, sparseQuery, opts.CandidateK)
			if searchErr != nil {
				sparseErr = searchErr
			}
			return nil
		})
	}

	g.Go(func() error {
		embedding, embedErr := e.embedder.Embed(gctx, query)
		if embedErr != nil {
			denseErr = embedErr
			return nil
		}

		var searchErr error
		dense, searchErr = e.dense.Search(gctx, embedding, opts.CandidateK)
		if searchErr != nil {
			denseErr = searchErr
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, "", e.mapContextErr(ctx, waitErr)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, "", e.mapContextErr(ctx, ctxErr)
	}

	if !opts.UseFusion {
		if denseErr != nil {
			return nil, nil, "", rerr.RetrievalUnavailable("dense retrieval failed", denseErr)
		}
		return nil, dense, "", nil
	}

	if sparseErr != nil && denseErr != nil {
		return nil, nil, "", rerr.RetrievalUnavailable("both retrieval channels failed",
			errors.Join(sparseErr, denseErr))
	}

	if sparseErr != nil {
		slog.Warn("sparse_channel_failed", slog.String("error", sparseErr.Error()))
		return nil, dense, ChannelSparse, nil
	}
	if denseErr != nil {
		slog.Warn("dense_channel_failed", slog.String("error", denseErr.Error()))
		return sparse, nil, ChannelDense, nil
	}

	return sparse, dense, "", nil
}

// mapContextErr converts a deadline expiry into a structured timeout error.
func (e *Engine) mapContextErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return rerr.Timeout("rehydration timed out", err)
	}
	return err
}

// fuse combines channel results. Dense-only mode and degraded channels
// preserve the surviving channel's own ranking.
func (e *Engine) fuse(sparse []*store.LexicalResult, dense []*store.DenseResult, degraded string, opts Options) []*Candidate {
	if !opts.UseFusion || degraded == ChannelSparse {
		return candidatesFromDense(dense)
	}
	if degraded == ChannelDense {
		return candidatesFromSparse(sparse)
	}

	var fuser Fuser
	switch strings.ToLower(opts.FusionMethod) {
	case FusionZScore:
		fuser = NewZScoreFuser()
	default:
		fuser = NewRRFFuser(e.config.RRFConstant)
	}

	return fuser.Fuse(sparse, dense, e.config.Weights)
}

// enrich batch-fetches chunk metadata for the candidates. Candidates
// whose chunks are gone from the store keep a nil Chunk and are dropped
// during dedup.
func (e *Engine) enrich(ctx context.Context, candidates []*Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]string, len(candidates))
	byID := make(map[string]*Candidate, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
		byID[c.ChunkID] = c
	}

	chunks, err := e.meta.GetChunks(ctx, ids)
	if err != nil {
		return rerr.InternalError("failed to load chunk metadata", err)
	}

	for _, chunk := range chunks {
		if c, ok := byID[chunk.ID]; ok {
			c.Chunk = chunk
		}
	}

	return nil
}

// Close releases all engine resources.
func (e *Engine) Close() error {
	var errs []error

	if err := e.lexical.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.dense.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.meta.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
