package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TheMonk2121/rehydrate/internal/config"
	"github.com/TheMonk2121/rehydrate/internal/embed"
	"github.com/TheMonk2121/rehydrate/internal/rehydrate"
	"github.com/TheMonk2121/rehydrate/internal/store"
)

// Data directory file names.
const (
	metadataFile = "metadata.db"
	lexicalFile  = "lexical.bleve"
	denseFile    = "dense.hnsw"
)

// app holds the wired components for a CLI run. Close releases everything
// through the engine.
type app struct {
	Config   *config.Config
	Root     string
	DataDir  string
	Meta     *store.SQLiteMetadataStore
	Lexical  *store.BleveLexicalIndex
	Dense    *store.HNSWIndex
	Embedder embed.Embedder
	Anchors  *rehydrate.AnchorRegistry
	Engine   *rehydrate.Engine

	densePath string
}

// setupApp loads configuration from the project root and wires the stores,
// embedder, anchor registry, and engine.
func setupApp(ctx context.Context, startDir string) (*app, error) {
	root, err := config.FindProjectRoot(startDir)
	if err != nil {
		return nil, fmt.Errorf("failed to locate project root: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	dataDir := filepath.Join(root, cfg.Paths.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	meta, err := store.NewSQLiteMetadataStore(filepath.Join(dataDir, metadataFile))
	if err != nil {
		return nil, err
	}

	lexical, err := store.NewBleveLexicalIndex(filepath.Join(dataDir, lexicalFile), store.DefaultLexicalConfig())
	if err != nil {
		_ = meta.Close()
		return nil, err
	}

	base, err := embed.NewEmbedder(ctx, cfg.Embeddings.Provider, embed.HTTPConfig{
		Endpoint:   cfg.Embeddings.Endpoint,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		MaxQPS:     cfg.Embeddings.MaxQPS,
	})
	if err != nil {
		_ = lexical.Close()
		_ = meta.Close()
		return nil, err
	}
	embedder := embed.NewCachedEmbedder(base, cfg.Embeddings.CacheSize)

	dense, err := store.NewHNSWIndex(store.DefaultDenseConfig(embedder.Dimensions()))
	if err != nil {
		_ = embedder.Close()
		_ = lexical.Close()
		_ = meta.Close()
		return nil, err
	}

	densePath := filepath.Join(dataDir, denseFile)
	if _, statErr := os.Stat(densePath); statErr == nil {
		if err := dense.Load(densePath); err != nil {
			_ = dense.Close()
			_ = embedder.Close()
			_ = lexical.Close()
			_ = meta.Close()
			return nil, fmt.Errorf("failed to load dense index: %w", err)
		}
	}

	anchors := rehydrate.NewAnchorRegistry(meta, cfg.RoleNames(), cfg.Budget.PinsCeiling, cfg.Budget.PinsBudgetMax)

	engineCfg, err := engineConfigFrom(cfg)
	if err != nil {
		_ = dense.Close()
		_ = embedder.Close()
		_ = lexical.Close()
		_ = meta.Close()
		return nil, err
	}

	engine := rehydrate.NewEngine(lexical, dense, meta, embedder, anchors, engineCfg)

	return &app{
		Config:    cfg,
		Root:      root,
		DataDir:   dataDir,
		Meta:      meta,
		Lexical:   lexical,
		Dense:     dense,
		Embedder:  embedder,
		Anchors:   anchors,
		Engine:    engine,
		densePath: densePath,
	}, nil
}

// engineConfigFrom maps validated configuration onto engine tunables.
func engineConfigFrom(cfg *config.Config) (rehydrate.EngineConfig, error) {
	timeout, err := time.ParseDuration(cfg.Retrieval.Timeout)
	if err != nil {
		return rehydrate.EngineConfig{}, fmt.Errorf("invalid retrieval.timeout %q: %w", cfg.Retrieval.Timeout, err)
	}

	acquireWait, err := time.ParseDuration(cfg.Limiter.AcquireWait)
	if err != nil {
		return rehydrate.EngineConfig{}, fmt.Errorf("invalid limiter.acquire_wait %q: %w", cfg.Limiter.AcquireWait, err)
	}

	return rehydrate.EngineConfig{
		Weights: rehydrate.Weights{
			Dense:  cfg.Fusion.DenseWeight,
			Sparse: cfg.Fusion.SparseWeight,
		},
		RRFConstant:      cfg.Fusion.RRFConstant,
		CandidateK:       cfg.Retrieval.CandidateK,
		Timeout:          timeout,
		MaxInFlight:      int64(cfg.Limiter.MaxInFlight),
		AcquireWait:      acquireWait,
		MaxExpansions:    cfg.Retrieval.MaxExpansions,
		OverlapThreshold: cfg.Dedupe.OverlapThreshold,
	}, nil
}

// anchorsPath resolves the configured anchors file against the project root.
func (a *app) anchorsPath() string {
	if filepath.IsAbs(a.Config.Paths.AnchorsFile) {
		return a.Config.Paths.AnchorsFile
	}
	return filepath.Join(a.Root, a.Config.Paths.AnchorsFile)
}

// Close releases all components. The engine owns the stores and embedder.
func (a *app) Close() error {
	return a.Engine.Close()
}
