package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/TheMonk2121/rehydrate/internal/embed"
	"github.com/TheMonk2121/rehydrate/internal/rehydrate"
	"github.com/TheMonk2121/rehydrate/internal/store"
	"github.com/TheMonk2121/rehydrate/pkg/version"
)

// StateKeyLastIndexed is the state table key for the last index run time.
const StateKeyLastIndexed = "last_indexed"

// Server bridges AI clients with the rehydration engine over MCP.
type Server struct {
	mcp      *mcp.Server
	engine   *rehydrate.Engine
	metadata store.MetadataStore
	embedder embed.Embedder
	logger   *slog.Logger
}

// NewServer creates an MCP server around the engine. The embedder is
// used for capability signaling only; the engine holds its own.
func NewServer(engine *rehydrate.Engine, metadata store.MetadataStore, embedder embed.Embedder) (*Server, error) {
	if engine == nil {
		return nil, errors.New("rehydration engine is required")
	}
	if metadata == nil {
		return nil, errors.New("metadata store is required")
	}

	s := &Server{
		engine:   engine,
		metadata: metadata,
		embedder: embedder,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "rehydrate",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "rehydrate",
		Description: "Assemble a role-scoped context bundle for a task. Combines pinned role anchors " +
			"with hybrid-retrieved evidence from the memory index, packed into a token budget. " +
			"Call at session start or after context loss to restore project memory.",
	}, s.mcpRehydrateHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "index_status",
		Description: "Check the memory index: chunk and anchor counts, registered roles, and which " +
			"embedding provider is active. Use before rehydrating to verify the index exists.",
	}, s.mcpIndexStatusHandler)

	s.logger.Info("mcp_tools_registered", slog.Int("count", 2))
}

// mcpRehydrateHandler is the MCP SDK handler for the rehydrate tool.
// The markdown bundle goes in the tool result content; the structured
// output carries assembly metadata.
func (s *Server) mcpRehydrateHandler(ctx context.Context, _ *mcp.CallToolRequest, input RehydrateInput) (
	*mcp.CallToolResult,
	RehydrateOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, RehydrateOutput{}, NewInvalidParamsError("query parameter is required")
	}
	if input.Role == "" {
		return nil, RehydrateOutput{}, NewInvalidParamsError("role parameter is required")
	}

	opts := rehydrate.Options{
		MaxTokens:    input.MaxTokens,
		FusionMethod: input.Fusion,
		DedupeMode:   input.DedupeMode,
		PerFileCap:   input.PerFileCap,
		ExpandQuery:  input.ExpandQuery,
	}
	if input.Stability > 0 {
		opts.Stability = input.Stability
		opts.StabilitySet = true
	}
	if input.DenseOnly {
		opts.UseFusion = false
		opts.UseFusionSet = true
	}

	start := time.Now()
	bundle, err := s.engine.Rehydrate(ctx, input.Query, input.Role, opts)
	if err != nil {
		s.logger.Error("rehydrate_tool_failed",
			slog.String("role", input.Role),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, RehydrateOutput{}, MapError(err)
	}

	output := RehydrateOutput{
		Role:          bundle.Metadata.Role,
		PinsCount:     bundle.Metadata.PinsCount,
		EvidenceCount: bundle.Metadata.EvidenceCount,
		TotalTokens:   bundle.Metadata.TotalTokens,
		FusionMethod:  bundle.Metadata.FusionMethod,
		Degraded:      bundle.Metadata.DegradedChannel,
		Warnings:      bundle.Metadata.Warnings,
		ElapsedMS:     bundle.Metadata.ElapsedMS,
	}

	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: bundle.Markdown()},
		},
	}

	return result, output, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	chunkCount, err := s.metadata.CountChunks(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}

	anchors, err := s.metadata.ListAnchors(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}

	lastIndexed, err := s.metadata.GetState(ctx, StateKeyLastIndexed)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}

	output := IndexStatusOutput{
		ChunkCount:  chunkCount,
		AnchorCount: len(anchors),
		Roles:       s.engine.Anchors().RoleNames(),
		LastIndexed: lastIndexed,
	}

	if s.embedder != nil {
		output.Embeddings = EmbeddingInfo{
			Model:      s.embedder.ModelName(),
			Dimensions: s.embedder.Dimensions(),
			Available:  s.embedder.Available(ctx),
			IsFallback: s.embedder.ModelName() == "static",
		}
	}

	return nil, output, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped_gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
