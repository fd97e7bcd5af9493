package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TheMonk2121/rehydrate/internal/logging"
	"github.com/TheMonk2121/rehydrate/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Serve exposes the rehydrate and index_status tools over the Model
Context Protocol so AI assistants can pull context bundles on demand.

Stdout carries JSON-RPC exclusively; diagnostics go to the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setupApp(ctx, ".")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			// Stdout is reserved for JSON-RPC; diagnostics go to stderr
			// at the configured level unless --debug routed them to file
			if !debugMode {
				handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
					Level: logging.LevelFromString(a.Config.Server.LogLevel),
				})
				slog.SetDefault(slog.New(handler))
			}

			srv, err := mcp.NewServer(a.Engine, a.Meta, a.Embedder)
			if err != nil {
				return err
			}

			// Hot-reload anchors while serving
			anchorsPath := a.anchorsPath()
			if _, err := os.Stat(anchorsPath); err == nil {
				go func() {
					if err := a.Anchors.WatchFile(ctx, anchorsPath); err != nil && ctx.Err() == nil {
						slog.Warn("anchors watcher stopped", slog.String("error", err.Error()))
					}
				}()
			}

			slog.Info("mcp server starting",
				slog.String("transport", a.Config.Server.Transport),
				slog.String("data_dir", a.DataDir))

			return srv.Serve(ctx, a.Config.Server.Transport)
		},
	}
}
