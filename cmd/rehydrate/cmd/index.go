package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/TheMonk2121/rehydrate/internal/chunk"
	"github.com/TheMonk2121/rehydrate/internal/mcp"
	"github.com/TheMonk2121/rehydrate/internal/output"
	"github.com/TheMonk2121/rehydrate/internal/store"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index markdown and text notes for retrieval",
		Long: `Index scans a directory for .md and .txt files, chunks them at
heading and paragraph boundaries, and builds the lexical and dense
indexes the rehydrate verb searches.

Use --force to clear existing index data and rebuild from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Clear existing index data and rebuild from scratch")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if force {
		if err := clearIndexData(absPath); err != nil {
			return fmt.Errorf("failed to clear index data: %w", err)
		}
		out.Status("", "Cleared existing index data")
	}

	a, err := setupApp(ctx, absPath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// One indexer per data dir at a time; serve can keep reading
	lock := flock.New(filepath.Join(a.DataDir, ".index.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another index operation is running on %s", a.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	files, err := collectNoteFiles(a.Root, a.DataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		out.Warning("no .md or .txt files found, nothing to index")
		return nil
	}
	out.Statusf("", "Found %d files under %s", len(files), a.Root)

	chunker := chunk.NewChunker(0)
	var chunks []*store.EvidenceChunk
	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(a.Root, file))
		if err != nil {
			slog.Warn("skipping unreadable file",
				slog.String("file", file),
				slog.String("error", err.Error()))
			continue
		}
		chunks = append(chunks, chunker.ChunkText(file, string(data))...)
	}
	out.Statusf("", "Chunked into %d evidence chunks", len(chunks))

	if err := a.Meta.PutChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to store chunk metadata: %w", err)
	}
	if err := a.Lexical.Index(ctx, chunks); err != nil {
		return fmt.Errorf("failed to build lexical index: %w", err)
	}

	if err := embedChunks(ctx, a, out, chunks); err != nil {
		return err
	}

	if err := a.Dense.Save(a.densePath); err != nil {
		return fmt.Errorf("failed to save dense index: %w", err)
	}

	// Seed anchors alongside indexing when the file exists
	anchorsPath := a.anchorsPath()
	if _, err := os.Stat(anchorsPath); err == nil {
		if err := a.Anchors.ReloadFromFile(ctx, anchorsPath); err != nil {
			return fmt.Errorf("failed to load anchors: %w", err)
		}
		out.Statusf("", "Loaded anchors from %s", anchorsPath)
	}

	if err := a.Meta.SetState(ctx, mcp.StateKeyLastIndexed, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record index time: %w", err)
	}

	out.Successf("Indexed %d chunks from %d files", len(chunks), len(files))
	return nil
}

// embedChunks embeds chunk texts in config-sized batches and adds the
// vectors to the dense index.
func embedChunks(ctx context.Context, a *app, out *output.Writer, chunks []*store.EvidenceChunk) error {
	batchSize := a.Config.Embeddings.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	for done := 0; done < len(chunks); done += batchSize {
		end := done + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[done:end]

		ids := make([]string, len(batch))
		texts := make([]string, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
			texts[i] = c.Text
		}

		vectors, err := a.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if err := a.Dense.Add(ctx, ids, vectors); err != nil {
			return fmt.Errorf("failed to add vectors: %w", err)
		}

		out.Progress(end, len(chunks), "embedding chunks")
	}

	return nil
}

// collectNoteFiles walks the project root for supported note files,
// returning root-relative paths. Hidden directories and the data dir
// are skipped.
func collectNoteFiles(root, dataDir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || name == "node_modules" || path == dataDir {
				return filepath.SkipDir
			}
			return nil
		}

		if !chunk.Supported(filepath.Ext(path)) {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	return files, nil
}

// clearIndexData removes the index files so a forced run rebuilds from
// scratch. The data dir itself and the anchors seed file are kept.
func clearIndexData(startDir string) error {
	a, err := setupApp(context.Background(), startDir)
	if err != nil {
		// No config or stores yet means nothing to clear
		return nil
	}
	dataDir := a.DataDir
	_ = a.Close()

	for _, name := range []string{metadataFile, lexicalFile, denseFile, denseFile + ".meta"} {
		if err := os.RemoveAll(filepath.Join(dataDir, name)); err != nil {
			return err
		}
	}
	return nil
}
