package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheMonk2121/rehydrate/internal/output"
	"github.com/TheMonk2121/rehydrate/internal/rehydrate"
)

// rehydrateFlags holds the root verb's tuning flags.
type rehydrateFlags struct {
	role       string
	maxTokens  int
	stability  float64
	fusion     string
	denseOnly  bool
	dedupeMode string
	perFileCap int
	expand     string
	format     string
}

func addRehydrateFlags(cmd *cobra.Command, flags *rehydrateFlags) {
	cmd.Flags().StringVar(&flags.role, "role", "", "Role whose anchors to pin (required)")
	cmd.Flags().IntVar(&flags.maxTokens, "max-tokens", 0, "Bundle token budget (default from config)")
	cmd.Flags().Float64Var(&flags.stability, "stability", 0, "Pin budget scale 0-1 (default 0.6)")
	cmd.Flags().StringVar(&flags.fusion, "fusion", "", "Fusion method: rrf or zscore")
	cmd.Flags().BoolVar(&flags.denseOnly, "dense-only", false, "Skip the lexical channel")
	cmd.Flags().StringVar(&flags.dedupeMode, "dedupe-mode", "", "Dedupe mode: file or file+overlap")
	cmd.Flags().IntVar(&flags.perFileCap, "per-file-cap", 0, "Max evidence chunks per source file")
	cmd.Flags().StringVar(&flags.expand, "expand", "", "Query expansion: off or auto")
	cmd.Flags().StringVar(&flags.format, "format", "text", "Output format: text or json")
}

// runRehydrate assembles and renders a bundle for the query.
func runRehydrate(cmd *cobra.Command, args []string, flags rehydrateFlags) error {
	if flags.role == "" {
		return fmt.Errorf("--role is required")
	}
	if flags.format != "text" && flags.format != "json" {
		return fmt.Errorf("--format must be 'text' or 'json', got %s", flags.format)
	}

	query := strings.Join(args, " ")
	ctx := cmd.Context()

	a, err := setupApp(ctx, ".")
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	opts := optionsFrom(cmd, a, flags)

	bundle, err := a.Engine.Rehydrate(ctx, query, flags.role, opts)
	if err != nil {
		return err
	}

	if flags.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(bundle)
	}

	if _, err := fmt.Fprintln(cmd.OutOrStdout(), bundle.Markdown()); err != nil {
		return err
	}

	out := output.New(cmd.ErrOrStderr())
	for _, w := range bundle.Metadata.Warnings {
		out.Warning(w)
	}
	return nil
}

// optionsFrom seeds request options from config, then applies explicit
// flag overrides. Flags that were not set leave the config value in place.
func optionsFrom(cmd *cobra.Command, a *app, flags rehydrateFlags) rehydrate.Options {
	cfg := a.Config

	opts := rehydrate.Options{
		MaxTokens:    cfg.Budget.MaxTokens,
		FusionMethod: cfg.Fusion.Method,
		DedupeMode:   cfg.Dedupe.Mode,
		PerFileCap:   cfg.Dedupe.PerFileCap,
		ExpandQuery:  cfg.Retrieval.ExpandQuery,
		CandidateK:   cfg.Retrieval.CandidateK,
	}

	if cmd.Flags().Changed("max-tokens") {
		opts.MaxTokens = flags.maxTokens
	}
	if cmd.Flags().Changed("stability") {
		opts.Stability = flags.stability
		opts.StabilitySet = true
	}
	if cmd.Flags().Changed("fusion") {
		opts.FusionMethod = flags.fusion
	}
	if cmd.Flags().Changed("dense-only") {
		opts.UseFusion = !flags.denseOnly
		opts.UseFusionSet = true
	}
	if cmd.Flags().Changed("dedupe-mode") {
		opts.DedupeMode = flags.dedupeMode
	}
	if cmd.Flags().Changed("per-file-cap") {
		opts.PerFileCap = flags.perFileCap
	}
	if cmd.Flags().Changed("expand") {
		opts.ExpandQuery = flags.expand
	}

	return opts
}
