package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMonk2121/rehydrate/internal/output"
)

func newAnchorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchors",
		Short: "Manage the role-keyed anchor registry",
		Long: `Anchors are pinned context snippets keyed by role. The registry is
seeded from a YAML file and served from the metadata store.`,
	}

	cmd.AddCommand(newAnchorsLoadCmd())
	cmd.AddCommand(newAnchorsListCmd())

	return cmd
}

func newAnchorsLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load [file]",
		Short: "Replace the anchor registry from a YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := setupApp(ctx, ".")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			path := a.anchorsPath()
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("anchors file not found: %s", path)
			}

			if err := a.Anchors.ReloadFromFile(ctx, path); err != nil {
				return err
			}

			pins, err := a.Meta.ListAnchors(ctx)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Successf("Loaded %d anchors from %s", len(pins), path)
			return nil
		},
	}
}

func newAnchorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered anchors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := setupApp(ctx, ".")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			pins, err := a.Meta.ListAnchors(ctx)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if len(pins) == 0 {
				out.Dim("no anchors registered, run 'rehydrate anchors load'")
				return nil
			}

			out.Statusf("", "%-14s %-24s %8s %7s", "ROLE", "KEY", "PRIORITY", "TOKENS")
			for _, p := range pins {
				out.Statusf("", "%-14s %-24s %8d %7d", p.Role, p.Key, p.Priority, p.Tokens)
			}
			return nil
		},
	}
}
