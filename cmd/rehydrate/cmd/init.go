package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TheMonk2121/rehydrate/configs"
	"github.com/TheMonk2121/rehydrate/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create starter configuration files",
		Long: `Init writes a commented .rehydrate.yaml and an anchors.yaml starter
seed into the target directory. Existing files are left alone unless
--force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration files")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	targets := []struct {
		name    string
		content string
	}{
		{".rehydrate.yaml", configs.ProjectConfigTemplate},
		{"anchors.yaml", configs.AnchorsTemplate},
	}

	for _, t := range targets {
		path := filepath.Join(dir, t.name)

		if _, err := os.Stat(path); err == nil && !force {
			out.Dim(fmt.Sprintf("%s already exists, skipping", t.name))
			continue
		}

		if err := os.WriteFile(path, []byte(t.content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		out.Successf("wrote %s", t.name)
	}

	out.Newline()
	out.Status("", "Next: edit anchors.yaml, then run 'rehydrate index'")
	return nil
}
