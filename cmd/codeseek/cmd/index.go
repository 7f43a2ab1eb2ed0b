package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seekstack/codeseek/internal/config"
	"github.com/seekstack/codeseek/internal/index"
)

func newIndexCmd() *cobra.Command {
	var recreate bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update the semantic index",
		Long: `Build or update the semantic index for the current project.

Only files whose content changed since the last run are re-embedded.
Use --recreate to discard the existing index and start from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, recreate)
		},
	}

	cmd.Flags().BoolVar(&recreate, "recreate", false, "Discard the existing index and rebuild")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, recreate bool) error {
	root := projectRoot()

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	mgr, err := index.NewManager(root, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Stop() }()

	fmt.Fprintf(cmd.OutOrStdout(), "Indexing %s\n", root)

	if recreate {
		if err := mgr.Clear(ctx); err != nil {
			return err
		}
	}
	if err := mgr.Start(ctx); err != nil {
		return err
	}

	status := mgr.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files, %d records in the store\n",
		status.Processed, mgr.Count())
	return nil
}
