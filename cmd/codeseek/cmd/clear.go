package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seekstack/codeseek/internal/config"
	"github.com/seekstack/codeseek/internal/index"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all records from the semantic index",
		Long: `Remove all records from the semantic index and the change cache.
The next 'codeseek index' run rebuilds from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			if err := mgr.Clear(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Index cleared")
			return nil
		},
	}
}
