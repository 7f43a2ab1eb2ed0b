package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seekstack/codeseek/internal/config"
	"github.com/seekstack/codeseek/internal/index"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Index the project and keep the index synchronized",
		Long: `Build the semantic index and then watch the file system, applying
incremental updates as files change. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd)
		},
	}
}

func runWatch(ctx context.Context, cmd *cobra.Command) error {
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

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintf(cmd.OutOrStdout(), "Indexing %s\n", root)
	if err := mgr.Start(ctx); err != nil {
		return err
	}

	status := mgr.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files; watching for changes (Ctrl-C to stop)\n",
		status.Processed)

	updates := mgr.Subscribe()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(cmd.OutOrStdout(), "Stopping")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "indexing error: %v\n", update.Err)
				continue
			}
			if update.State == index.StateIndexing && update.Total > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\rindexing %d/%d", update.Processed, update.Total)
			}
			if update.State == index.StateIndexed {
				fmt.Fprintf(cmd.OutOrStdout(), "\rindex up to date (%d records)\n", mgr.Count())
			}
		}
	}
}
