package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/seekstack/codeseek/internal/cache"
	"github.com/seekstack/codeseek/internal/config"
	"github.com/seekstack/codeseek/internal/ignore"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status for the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

type statusReport struct {
	Root         string `json:"root"`
	Enabled      bool   `json:"enabled"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	StoreBackend string `json:"store_backend"`
	IndexedFiles int    `json:"indexed_files"`
	IndexExists  bool   `json:"index_exists"`
	IgnoreRules  int    `json:"ignore_rules"`
}

func runStatus(cmd *cobra.Command, asJSON bool) error {
	root := projectRoot()

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	dataDir := cfg.DataDir(root)

	report := statusReport{
		Root:         root,
		Enabled:      cfg.IsEnabled(),
		Provider:     cfg.Embedder.Provider,
		Model:        cfg.Embedder.Model,
		StoreBackend: cfg.Store.Backend,
	}

	if _, err := os.Stat(dataDir); err == nil {
		report.IndexExists = true
	}

	// The change cache doubles as the indexed-file inventory
	if report.IndexExists {
		if ch, err := cache.Open(filepath.Join(dataDir, "changes.db")); err == nil {
			report.IndexedFiles = ch.Len()
			_ = ch.Close()
		}
	}

	if resolver, err := ignore.NewResolver(root); err == nil {
		report.IgnoreRules = resolver.RuleCount()
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Project:       %s\n", report.Root)
	fmt.Fprintf(out, "Enabled:       %v\n", report.Enabled)
	fmt.Fprintf(out, "Embedder:      %s (%s)\n", report.Provider, report.Model)
	fmt.Fprintf(out, "Store backend: %s\n", report.StoreBackend)
	fmt.Fprintf(out, "Index exists:  %v\n", report.IndexExists)
	fmt.Fprintf(out, "Indexed files: %d\n", report.IndexedFiles)
	fmt.Fprintf(out, "Ignore rules:  %d\n", report.IgnoreRules)
	return nil
}
