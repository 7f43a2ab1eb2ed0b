package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seekstack/codeseek/internal/config"
	"github.com/seekstack/codeseek/internal/index"
	"github.com/seekstack/codeseek/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	scope    string
	minScore float32
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the semantic index",
		Long: `Search the semantic index for chunks similar to the query.

Examples:
  codeseek search "websocket connection retry"
  codeseek search "parse config file" --scope internal/config
  codeseek search "error handling" --format json --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.scope, "scope", "s", "", "Restrict results to a path prefix")
	cmd.Flags().Float32Var(&opts.minScore, "min-score", 0, "Minimum similarity score (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
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

	results, err := mgr.Search(ctx, query, store.SearchOptions{
		PathPrefix: opts.scope,
		MinScore:   opts.minScore,
		MaxResults: opts.limit,
	})
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		return formatJSON(cmd, results)
	default:
		return formatText(cmd, query, results)
	}
}

// formatText outputs results in human-readable form.
func formatText(cmd *cobra.Command, query string, results []store.SearchResult) error {
	out := cmd.OutOrStdout()

	if len(results) == 0 {
		fmt.Fprintf(out, "No results found for %q\n", query)
		return nil
	}

	fmt.Fprintf(out, "Found %d results for %q:\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(out, "%d. %s:%d-%d (score: %.2f)\n",
			i+1, r.Payload.FilePath, r.Payload.StartLine, r.Payload.EndLine, r.Score)
		for _, line := range snippet(r.Payload.Content, 3) {
			fmt.Fprintf(out, "   %s\n", line)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// formatJSON outputs results as a JSON array.
func formatJSON(cmd *cobra.Command, results []store.SearchResult) error {
	type jsonResult struct {
		FilePath  string  `json:"file_path"`
		StartLine int     `json:"start_line"`
		EndLine   int     `json:"end_line"`
		Score     float32 `json:"score"`
		Content   string  `json:"content"`
	}

	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			FilePath:  r.Payload.FilePath,
			StartLine: r.Payload.StartLine,
			EndLine:   r.Payload.EndLine,
			Score:     r.Score,
			Content:   r.Payload.Content,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// snippet returns the first n non-empty-trailing lines of content.
func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
