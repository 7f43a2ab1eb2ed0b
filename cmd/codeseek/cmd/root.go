// Package cmd provides the CLI commands for codeseek.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/seekstack/codeseek/internal/config"
	"github.com/seekstack/codeseek/internal/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the codeseek CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codeseek",
		Short: "Local semantic search over your source tree",
		Long: `codeseek builds a local semantic index over a source tree and answers
similarity queries against it.

Files are split into line-range chunks, embedded through a configurable
backend (Ollama, OpenAI-compatible, or offline static), and stored in a
local vector store. A file watcher keeps the index synchronized.

Run 'codeseek index' in your project directory to get started.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("codeseek version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}

// setupLogging configures slog from config plus the --debug flag.
func setupLogging(_ *cobra.Command, _ []string) error {
	root := projectRoot()
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	logCfg := logging.Config{
		Level:         cfg.Log.Level,
		FilePath:      cfg.Log.FilePath,
		MaxSizeMB:     cfg.Log.MaxSizeMB,
		MaxFiles:      cfg.Log.MaxFiles,
		WriteToStderr: true,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = filepath.Join(cfg.DataDir(root), "codeseek.log")
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging must never block the command itself
		return nil
	}
	loggingCleanup = cleanup
	return nil
}

// projectRoot finds the enclosing project, falling back to the cwd.
func projectRoot() string {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
