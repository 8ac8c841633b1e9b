// Package cmd provides the CLI commands for filescout.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/filescout/filescout/internal/config"
	"github.com/filescout/filescout/internal/logging"
	"github.com/filescout/filescout/pkg/version"
)

var (
	flagConfig   string
	flagDataDir  string
	flagLogLevel string

	cfg        config.Config
	logCleanup func()
)

// NewRootCmd creates the root command for the filescout CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filescout",
		Short: "Local folder indexing and question answering",
		Long: `Filescout indexes local folders into a hybrid semantic + keyword
index and answers questions about their contents with a local Ollama
model. Everything runs on this machine; nothing leaves it.

Start the HTTP API with 'filescout serve', or use the one-shot
commands (index, search, ask, status) directly.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("filescout version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory (default ~/.filescout)")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.PersistentPreRunE = setupRun
	cmd.PersistentPostRun = teardownRun

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupRun loads .env, the config file, and sets up logging before any
// command runs.
func setupRun(_ *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	stderr := true
	if cfg.Logging.WriteToStderr != nil {
		stderr = *cfg.Logging.WriteToStderr
	}
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: stderr,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	logCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownRun(_ *cobra.Command, _ []string) {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
