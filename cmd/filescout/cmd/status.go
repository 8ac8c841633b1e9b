package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/filescout/filescout/internal/engine"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and statistics",
		Long: `Display the state of the local index:
  - number of indexed files and chunks
  - files still awaiting embedding or summaries
  - chat model and circuit breaker state`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, jsonOutput bool) error {
	eng, err := engine.New(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	health, err := eng.Health()
	if err != nil {
		return err
	}
	stats, err := eng.Stats()
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"health": health, "stats": stats})
	}

	fmt.Printf("Status:  %s\n", health.Status)
	fmt.Printf("Model:   %s (circuit: %s)\n", health.Model, health.Circuit.State)
	fmt.Printf("Files:   %d (%d chunks)\n", health.Index.Files, health.Index.Chunks)
	if stats.Catalog.PendingEmbedding > 0 {
		fmt.Printf("Pending embedding: %d\n", stats.Catalog.PendingEmbedding)
	}
	if stats.Catalog.PendingSummary > 0 {
		fmt.Printf("Pending summaries: %d\n", stats.Catalog.PendingSummary)
	}
	return nil
}
