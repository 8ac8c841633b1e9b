package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/filescout/filescout/internal/engine"
	"github.com/filescout/filescout/internal/search"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed files",
		Long: `Search indexed files with hybrid semantic + keyword retrieval.

Examples:
  filescout search "quarterly revenue report"
  filescout search "merge sort" --limit 3 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), query, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", search.DefaultLimit, "Maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, query string, limit int, jsonOutput bool) error {
	eng, err := engine.New(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	results, err := eng.Search(ctx, query, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. %s (%.2f)\n", i+1, r.Path, r.Score)
		if r.Summary != "" {
			fmt.Printf("   %s\n", r.Summary)
		}
		if r.Content != "" {
			fmt.Printf("   %s\n", r.Content)
		}
	}
	return nil
}
