package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/filescout/filescout/internal/engine"
)

// drainPoll is how often the index command checks the background queues.
const drainPoll = 200 * time.Millisecond

func newIndexCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "index <folder>",
		Short: "Index a folder",
		Long: `Walk a folder, register every supported file, and embed the
contents. By default the command waits until the embedding queue has
drained so the folder is immediately searchable.

The data directory is locked while indexing; stop a running
'filescout serve' first, or use the /add_folder endpoint instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), args[0], wait)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "Wait for background embedding to finish")

	return cmd
}

func runIndex(ctx context.Context, path string, wait bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	res, err := eng.AddFolder(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("Scanned %d files: %d indexed, %d unchanged, %d skipped\n",
		res.Scanned, res.Indexed, res.Unchanged, res.Failed)

	if !wait {
		return nil
	}
	if err := waitForDrain(ctx, eng); err != nil {
		return err
	}

	stats, err := eng.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Embedded %d chunks across %d files\n", stats.Chunks, stats.Catalog.TotalFiles)
	if stats.Catalog.PendingSummary > 0 {
		fmt.Printf("%d files await summaries; they are generated when the model is reachable\n",
			stats.Catalog.PendingSummary)
	}
	return nil
}

// waitForDrain blocks until every queued embedding job has finished.
// Summaries are not waited on: they need the chat model, which may be
// offline during a one-shot index.
func waitForDrain(ctx context.Context, eng *engine.Engine) error {
	for {
		stats, err := eng.Stats()
		if err != nil {
			return err
		}
		if eng.WorkerStats().EmbedQueue == 0 && stats.Catalog.PendingEmbedding == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(drainPoll):
		}
	}
}
