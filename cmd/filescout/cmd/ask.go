package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/filescout/filescout/internal/engine"
)

func newAskCmd() *cobra.Command {
	var useRAG bool
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about indexed files",
		Long: `Ask a question in natural language. The agent routes it to search,
file reading, listing, or plain chat. With --rag the self-correcting
retrieval pipeline answers instead: it retrieves, grades, and rewrites
until the answer is grounded in indexed content.

Requires the Ollama chat model to be reachable.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return runAsk(cmd.Context(), question, sessionID, useRAG)
		},
	}

	cmd.Flags().BoolVar(&useRAG, "rag", false, "Use the self-correcting retrieval pipeline")
	cmd.Flags().StringVar(&sessionID, "session", "", "Continue an existing conversation session")

	return cmd
}

func runAsk(ctx context.Context, question, sessionID string, useRAG bool) error {
	eng, err := engine.New(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if useRAG {
		answer, sid, err := eng.AskRAG(ctx, sessionID, question)
		if err != nil {
			// A model failure after retrieval still names the
			// candidate sources.
			if answer != nil {
				for _, src := range answer.Sources {
					fmt.Printf("  source: %s (%.2f)\n", src.Path, src.Score)
				}
			}
			return err
		}
		fmt.Println(answer.Text)
		for _, src := range answer.Sources {
			fmt.Printf("  source: %s (%.2f)\n", src.Path, src.Score)
		}
		fmt.Printf("session: %s\n", sid)
		return nil
	}

	reply, sid, err := eng.Ask(ctx, sessionID, question)
	if err != nil {
		return err
	}
	fmt.Println(reply.Answer)
	fmt.Printf("session: %s\n", sid)
	return nil
}
