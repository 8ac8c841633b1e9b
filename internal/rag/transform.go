package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/filescout/filescout/internal/llm"
)

// maxRewriteTokens caps rewritten queries; short keyword-dense queries
// retrieve better than restated questions.
const maxRewriteTokens = 15

const transformPromptTemplate = `You are a query rewriter for a local document search engine. The previous search returned nothing relevant. Rewrite the question into a short keyword-focused search query.

Examples:
Question: find the sorting thing
Query: merge sort algorithm C++ implementation

Question: what did I write about the meeting
Query: meeting notes summary

Question: %s
Query:`

// Transformer rewrites questions that failed retrieval into better
// search queries.
type Transformer struct {
	client llm.Client
	logger *slog.Logger
}

// NewTransformer creates a transformer.
func NewTransformer(client llm.Client, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{client: client, logger: logger}
}

// Transform rewrites query. The rewrite is truncated to
// maxRewriteTokens tokens; an empty or unchanged rewrite returns the
// original query so the caller can detect a dead end.
func (t *Transformer) Transform(ctx context.Context, query string) (string, error) {
	response, err := t.client.Generate(ctx, fmt.Sprintf(transformPromptTemplate, query), llm.Options{
		Temperature: 0.3,
		NumPredict:  50,
	})
	if err != nil {
		return query, err
	}

	rewritten := cleanRewrite(response)
	if rewritten == "" || strings.EqualFold(rewritten, strings.TrimSpace(query)) {
		return query, nil
	}

	t.logger.Debug("query rewritten",
		slog.String("original", query), slog.String("rewritten", rewritten))
	return rewritten, nil
}

// cleanRewrite strips prompt echo and caps token count.
func cleanRewrite(response string) string {
	rewritten := strings.TrimSpace(response)
	// Models sometimes echo the "Query:" label.
	if idx := strings.LastIndex(strings.ToLower(rewritten), "query:"); idx >= 0 {
		rewritten = strings.TrimSpace(rewritten[idx+len("query:"):])
	}
	rewritten = strings.Trim(rewritten, `"'`)

	tokens := strings.Fields(rewritten)
	if len(tokens) > maxRewriteTokens {
		tokens = tokens[:maxRewriteTokens]
	}
	return strings.Join(tokens, " ")
}
