// Package rag implements the self-correcting retrieval workflow:
// retrieve, grade, rewrite the query when grading rejects everything,
// and generate an answer grounded in the surviving context.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/filescout/filescout/internal/llm"
	"github.com/filescout/filescout/internal/search"
)

// gradeBatchSize is how many documents are graded per model call.
const gradeBatchSize = 5

const gradePromptTemplate = `You are a grader assessing the relevance of retrieved documents to a user question.

Question: %s

Documents:
%s

For each document, respond with exactly one line in the form "DOC N: RELEVANT" or "DOC N: NOT_RELEVANT". Do not add explanations.`

// Grader filters retrieved documents by relevance to the original
// question, in batches, with a parser tolerant of model formatting
// drift.
type Grader struct {
	client llm.Client
	logger *slog.Logger
}

// NewGrader creates a grader.
func NewGrader(client llm.Client, logger *slog.Logger) *Grader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Grader{client: client, logger: logger}
}

// Grade returns the subset of docs judged relevant to the question.
// Grading always runs against the original question, not any rewritten
// query. When a batch verdict cannot be parsed the whole batch is kept:
// losing context is worse than keeping a noisy document.
func (g *Grader) Grade(ctx context.Context, question string, docs []search.Result) ([]search.Result, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var kept []search.Result
	for start := 0; start < len(docs); start += gradeBatchSize {
		end := start + gradeBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		verdicts, err := g.gradeBatch(ctx, question, batch)
		if err != nil {
			return nil, err
		}
		for i, keep := range verdicts {
			if keep {
				kept = append(kept, batch[i])
			}
		}
	}
	return kept, nil
}

func (g *Grader) gradeBatch(ctx context.Context, question string, batch []search.Result) ([]bool, error) {
	var blocks strings.Builder
	for i, doc := range batch {
		fmt.Fprintf(&blocks, "[DOC %d] (source: %s)\n%s\n\n", i+1, doc.Path, truncate(doc.Content, 1500))
	}

	prompt := fmt.Sprintf(gradePromptTemplate, question, blocks.String())
	response, err := g.client.Generate(ctx, prompt, llm.Options{
		Temperature: 0.0,
		NumPredict:  200,
	})
	if err != nil {
		return nil, err
	}

	verdicts, ok := parseVerdicts(response, len(batch))
	if !ok {
		g.logger.Warn("grader response unparseable, keeping batch",
			slog.Int("batch_size", len(batch)))
		verdicts = make([]bool, len(batch))
		for i := range verdicts {
			verdicts[i] = true
		}
	}
	return verdicts, nil
}

// parseVerdicts extracts per-document verdicts from a grading response.
// Three formats are accepted, tried in order:
//  1. a JSON array of booleans or verdict strings
//  2. "DOC N: RELEVANT" / "DOC N: NOT_RELEVANT" lines
//  3. bare RELEVANT / NOT_RELEVANT tokens in document order
//
// ok=false means none matched and the caller should keep everything.
func parseVerdicts(response string, n int) ([]bool, bool) {
	response = strings.TrimSpace(response)

	if verdicts, ok := parseJSONVerdicts(response, n); ok {
		return verdicts, true
	}
	if verdicts, ok := parseDocLines(response, n); ok {
		return verdicts, true
	}
	if verdicts, ok := parseBareTokens(response, n); ok {
		return verdicts, true
	}
	return nil, false
}

func parseJSONVerdicts(response string, n int) ([]bool, bool) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil, false
	}

	var raw []any
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil || len(raw) != n {
		return nil, false
	}

	verdicts := make([]bool, n)
	for i, v := range raw {
		switch val := v.(type) {
		case bool:
			verdicts[i] = val
		case string:
			verdicts[i] = isRelevantToken(val)
		default:
			return nil, false
		}
	}
	return verdicts, true
}

func parseDocLines(response string, n int) ([]bool, bool) {
	verdicts := make([]bool, n)
	found := make([]bool, n)
	count := 0

	for _, line := range strings.Split(response, "\n") {
		line = strings.ToUpper(strings.TrimSpace(line))
		var idx int
		var rest string
		if _, err := fmt.Sscanf(line, "DOC %d:%s", &idx, &rest); err != nil {
			// Tolerate "DOC 1 : VERDICT" and similar spacing.
			if _, err := fmt.Sscanf(line, "DOC %d :%s", &idx, &rest); err != nil {
				continue
			}
		}
		if idx < 1 || idx > n || found[idx-1] {
			continue
		}
		found[idx-1] = true
		verdicts[idx-1] = isRelevantToken(rest)
		count++
	}

	return verdicts, count == n
}

func parseBareTokens(response string, n int) ([]bool, bool) {
	upper := strings.ToUpper(response)
	fields := strings.FieldsFunc(upper, func(r rune) bool {
		return !(r == '_' || (r >= 'A' && r <= 'Z'))
	})

	var tokens []bool
	for _, f := range fields {
		switch f {
		case "RELEVANT":
			tokens = append(tokens, true)
		case "NOT_RELEVANT", "IRRELEVANT":
			tokens = append(tokens, false)
		}
	}
	if len(tokens) != n {
		return nil, false
	}
	return tokens, true
}

// isRelevantToken decides a single verdict string. "NOT_RELEVANT"
// contains "RELEVANT", so the negative check runs first.
func isRelevantToken(s string) bool {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if strings.Contains(upper, "NOT_RELEVANT") || strings.Contains(upper, "NOT RELEVANT") ||
		strings.Contains(upper, "IRRELEVANT") {
		return false
	}
	return strings.Contains(upper, "RELEVANT") || upper == "TRUE" || upper == "YES"
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
