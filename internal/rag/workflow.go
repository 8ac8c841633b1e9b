package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	scouterr "github.com/filescout/filescout/internal/errors"
	"github.com/filescout/filescout/internal/health"
	"github.com/filescout/filescout/internal/llm"
	"github.com/filescout/filescout/internal/search"
)

// Workflow bounds.
const (
	// MaxAttempts caps query rewrites; with the initial query the loop
	// retrieves at most MaxAttempts+1 times.
	MaxAttempts = 3
	// retrieveLimit is how many documents each retrieval attempt fetches.
	retrieveLimit = 5
)

// NotFoundAnswer is returned when every attempt fails to surface
// relevant context.
const NotFoundAnswer = "I couldn't find relevant information in your indexed files to answer this question."

const generatePromptTemplate = `You are a helpful AI assistant. Answer the following question STRICTLY based on the provided context. If the context does not contain the answer, say so.

Context:
%s

Question: %s

Answer:`

// Source identifies a file that contributed to an answer.
type Source struct {
	Path    string  `json:"path"`
	Summary string  `json:"summary"`
	Score   float64 `json:"relevance_score"`
}

// Stats reports what the workflow did for one question. Attempts counts
// query rewrites, so a question answered from the first retrieval
// reports zero.
type Stats struct {
	Retrieved int `json:"retrieved"`
	Graded    int `json:"graded"`
	Attempts  int `json:"attempts"`
}

// Answer is the workflow output.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
	Stats   Stats    `json:"stats"`
}

// Retriever is the search dependency; *search.Hybrid satisfies it.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Workflow is the self-correcting RAG loop.
type Workflow struct {
	retriever   Retriever
	grader      *Grader
	transformer *Transformer
	client      llm.Client
	monitor     *health.Monitor
	logger      *slog.Logger
}

// NewWorkflow wires the workflow from its parts.
func NewWorkflow(retriever Retriever, client llm.Client, monitor *health.Monitor, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		retriever:   retriever,
		grader:      NewGrader(client, logger),
		transformer: NewTransformer(client, logger),
		client:      client,
		monitor:     monitor,
		logger:      logger,
	}
}

// Ask runs the loop: retrieve with the current query, grade against the
// original question, and either generate, rewrite and retry, or give up
// after MaxAttempts rewrites. Model failures degrade rather than abort:
// a failed grade keeps every candidate, a failed rewrite ends the loop,
// and a failed generation returns the candidate sources alongside the
// error so the caller can still show where the answer would have come
// from.
func (w *Workflow) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, scouterr.E(scouterr.KindInvalidInput, "rag.Ask", "empty question")
	}

	stats := Stats{}
	query := question

	if w.monitor != nil && !w.monitor.Allow() {
		// Grading and generation both need the model; retrieval does
		// not. Skip straight past grading and hand back the ungraded
		// candidates with the failure.
		docs, err := w.retriever.Search(ctx, query, retrieveLimit)
		if err != nil {
			return nil, err
		}
		stats.Retrieved = len(docs)
		return &Answer{Sources: sourcesOf(docs), Stats: stats},
			scouterr.E(scouterr.KindModelUnavailable, "rag.Ask",
				"model circuit open, try again later")
	}

	var relevant []search.Result
	for {
		docs, err := w.retriever.Search(ctx, query, retrieveLimit)
		if err != nil {
			return nil, err
		}
		stats.Retrieved += len(docs)

		kept, err := w.grader.Grade(ctx, question, docs)
		if err != nil {
			// A broken grader keeps every candidate rather than
			// failing the whole question.
			w.recordModelResult(err)
			w.logger.Warn("grading failed, keeping all candidates",
				slog.String("error", err.Error()))
			kept = docs
		}
		stats.Graded += len(docs)

		if len(kept) > 0 {
			relevant = kept
			break
		}
		if stats.Attempts >= MaxAttempts {
			break
		}

		rewritten, err := w.transformer.Transform(ctx, query)
		if err != nil {
			w.recordModelResult(err)
			break
		}
		stats.Attempts++
		if rewritten == query {
			// Dead end: the rewriter had nothing better.
			break
		}
		w.logger.Info("retrying retrieval with rewritten query",
			slog.Int("attempt", stats.Attempts), slog.String("query", rewritten))
		query = rewritten
	}

	if len(relevant) == 0 {
		return &Answer{Text: NotFoundAnswer, Sources: []Source{}, Stats: stats}, nil
	}

	text, err := w.generate(ctx, question, relevant)
	if err != nil {
		w.recordModelResult(err)
		return &Answer{Sources: sourcesOf(relevant), Stats: stats}, err
	}
	w.recordModelResult(nil)

	return &Answer{
		Text:    text,
		Sources: sourcesOf(relevant),
		Stats:   stats,
	}, nil
}

func (w *Workflow) generate(ctx context.Context, question string, docs []search.Result) (string, error) {
	var contextBlocks strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&contextBlocks, "[%d] %s\n%s\n\n", i+1, doc.Path, doc.Content)
	}

	prompt := fmt.Sprintf(generatePromptTemplate, contextBlocks.String(), question)
	return w.client.Generate(ctx, prompt, llm.Options{
		Temperature: 0.3,
		NumPredict:  500,
	})
}

func (w *Workflow) recordModelResult(err error) {
	if w.monitor == nil {
		return
	}
	if err == nil {
		w.monitor.RecordSuccess()
		return
	}
	if scouterr.IsKind(err, scouterr.KindModelUnavailable) || scouterr.IsKind(err, scouterr.KindModelRuntime) {
		w.monitor.RecordFailure(err)
	}
}

func sourcesOf(docs []search.Result) []Source {
	sources := make([]Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, Source{
			Path:    doc.Path,
			Summary: doc.Summary,
			Score:   doc.Score,
		})
	}
	return sources
}
