package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scouterr "github.com/filescout/filescout/internal/errors"
	"github.com/filescout/filescout/internal/health"
	"github.com/filescout/filescout/internal/search"
)

// fakeRetriever records the queries it saw and returns canned results
// per call.
type fakeRetriever struct {
	queries []string
	results [][]search.Result
}

func (f *fakeRetriever) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	i := len(f.queries) - 1
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, nil
}

func TestAskAnswersOnFirstAttempt(t *testing.T) {
	retriever := &fakeRetriever{results: [][]search.Result{
		{{Path: "/notes.md", Content: "chunking splits text", Summary: "Chunking notes.", Score: 0.8}},
	}}
	client := &scriptedClient{responses: []string{
		"DOC 1: RELEVANT",
		"Chunking splits text into overlapping windows.",
	}}
	w := NewWorkflow(retriever, client, nil, nil)

	answer, err := w.Ask(context.Background(), "how does chunking work")
	require.NoError(t, err)
	assert.Equal(t, "Chunking splits text into overlapping windows.", answer.Text)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "/notes.md", answer.Sources[0].Path)
	assert.Equal(t, 0, answer.Stats.Attempts, "no rewrite was needed")
	assert.Equal(t, 1, answer.Stats.Retrieved)
	assert.Equal(t, 1, answer.Stats.Graded)
}

func TestAskRewritesAndRetries(t *testing.T) {
	retriever := &fakeRetriever{results: [][]search.Result{
		{{Path: "/junk.txt", Content: "nothing useful"}},
		{{Path: "/sort.cpp", Content: "merge sort implementation"}},
	}}
	client := &scriptedClient{responses: []string{
		"DOC 1: NOT_RELEVANT",                 // grade attempt 1
		"merge sort algorithm implementation", // transform
		"DOC 1: RELEVANT",                     // grade attempt 2
		"It implements merge sort.",           // generate
	}}
	w := NewWorkflow(retriever, client, nil, nil)

	answer, err := w.Ask(context.Background(), "find the sorting thing")
	require.NoError(t, err)
	assert.Equal(t, "It implements merge sort.", answer.Text)
	assert.Equal(t, 1, answer.Stats.Attempts, "one rewrite")

	require.Len(t, retriever.queries, 2)
	assert.Equal(t, "find the sorting thing", retriever.queries[0])
	assert.Equal(t, "merge sort algorithm implementation", retriever.queries[1])

	// Grading runs against the original question, not the rewrite.
	assert.Contains(t, client.prompts[2], "find the sorting thing")
}

func TestAskGivesUpAfterMaxRewrites(t *testing.T) {
	retriever := &fakeRetriever{results: [][]search.Result{
		{{Path: "/a.txt", Content: "w"}},
		{{Path: "/b.txt", Content: "x"}},
		{{Path: "/c.txt", Content: "y"}},
		{{Path: "/d.txt", Content: "z"}},
	}}
	client := &scriptedClient{responses: []string{
		"DOC 1: NOT_RELEVANT", // grade 1
		"rewrite one",         // transform 1
		"DOC 1: NOT_RELEVANT", // grade 2
		"rewrite two",         // transform 2
		"DOC 1: NOT_RELEVANT", // grade 3
		"rewrite three",       // transform 3
		"DOC 1: NOT_RELEVANT", // grade 4
	}}
	w := NewWorkflow(retriever, client, nil, nil)

	answer, err := w.Ask(context.Background(), "unanswerable question")
	require.NoError(t, err)
	assert.Equal(t, NotFoundAnswer, answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, MaxAttempts, answer.Stats.Attempts)
	require.Len(t, retriever.queries, 4, "initial retrieval plus one per rewrite")
	assert.Equal(t, 7, client.calls, "no generate call after giving up")
}

func TestAskUnchangedRewriteIsDeadEnd(t *testing.T) {
	retriever := &fakeRetriever{results: [][]search.Result{
		{{Path: "/a.txt", Content: "x"}},
	}}
	client := &scriptedClient{responses: []string{
		"DOC 1: NOT_RELEVANT", // grade 1
		"stuck question",      // transform echoes the query
	}}
	w := NewWorkflow(retriever, client, nil, nil)

	answer, err := w.Ask(context.Background(), "stuck question")
	require.NoError(t, err)
	assert.Equal(t, NotFoundAnswer, answer.Text)
	assert.Equal(t, 1, answer.Stats.Attempts, "the dead-end rewrite still counts")
	require.Len(t, retriever.queries, 1, "no second retrieval after a dead-end rewrite")
}

func TestAskEmptyRetrievalFallsThrough(t *testing.T) {
	retriever := &fakeRetriever{}
	client := &scriptedClient{responses: []string{
		"rewrite one",
		"rewrite two",
		"rewrite three",
	}}
	w := NewWorkflow(retriever, client, nil, nil)

	answer, err := w.Ask(context.Background(), "question with empty index")
	require.NoError(t, err)
	assert.Equal(t, NotFoundAnswer, answer.Text)
	assert.Equal(t, 0, answer.Stats.Retrieved)
	assert.Equal(t, MaxAttempts, answer.Stats.Attempts)
	require.Len(t, retriever.queries, 4)
}

func TestAskKeepsCandidatesWhenGraderFails(t *testing.T) {
	monitor := health.NewMonitor()
	retriever := &fakeRetriever{results: [][]search.Result{
		{{Path: "/a.txt", Content: "useful text", Score: 0.7}},
	}}
	client := &scriptedClient{
		errs:      []error{scouterr.E(scouterr.KindModelRuntime, "test", "grader down")},
		responses: []string{"", "answer built from ungraded context"},
	}
	w := NewWorkflow(retriever, client, monitor, nil)

	answer, err := w.Ask(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "answer built from ungraded context", answer.Text)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "/a.txt", answer.Sources[0].Path)
	assert.Equal(t, 1, answer.Stats.Graded)
}

func TestAskGeneratorFailureCarriesSources(t *testing.T) {
	retriever := &fakeRetriever{results: [][]search.Result{
		{{Path: "/a.txt", Content: "useful text", Score: 0.7}},
	}}
	client := &scriptedClient{
		responses: []string{"DOC 1: RELEVANT"},
		errs:      []error{nil, scouterr.E(scouterr.KindModelRuntime, "test", "generation failed")},
	}
	w := NewWorkflow(retriever, client, nil, nil)

	answer, err := w.Ask(context.Background(), "question")
	require.Error(t, err)
	assert.True(t, scouterr.IsKind(err, scouterr.KindModelRuntime))
	require.NotNil(t, answer, "failed generation still reports its sources")
	assert.Empty(t, answer.Text)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "/a.txt", answer.Sources[0].Path)
}

func TestAskCircuitOpenSkipsGradingKeepsSources(t *testing.T) {
	monitor := health.NewMonitor(health.WithOpenThreshold(1))
	monitor.RecordFailure(scouterr.E(scouterr.KindModelRuntime, "test", "down"))

	retriever := &fakeRetriever{results: [][]search.Result{
		{{Path: "/a.txt", Content: "candidate text", Score: 0.6}},
	}}
	client := &scriptedClient{}
	w := NewWorkflow(retriever, client, monitor, nil)

	answer, err := w.Ask(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, scouterr.IsKind(err, scouterr.KindModelUnavailable))
	require.NotNil(t, answer)
	assert.Empty(t, answer.Text)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "/a.txt", answer.Sources[0].Path)
	assert.Equal(t, 1, answer.Stats.Retrieved)
	assert.Equal(t, 0, answer.Stats.Graded)
	assert.Equal(t, 0, client.calls, "no model call with the circuit open")
}

func TestAskEmptyQuestion(t *testing.T) {
	w := NewWorkflow(&fakeRetriever{}, &scriptedClient{}, nil, nil)
	_, err := w.Ask(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, scouterr.IsKind(err, scouterr.KindInvalidInput))
}

func TestAskRecordsModelFailure(t *testing.T) {
	monitor := health.NewMonitor()
	retriever := &fakeRetriever{results: [][]search.Result{
		{{Path: "/a.txt", Content: "x"}},
	}}
	client := &scriptedClient{errs: []error{
		scouterr.E(scouterr.KindModelRuntime, "test", "grader blew up"),
		scouterr.E(scouterr.KindModelRuntime, "test", "generator blew up"),
	}}
	w := NewWorkflow(retriever, client, monitor, nil)

	answer, err := w.Ask(context.Background(), "question")
	require.Error(t, err)
	require.NotNil(t, answer)
	assert.Equal(t, 2, monitor.Snapshot().ConsecutiveFailures)
}
