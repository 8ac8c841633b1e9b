package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filescout/filescout/internal/catalog"
	"github.com/filescout/filescout/internal/llm"
	"github.com/filescout/filescout/internal/search"
	"github.com/filescout/filescout/internal/session"
)

type fakeLLM struct {
	generateResponse string
	chatResponse     string
	err              error
	chatMessages     []llm.Message
}

var _ llm.Client = (*fakeLLM)(nil)

func (f *fakeLLM) Generate(_ context.Context, _ string, _ llm.Options) (string, error) {
	return f.generateResponse, f.err
}

func (f *fakeLLM) Chat(_ context.Context, msgs []llm.Message, _ llm.Options) (string, error) {
	f.chatMessages = msgs
	return f.chatResponse, f.err
}

func (f *fakeLLM) Available(_ context.Context) bool { return true }
func (f *fakeLLM) Model() string                    { return "fake" }

type fakeRetriever struct {
	results []search.Result
	err     error
	queries []string
}

func (f *fakeRetriever) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

func newTestAgent(t *testing.T) (*Agent, *fakeLLM, *fakeRetriever, *catalog.Catalog, session.Store) {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	client := &fakeLLM{}
	retriever := &fakeRetriever{}
	sessions := session.NewMemoryStore(0)
	return New(client, retriever, cat, sessions, nil), client, retriever, cat, sessions
}

func TestClassifyIntentHeuristics(t *testing.T) {
	a, client, _, _, _ := newTestAgent(t)
	client.generateResponse = "CHAT" // would be chat if the model were asked
	ctx := context.Background()

	tests := []string{
		"find my tax documents",
		"search for the meeting notes",
		"where is the config",
		"look for anything about kubernetes",
		"locate the deployment script",
		"any file about budgets",
		"open main.go please",
	}
	for _, q := range tests {
		assert.Equal(t, IntentSearch, a.ClassifyIntent(ctx, q), q)
	}
}

func TestClassifyIntentViaModel(t *testing.T) {
	a, client, _, _, _ := newTestAgent(t)
	ctx := context.Background()

	tests := []struct {
		response string
		want     Intent
	}{
		{"SEARCH", IntentSearch},
		{"READ", IntentRead},
		{"LIST", IntentList},
		{"MOVE", IntentMove},
		{"CHAT", IntentChat},
		{"The category is: list", IntentList},
		{"no idea", IntentChat},
	}
	for _, tt := range tests {
		client.generateResponse = tt.response
		assert.Equal(t, tt.want, a.ClassifyIntent(ctx, "hello there"), tt.response)
	}
}

func TestClassifyIntentModelErrorFallsBackToChat(t *testing.T) {
	a, client, _, _, _ := newTestAgent(t)
	client.err = assert.AnError

	assert.Equal(t, IntentChat, a.ClassifyIntent(context.Background(), "hello"))
}

func TestRespondSearch(t *testing.T) {
	a, _, retriever, _, _ := newTestAgent(t)
	retriever.results = []search.Result{
		{Path: "/docs/taxes.md", Summary: "Tax notes.", Score: 0.9},
	}

	reply, err := a.Respond(context.Background(), "", "find my tax documents")
	require.NoError(t, err)
	assert.Equal(t, IntentSearch, reply.Intent)
	assert.Contains(t, reply.Answer, "/docs/taxes.md")
	require.Len(t, reply.Sources, 1)
}

func TestRespondSearchNoResults(t *testing.T) {
	a, _, _, _, _ := newTestAgent(t)

	reply, err := a.Respond(context.Background(), "", "find nothing at all")
	require.NoError(t, err)
	assert.Equal(t, IntentSearch, reply.Intent)
	assert.Contains(t, reply.Answer, "No matching files")
}

func TestRespondRead(t *testing.T) {
	a, client, retriever, cat, _ := newTestAgent(t)
	client.generateResponse = "READ"

	require.NoError(t, cat.Upsert("/docs/readme.md", "hash", "the file body", catalog.StatusCompleted))
	retriever.results = []search.Result{{Path: "/docs/readme.md", Score: 0.9}}

	reply, err := a.Respond(context.Background(), "", "show me that readme")
	require.NoError(t, err)
	assert.Equal(t, IntentRead, reply.Intent)
	assert.Contains(t, reply.Answer, "the file body")
}

func TestRespondList(t *testing.T) {
	a, client, _, cat, _ := newTestAgent(t)
	client.generateResponse = "LIST"

	require.NoError(t, cat.Upsert("/a.txt", "h1", "one", catalog.StatusCompleted))
	require.NoError(t, cat.Upsert("/b.txt", "h2", "two", catalog.StatusPendingEmbedding))

	reply, err := a.Respond(context.Background(), "", "what do you have indexed")
	require.NoError(t, err)
	assert.Equal(t, IntentList, reply.Intent)
	assert.Contains(t, reply.Answer, "/a.txt")
	assert.Contains(t, reply.Answer, "/b.txt")
}

func TestRespondMoveIsGuarded(t *testing.T) {
	a, client, _, _, _ := newTestAgent(t)
	client.generateResponse = "MOVE"

	reply, err := a.Respond(context.Background(), "", "please rename everything")
	require.NoError(t, err)
	assert.Equal(t, IntentMove, reply.Intent)
	assert.Equal(t, MoveNotSupportedMessage, reply.Answer)
}

func TestRespondChatCarriesHistory(t *testing.T) {
	a, client, _, _, sessions := newTestAgent(t)
	client.generateResponse = "CHAT"
	client.chatResponse = "Hello again!"
	ctx := context.Background()

	id := session.NewID()
	require.NoError(t, sessions.Append(ctx, id,
		session.Message{Role: "user", Content: "earlier question"},
		session.Message{Role: "assistant", Content: "earlier answer"},
	))

	reply, err := a.Respond(ctx, id, "and now a follow-up")
	require.NoError(t, err)
	assert.Equal(t, IntentChat, reply.Intent)
	assert.Equal(t, "Hello again!", reply.Answer)

	// system + 2 history + current question
	require.Len(t, client.chatMessages, 4)
	assert.Equal(t, "system", client.chatMessages[0].Role)
	assert.Equal(t, "earlier question", client.chatMessages[1].Content)
	assert.Equal(t, "and now a follow-up", client.chatMessages[3].Content)
}

func TestRespondRecordsSessionTurn(t *testing.T) {
	a, _, retriever, _, sessions := newTestAgent(t)
	retriever.results = []search.Result{{Path: "/x.txt", Score: 0.5}}
	ctx := context.Background()

	id := session.NewID()
	_, err := a.Respond(ctx, id, "find something")
	require.NoError(t, err)

	sess, err := sessions.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "user", sess.Messages[0].Role)
	assert.Equal(t, "find something", sess.Messages[0].Content)
	assert.Equal(t, "assistant", sess.Messages[1].Role)
}

func TestRespondEmptyQuestion(t *testing.T) {
	a, _, _, _, _ := newTestAgent(t)
	_, err := a.Respond(context.Background(), "", "  ")
	assert.Error(t, err)
}
