// Package agent routes free-form questions to the right capability:
// search, reading a file, listing the index, or plain chat. A cheap
// heuristic handles the obvious search phrasings; everything else asks
// the model to classify.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/filescout/filescout/internal/catalog"
	scouterr "github.com/filescout/filescout/internal/errors"
	"github.com/filescout/filescout/internal/llm"
	"github.com/filescout/filescout/internal/search"
	"github.com/filescout/filescout/internal/session"
)

// Intent is what the user is asking for.
type Intent string

const (
	IntentSearch Intent = "search"
	IntentRead   Intent = "read"
	IntentList   Intent = "list"
	IntentMove   Intent = "move"
	IntentChat   Intent = "chat"
)

// MoveNotSupportedMessage is the guarded refusal for move requests.
const MoveNotSupportedMessage = "Moving or renaming files is not supported. I can search, read, and list indexed files."

// searchTriggers are substrings that mark a question as a search without
// asking the model.
var searchTriggers = []string{
	"find", "search", "look for", "where is", "locate",
	"file about", "files about", "document about",
}

// fileExtPattern spots explicit file references like "notes.md".
var fileExtPattern = regexp.MustCompile(`\.[a-zA-Z0-9]{1,6}(\s|$|[?.,!])`)

const classifyPromptTemplate = `Classify the user message into exactly one category. Respond with only the category word.

Categories:
SEARCH - the user wants to find files or content
READ - the user wants to see the contents of a specific file
LIST - the user wants a listing of indexed files
MOVE - the user wants to move, rename, or delete files
CHAT - anything else

Message: %s

Category:`

// listLimit caps the list response.
const listLimit = 50

// readContentLimit caps how much file content a read reply includes.
const readContentLimit = 4000

const chatSystemPrompt = "You are a helpful assistant for a local file search tool. Answer concisely."

// Reply is the routed answer. Tool names the capability that produced
// it.
type Reply struct {
	Intent  Intent          `json:"intent"`
	Answer  string          `json:"answer"`
	Tool    string          `json:"tool_used"`
	Sources []search.Result `json:"sources,omitempty"`
}

// Tool names reported in replies.
const (
	ToolHybridSearch = "hybrid_search"
	ToolFileRead     = "file_read"
	ToolFileList     = "file_list"
	ToolNone         = "none"
	ToolChat         = "chat"
)

// Retriever is the search dependency; *search.Hybrid satisfies it.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Agent classifies and dispatches questions.
type Agent struct {
	client    llm.Client
	retriever Retriever
	catalog   *catalog.Catalog
	sessions  session.Store
	logger    *slog.Logger
}

// New creates an agent.
func New(client llm.Client, retriever Retriever, cat *catalog.Catalog, sessions session.Store, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		client:    client,
		retriever: retriever,
		catalog:   cat,
		sessions:  sessions,
		logger:    logger,
	}
}

// ClassifyIntent decides what the question asks for. The heuristic
// handles search phrasings locally; the model classifies the rest, with
// chat as the fallback when classification itself fails.
func (a *Agent) ClassifyIntent(ctx context.Context, question string) Intent {
	lower := strings.ToLower(question)
	for _, trigger := range searchTriggers {
		if strings.Contains(lower, trigger) {
			return IntentSearch
		}
	}
	if fileExtPattern.MatchString(question) {
		return IntentSearch
	}

	response, err := a.client.Generate(ctx, fmt.Sprintf(classifyPromptTemplate, question), llm.Options{
		Temperature: 0.0,
		NumPredict:  10,
	})
	if err != nil {
		a.logger.Warn("intent classification failed, defaulting to chat",
			slog.String("error", err.Error()))
		return IntentChat
	}
	return parseIntent(response)
}

func parseIntent(response string) Intent {
	upper := strings.ToUpper(response)
	for _, candidate := range []struct {
		token  string
		intent Intent
	}{
		{"SEARCH", IntentSearch},
		{"READ", IntentRead},
		{"LIST", IntentList},
		{"MOVE", IntentMove},
		{"CHAT", IntentChat},
	} {
		if strings.Contains(upper, candidate.token) {
			return candidate.intent
		}
	}
	return IntentChat
}

// Respond classifies the question, dispatches it, and records the
// exchange in the session.
func (a *Agent) Respond(ctx context.Context, sessionID, question string) (*Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, scouterr.E(scouterr.KindInvalidInput, "agent.Respond", "empty question")
	}

	intent := a.ClassifyIntent(ctx, question)
	a.logger.Debug("question classified",
		slog.String("intent", string(intent)), slog.String("session", sessionID))

	var reply *Reply
	var err error
	switch intent {
	case IntentSearch:
		reply, err = a.respondSearch(ctx, question)
	case IntentRead:
		reply, err = a.respondRead(ctx, question)
	case IntentList:
		reply, err = a.respondList()
	case IntentMove:
		reply = &Reply{Intent: IntentMove, Answer: MoveNotSupportedMessage, Tool: ToolNone}
	default:
		reply, err = a.respondChat(ctx, sessionID, question)
	}
	if err != nil {
		return nil, err
	}

	if a.sessions != nil && sessionID != "" {
		now := time.Now()
		if err := a.sessions.Append(ctx, sessionID,
			session.Message{Role: "user", Content: question, Timestamp: now},
			session.Message{Role: "assistant", Content: reply.Answer, Timestamp: now},
		); err != nil {
			a.logger.Warn("failed to record session turn", slog.String("error", err.Error()))
		}
	}
	return reply, nil
}

func (a *Agent) respondSearch(ctx context.Context, question string) (*Reply, error) {
	results, err := a.retriever.Search(ctx, question, search.DefaultLimit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Reply{Intent: IntentSearch, Answer: "No matching files found.", Tool: ToolHybridSearch}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching file(s):\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%.2f) %s\n", i+1, r.Path, r.Score, r.Summary)
	}
	return &Reply{Intent: IntentSearch, Answer: b.String(), Tool: ToolHybridSearch, Sources: results}, nil
}

func (a *Agent) respondRead(ctx context.Context, question string) (*Reply, error) {
	results, err := a.retriever.Search(ctx, question, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Reply{Intent: IntentRead, Answer: "No matching file found to read.", Tool: ToolFileRead}, nil
	}

	entry, err := a.catalog.Get(results[0].Path)
	if err != nil {
		return nil, err
	}
	content := entry.Content
	if len(content) > readContentLimit {
		content = content[:readContentLimit] + "\n... (truncated)"
	}
	return &Reply{
		Intent:  IntentRead,
		Answer:  fmt.Sprintf("Contents of %s:\n\n%s", filepath.Base(entry.Path), content),
		Tool:    ToolFileRead,
		Sources: results[:1],
	}, nil
}

func (a *Agent) respondList() (*Reply, error) {
	entries, err := a.catalog.All()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &Reply{Intent: IntentList, Answer: "No files are indexed yet.", Tool: ToolFileList}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d indexed file(s):\n", len(entries))
	for i, e := range entries {
		if i == listLimit {
			fmt.Fprintf(&b, "... and %d more\n", len(entries)-listLimit)
			break
		}
		fmt.Fprintf(&b, "- %s [%s]\n", e.Path, e.Status)
	}
	return &Reply{Intent: IntentList, Answer: b.String(), Tool: ToolFileList}, nil
}

func (a *Agent) respondChat(ctx context.Context, sessionID, question string) (*Reply, error) {
	messages := []llm.Message{{Role: "system", Content: chatSystemPrompt}}

	if a.sessions != nil && sessionID != "" {
		if sess, err := a.sessions.Get(ctx, sessionID); err == nil {
			for _, m := range sess.Messages {
				messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
			}
		}
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})

	answer, err := a.client.Chat(ctx, messages, llm.Options{
		Temperature: 0.7,
		NumPredict:  500,
	})
	if err != nil {
		return nil, err
	}
	return &Reply{Intent: IntentChat, Answer: strings.TrimSpace(answer), Tool: ToolChat}, nil
}
