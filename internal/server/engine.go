package server

import (
	"context"

	"github.com/filescout/filescout/internal/agent"
	"github.com/filescout/filescout/internal/engine"
	"github.com/filescout/filescout/internal/ingest"
	"github.com/filescout/filescout/internal/rag"
	"github.com/filescout/filescout/internal/ratelimit"
	"github.com/filescout/filescout/internal/search"
)

// Engine is what the HTTP layer needs from the application core.
// *engine.Engine satisfies it; tests substitute fakes.
type Engine interface {
	AddFolder(ctx context.Context, root string) (*ingest.FolderResult, error)
	AddFile(ctx context.Context, path string) (*ingest.Result, error)
	RemoveFile(ctx context.Context, path string) error
	Search(ctx context.Context, query string, k int) ([]search.Result, error)
	Ask(ctx context.Context, sessionID, question string) (*agent.Reply, string, error)
	AskRAG(ctx context.Context, sessionID, question string) (*rag.Answer, string, error)
	Health() (*engine.HealthReport, error)
	Stats() (*engine.StatsReport, error)
	WatchedFolders() []string
	PauseWorker()
	ResumeWorker()
	DeleteSession(ctx context.Context, id string) error
	Limiter() *ratelimit.Limiter
}

var _ Engine = (*engine.Engine)(nil)
