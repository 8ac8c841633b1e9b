// Package engine assembles the full system: catalog, indexes,
// embedders, model client, background worker, watchers, retrieval, RAG,
// sessions, rate limiting, and the agent. One Engine owns one data
// directory, guarded by a cross-process lock.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/filescout/filescout/internal/agent"
	"github.com/filescout/filescout/internal/catalog"
	"github.com/filescout/filescout/internal/chunk"
	"github.com/filescout/filescout/internal/config"
	"github.com/filescout/filescout/internal/embed"
	scouterr "github.com/filescout/filescout/internal/errors"
	"github.com/filescout/filescout/internal/health"
	"github.com/filescout/filescout/internal/ingest"
	"github.com/filescout/filescout/internal/llm"
	"github.com/filescout/filescout/internal/parser"
	"github.com/filescout/filescout/internal/rag"
	"github.com/filescout/filescout/internal/ratelimit"
	"github.com/filescout/filescout/internal/search"
	"github.com/filescout/filescout/internal/session"
	"github.com/filescout/filescout/internal/store"
	"github.com/filescout/filescout/internal/watcher"
	"github.com/filescout/filescout/internal/worker"
)

// snapshotInterval is how often index snapshots are flushed to disk
// between shutdowns.
const snapshotInterval = 5 * time.Minute

// HealthReport is the /health payload.
type HealthReport struct {
	Status  string          `json:"status"`
	Model   string          `json:"model"`
	Circuit health.Snapshot `json:"circuit"`
	Index   IndexReport     `json:"index"`
}

// IndexReport summarizes index contents.
type IndexReport struct {
	Files   int `json:"files"`
	Chunks  int `json:"chunks"`
	Pending int `json:"pending"`
}

// StatsReport is the /stats payload.
type StatsReport struct {
	Catalog catalog.Stats `json:"catalog"`
	Chunks  int           `json:"chunks"`
	Worker  worker.Stats  `json:"worker"`
}

// Engine owns every component and their lifecycles.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger
	lock   *flock.Flock

	catalog  *catalog.Catalog
	vectors  *store.VectorIndex
	keywords *store.KeywordIndex
	embedder embed.Embedder
	client   *llm.OllamaClient
	monitor  *health.Monitor
	prober   *health.Prober
	worker   *worker.Worker
	pipeline *ingest.Pipeline
	hybrid   *search.Hybrid
	workflow *rag.Workflow
	sessions session.Store
	sweeper  *session.Sweeper
	limiter  *ratelimit.Limiter
	agent    *agent.Agent

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	watchers map[string]*watcher.Watcher
	closed   bool
}

// New builds and starts an engine from config. The returned engine is
// serving: worker, prober, sweeper, and limiter trim are running.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, "engine.New", err, "acquire data dir lock")
	}
	if !locked {
		return nil, scouterr.E(scouterr.KindStorage, "engine.New",
			"data directory %s is in use by another instance", cfg.DataDir)
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		lock:     lock,
		watchers: make(map[string]*watcher.Watcher),
	}
	if err := e.build(ctx); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	e.start(ctx)
	return e, nil
}

func (e *Engine) build(ctx context.Context) error {
	cfg := e.cfg

	cat, err := catalog.Open(cfg.CatalogPath())
	if err != nil {
		return err
	}
	e.catalog = cat

	e.client = llm.NewOllamaClient(llm.Config{
		Host:          cfg.Ollama.Host,
		Model:         cfg.Ollama.ChatModel,
		HealthTimeout: cfg.Ollama.HealthTimeout,
	})
	e.monitor = health.NewMonitor()
	e.prober = health.NewProber(e.monitor, e.client, cfg.Ollama.HealthInterval, e.logger)

	e.embedder = e.buildEmbedder(ctx)

	e.vectors = store.NewVectorIndex(store.VectorConfig{Dimensions: e.embedder.Dimensions()}, e.logger)
	if err := e.vectors.Load(cfg.VectorSnapshotPath()); err != nil {
		return scouterr.Wrap(scouterr.KindStorage, "engine.build", err, "load vector snapshot")
	}

	keywords, err := store.NewKeywordIndex(e.logger)
	if err != nil {
		return scouterr.Wrap(scouterr.KindStorage, "engine.build", err, "create keyword index")
	}
	if err := keywords.Load(cfg.KeywordSnapshotPath()); err != nil {
		return scouterr.Wrap(scouterr.KindStorage, "engine.build", err, "load keyword snapshot")
	}
	e.keywords = keywords

	e.pipeline = ingest.New(
		parser.New(cfg.Index.MaxFileSize),
		chunk.NewSplitter(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap),
		watcher.NewScanner(cfg.Index.MaxFileSize),
		cat, e.embedder, e.vectors, e.keywords, e.client, e.logger,
	)
	e.pipeline.PersistKeywords(cfg.KeywordSnapshotPath())
	e.worker = worker.New(e.pipeline, cfg.Index.EmbedBatch, e.logger)
	e.pipeline.Bind(e.worker)

	e.hybrid = search.NewHybrid(e.embedder, e.vectors, e.keywords, e.logger)
	e.workflow = rag.NewWorkflow(e.hybrid, e.client, e.monitor, e.logger)

	if cfg.Session.Storage == "sqlite" {
		e.sessions, err = session.NewSQLiteStore(cfg.SessionDBPath(), cfg.Session.MaxMessages)
		if err != nil {
			return err
		}
	} else {
		e.sessions = session.NewMemoryStore(cfg.Session.MaxMessages)
	}
	e.sweeper = session.NewSweeper(e.sessions, cfg.Session.TTL, cfg.Session.SweepEvery, e.logger)

	e.limiter, err = ratelimit.New(nil, "")
	if err != nil {
		return err
	}

	e.agent = agent.New(e.client, e.hybrid, cat, e.sessions, e.logger)
	return nil
}

// buildEmbedder prefers the Ollama embedder and falls back to the
// deterministic hash embedder when the endpoint is down at startup, so
// indexing keeps working offline.
func (e *Engine) buildEmbedder(ctx context.Context) embed.Embedder {
	ollama := embed.NewOllamaEmbedder(embed.OllamaConfig{
		Host:  e.cfg.Ollama.Host,
		Model: e.cfg.Ollama.EmbedModel,
	})
	if ollama.Available(ctx) {
		return embed.NewCachedEmbedder(ollama, 0)
	}

	e.logger.Warn("ollama embedding endpoint unavailable, using static embedder",
		slog.String("host", e.cfg.Ollama.Host))
	_ = ollama.Close()
	return embed.NewCachedEmbedder(embed.NewStaticEmbedder(), 0)
}

func (e *Engine) start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.worker.Start(runCtx)
	e.prober.Start(runCtx)
	e.sweeper.Start(runCtx)
	e.limiter.Start(0)

	if err := e.pipeline.Recover(); err != nil {
		e.logger.Warn("failed to recover pending work", slog.String("error", err.Error()))
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				e.saveSnapshots()
			}
		}
	}()
}

// AddFolder indexes a directory tree and starts watching it for
// changes.
func (e *Engine) AddFolder(ctx context.Context, root string) (*ingest.FolderResult, error) {
	result, err := e.pipeline.IndexFolder(ctx, root)
	if err != nil {
		return nil, err
	}
	if err := e.watchFolder(ctx, root); err != nil {
		e.logger.Warn("folder indexed but not watched",
			slog.String("root", root), slog.String("error", err.Error()))
	}
	return result, nil
}

func (e *Engine) watchFolder(ctx context.Context, root string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return scouterr.E(scouterr.KindInternal, "engine.watchFolder", "engine is closed")
	}
	if _, exists := e.watchers[root]; exists {
		return nil
	}

	w := watcher.New(watcher.Options{}, e.logger)
	if err := w.Start(ctx, root); err != nil {
		return err
	}
	e.watchers[root] = w

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.consumeEvents(ctx, w)
	}()
	return nil
}

// consumeEvents feeds watcher events into the pipeline until the
// watcher's channels close.
func (e *Engine) consumeEvents(ctx context.Context, w *watcher.Watcher) {
	errs := w.Errors()
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if ev.IsDir {
				continue
			}
			e.handleEvent(ctx, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			e.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev watcher.FileEvent) {
	switch ev.Operation {
	case watcher.OpDelete:
		if err := e.pipeline.RemoveFile(ctx, ev.Path); err != nil {
			e.logger.Warn("failed to remove deleted file",
				slog.String("path", ev.Path), slog.String("error", err.Error()))
		}
	default:
		if _, err := e.pipeline.IndexFile(ctx, ev.Path); err != nil {
			if scouterr.IsKind(err, scouterr.KindUnsupported) || scouterr.IsKind(err, scouterr.KindTooLarge) {
				return
			}
			e.logger.Warn("failed to index changed file",
				slog.String("path", ev.Path), slog.String("error", err.Error()))
		}
	}
}

// AddFile indexes a single file.
func (e *Engine) AddFile(ctx context.Context, path string) (*ingest.Result, error) {
	return e.pipeline.IndexFile(ctx, path)
}

// RemoveFile removes a file from the catalog and indexes.
func (e *Engine) RemoveFile(ctx context.Context, path string) error {
	return e.pipeline.RemoveFile(ctx, path)
}

// Search runs hybrid retrieval and annotates each hit with the file's
// processing status from the catalog. Hits still waiting on their
// summary get nudged back onto the worker, so files surfaced by search
// finish processing sooner.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]search.Result, error) {
	results, err := e.hybrid.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	for i := range results {
		entry, err := e.catalog.Get(results[i].Path)
		if err != nil {
			continue
		}
		results[i].Status = entry.Status
		if entry.Status == catalog.StatusPendingSummary {
			e.worker.EnqueueSummary(results[i].Path)
		}
	}
	return results, nil
}

// WatchedFolders lists the directory roots currently being watched.
func (e *Engine) WatchedFolders() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	roots := make([]string, 0, len(e.watchers))
	for root := range e.watchers {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// Ask answers a question through intent routing. A session is created
// when the caller passes an empty ID; the used ID is returned.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (*agent.Reply, string, error) {
	if sessionID == "" {
		sessionID = session.NewID()
	}
	reply, err := e.agent.Respond(ctx, sessionID, question)
	if err != nil {
		return nil, sessionID, err
	}
	return reply, sessionID, nil
}

// AskRAG answers a question through the self-correcting RAG workflow
// and records the exchange in the session. On model failure the answer
// may be non-nil alongside the error, carrying the candidate sources.
func (e *Engine) AskRAG(ctx context.Context, sessionID, question string) (*rag.Answer, string, error) {
	if sessionID == "" {
		sessionID = session.NewID()
	}
	answer, err := e.workflow.Ask(ctx, question)
	if err != nil {
		return answer, sessionID, err
	}

	now := time.Now()
	if err := e.sessions.Append(ctx, sessionID,
		session.Message{Role: "user", Content: question, Timestamp: now},
		session.Message{Role: "assistant", Content: answer.Text, Timestamp: now},
	); err != nil {
		e.logger.Warn("failed to record session turn", slog.String("error", err.Error()))
	}
	return answer, sessionID, nil
}

// DeleteSession removes a conversation history.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	return e.sessions.Delete(ctx, id)
}

// PauseWorker stops background processing after the current job.
func (e *Engine) PauseWorker() { e.worker.Pause() }

// ResumeWorker continues background processing.
func (e *Engine) ResumeWorker() { e.worker.Resume() }

// WorkerStats returns queue depths.
func (e *Engine) WorkerStats() worker.Stats { return e.worker.Stats() }

// Limiter exposes the rate limiter for HTTP middleware.
func (e *Engine) Limiter() *ratelimit.Limiter { return e.limiter }

// Model returns the configured chat model name.
func (e *Engine) Model() string { return e.client.Model() }

// Health builds the /health payload.
func (e *Engine) Health() (*HealthReport, error) {
	stats, err := e.catalog.Stats()
	if err != nil {
		return nil, err
	}
	snap := e.monitor.Snapshot()
	return &HealthReport{
		Status:  e.monitor.State().String(),
		Model:   e.client.Model(),
		Circuit: snap,
		Index: IndexReport{
			Files:   stats.TotalFiles,
			Chunks:  e.vectors.Count(),
			Pending: stats.PendingEmbedding + stats.PendingSummary,
		},
	}, nil
}

// Stats builds the /stats payload.
func (e *Engine) Stats() (*StatsReport, error) {
	stats, err := e.catalog.Stats()
	if err != nil {
		return nil, err
	}
	return &StatsReport{
		Catalog: stats,
		Chunks:  e.vectors.Count(),
		Worker:  e.worker.Stats(),
	}, nil
}

func (e *Engine) saveSnapshots() {
	if err := e.vectors.Save(e.cfg.VectorSnapshotPath()); err != nil {
		e.logger.Warn("failed to save vector snapshot", slog.String("error", err.Error()))
	}
	if err := e.keywords.Save(e.cfg.KeywordSnapshotPath()); err != nil {
		e.logger.Warn("failed to save keyword snapshot", slog.String("error", err.Error()))
	}
}

// Close stops every background loop, flushes snapshots, and releases
// the data directory. Safe to call once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	watchers := e.watchers
	e.watchers = nil
	e.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	e.worker.Stop()
	e.prober.Stop()
	e.sweeper.Stop()
	e.limiter.Stop()
	e.cancel()
	e.wg.Wait()

	e.saveSnapshots()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(e.sessions.Close())
	record(e.keywords.Close())
	record(e.vectors.Close())
	record(e.embedder.Close())
	record(e.client.Close())
	record(e.catalog.Close())
	record(e.lock.Unlock())

	if firstErr != nil {
		return fmt.Errorf("engine close: %w", firstErr)
	}
	return nil
}
