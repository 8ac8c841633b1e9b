// Package ingest is the indexing pipeline. Adding a file registers it
// in the catalog and the keyword index synchronously, so it is keyword-
// searchable immediately; chunk embedding and summarization run later
// on the background worker, which calls back into this package.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/filescout/filescout/internal/catalog"
	"github.com/filescout/filescout/internal/chunk"
	"github.com/filescout/filescout/internal/embed"
	scouterr "github.com/filescout/filescout/internal/errors"
	"github.com/filescout/filescout/internal/llm"
	"github.com/filescout/filescout/internal/parser"
	"github.com/filescout/filescout/internal/store"
	"github.com/filescout/filescout/internal/watcher"
)

// summaryContentLimit caps how much file text the summary prompt sees.
const summaryContentLimit = 4000

const summaryPromptTemplate = `Summarize the following file in 2-3 sentences. Focus on what the file contains and what it is for. Do not repeat the file name.

File: %s

Content:
%s

Summary:`

// Result reports what IndexFile did with one path.
type Result struct {
	Path      string `json:"path"`
	Chunks    int    `json:"chunks"`
	Unchanged bool   `json:"unchanged"`
	// SummaryReused is set when identical content elsewhere in the
	// catalog already had a summary.
	SummaryReused bool `json:"summary_reused,omitempty"`
}

// FolderResult aggregates an IndexFolder run.
type FolderResult struct {
	Root      string `json:"root"`
	Scanned   int    `json:"scanned"`
	Indexed   int    `json:"indexed"`
	Unchanged int    `json:"unchanged"`
	Failed    int    `json:"failed"`
}

// Enqueuer hands deferred work to the background worker.
type Enqueuer interface {
	EnqueueEmbed(path string, chunkCount int)
	EnqueueSummary(path string)
}

// Pipeline wires parsing, the catalog, both indexes, and the model into
// the add/remove/embed/summarize operations. It implements worker.Jobs.
type Pipeline struct {
	parser   *parser.Parser
	splitter *chunk.Splitter
	scanner  *watcher.Scanner
	catalog  *catalog.Catalog
	embedder embed.Embedder
	vectors  *store.VectorIndex
	keywords *store.KeywordIndex
	client   llm.Client
	logger   *slog.Logger

	// keywordSnapshot, when set, is rewritten after every keyword index
	// mutation. Empty keeps the index memory-only.
	keywordSnapshot string

	queueMu sync.Mutex
	queue   Enqueuer

	mu       sync.Mutex
	inflight map[string]bool
}

// New creates the pipeline. Bind must be called with the worker before
// any indexing happens, since IndexFile enqueues follow-up work.
func New(
	p *parser.Parser,
	splitter *chunk.Splitter,
	scanner *watcher.Scanner,
	cat *catalog.Catalog,
	embedder embed.Embedder,
	vectors *store.VectorIndex,
	keywords *store.KeywordIndex,
	client llm.Client,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		parser:   p,
		splitter: splitter,
		scanner:  scanner,
		catalog:  cat,
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		client:   client,
		logger:   logger,
		inflight: make(map[string]bool),
	}
}

// Bind attaches the background queue. Separate from New because the
// worker needs the pipeline as its job executor.
func (p *Pipeline) Bind(queue Enqueuer) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	p.queue = queue
}

func (p *Pipeline) enqueuer() Enqueuer {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return p.queue
}

// PersistKeywords sets the file the keyword snapshot is written to
// after each index mutation. Call before indexing starts.
func (p *Pipeline) PersistKeywords(path string) {
	p.keywordSnapshot = path
}

// saveKeywords flushes the keyword snapshot. Failures are logged, not
// returned: the in-memory index is still correct and the next mutation
// retries the write.
func (p *Pipeline) saveKeywords() {
	if p.keywordSnapshot == "" {
		return
	}
	if err := p.keywords.Save(p.keywordSnapshot); err != nil {
		p.logger.Warn("failed to save keyword snapshot",
			slog.String("path", p.keywordSnapshot), slog.String("error", err.Error()))
	}
}

// IndexFile registers one file: parse, hash, store in the catalog,
// index its chunks for keyword search, and queue embedding. The file is
// keyword-searchable when IndexFile returns; vectors and the summary
// arrive from the background worker. Unchanged content is skipped;
// content identical to an already-summarized file inherits that summary
// and skips its own summary pass. Concurrent calls for the same path
// coalesce into one.
func (p *Pipeline) IndexFile(ctx context.Context, path string) (*Result, error) {
	path = filepath.Clean(path)

	if !p.acquire(path) {
		return &Result{Path: path, Unchanged: true}, nil
	}
	defer p.release(path)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := p.parser.Parse(path)
	if err != nil {
		return nil, err
	}

	hash := catalog.HashContent([]byte(content))
	needs, err := p.catalog.NeedsReindex(path, hash)
	if err != nil {
		return nil, err
	}
	if !needs {
		return &Result{Path: path, Unchanged: true}, nil
	}

	// Content-address dedup: another path with the same bytes may
	// already carry a summary worth reusing.
	var reusedSummary string
	if dup, err := p.catalog.GetByHash(hash); err == nil && dup.Path != path && dup.Summary != "" {
		reusedSummary = dup.Summary
	}

	chunks := p.splitter.Split(content)

	if err := p.catalog.Upsert(path, hash, content, catalog.StatusPendingEmbedding); err != nil {
		return nil, err
	}
	if reusedSummary != "" {
		if err := p.catalog.SetSummary(path, reusedSummary); err != nil {
			return nil, err
		}
	}

	// Replace keyword entries now; edits can shrink a file, so stale
	// chunks go first.
	if err := p.keywords.DeleteByPath(path); err != nil {
		return nil, err
	}
	ids := make([]string, len(chunks))
	metas := make([]store.ChunkMeta, len(chunks))
	for i, text := range chunks {
		ids[i] = chunk.ID(path, i)
		metas[i] = store.ChunkMeta{Path: path, Ordinal: i, Text: text, Summary: reusedSummary}
	}
	if err := p.keywords.IndexBatch(ids, chunks, metas); err != nil {
		return nil, err
	}
	p.saveKeywords()

	if q := p.enqueuer(); q != nil {
		q.EnqueueEmbed(path, len(chunks))
	}

	p.logger.Info("file registered for indexing",
		slog.String("path", path),
		slog.Int("chunks", len(chunks)),
		slog.Bool("summary_reused", reusedSummary != ""))

	return &Result{Path: path, Chunks: len(chunks), SummaryReused: reusedSummary != ""}, nil
}

// RemoveFile deletes a path from the catalog and both indexes. Removing
// an unknown path is a no-op.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.catalog.Delete(path); err != nil {
		return err
	}
	p.vectors.DeleteByPath(path)
	if err := p.keywords.DeleteByPath(path); err != nil {
		return err
	}
	p.saveKeywords()
	p.logger.Info("file removed from index", slog.String("path", path))
	return nil
}

// IndexFolder walks root and indexes every supported file in it.
// Per-file failures are logged and counted, not fatal.
func (p *Pipeline) IndexFolder(ctx context.Context, root string) (*FolderResult, error) {
	root = filepath.Clean(root)
	if !watcher.Exists(root) {
		return nil, scouterr.E(scouterr.KindNotFound, "ingest.IndexFolder",
			"folder not found: %s", root)
	}

	result := &FolderResult{Root: root}
	files, wait := p.scanner.Scan(ctx, root)
	for f := range files {
		result.Scanned++
		res, err := p.IndexFile(ctx, f.Path)
		switch {
		case err != nil:
			result.Failed++
			p.logger.Warn("skipping file",
				slog.String("path", f.Path), slog.String("error", err.Error()))
		case res.Unchanged:
			result.Unchanged++
		default:
			result.Indexed++
		}
	}
	if err := wait(); err != nil {
		return result, err
	}

	p.logger.Info("folder indexed",
		slog.String("root", root),
		slog.Int("scanned", result.Scanned),
		slog.Int("indexed", result.Indexed),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("failed", result.Failed))
	return result, nil
}

// Recover re-queues files whose processing was interrupted by a previous
// shutdown, preserving the pending status recorded in the catalog.
func (p *Pipeline) Recover() error {
	q := p.enqueuer()
	if q == nil {
		return scouterr.E(scouterr.KindInternal, "ingest.Recover", "no queue bound")
	}

	embedding, err := p.catalog.PendingEmbedding()
	if err != nil {
		return err
	}
	for _, path := range embedding {
		entry, err := p.catalog.Get(path)
		if err != nil {
			continue
		}
		q.EnqueueEmbed(path, len(p.splitter.Split(entry.Content)))
	}

	summaries, err := p.catalog.PendingSummary()
	if err != nil {
		return err
	}
	for _, path := range summaries {
		q.EnqueueSummary(path)
	}

	if len(embedding)+len(summaries) > 0 {
		p.logger.Info("recovered interrupted work",
			slog.Int("pending_embedding", len(embedding)),
			slog.Int("pending_summary", len(summaries)))
	}
	return nil
}

// EmbedFile chunks and embeds one registered file into both indexes,
// then advances its status. Called by the background worker.
func (p *Pipeline) EmbedFile(ctx context.Context, path string) error {
	entry, err := p.catalog.Get(path)
	if err != nil {
		if scouterr.IsKind(err, scouterr.KindNotFound) {
			// Removed while queued; nothing to do.
			return nil
		}
		return err
	}

	chunks := p.splitter.Split(entry.Content)
	if len(chunks) == 0 {
		return p.finishEmbedding(entry)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		// Status stays pending_embedding so Recover picks it up.
		return scouterr.Wrap(scouterr.KindEmbedding, "ingest.EmbedFile", err,
			fmt.Sprintf("embed %s", path))
	}

	// Drop stale vectors before inserting; edits can shrink a file.
	// Keyword entries were already replaced by IndexFile.
	p.vectors.DeleteByPath(path)

	ids := make([]string, len(chunks))
	metas := make([]store.ChunkMeta, len(chunks))
	for i, text := range chunks {
		ids[i] = chunk.ID(path, i)
		metas[i] = store.ChunkMeta{Path: path, Ordinal: i, Text: text, Summary: entry.Summary}
	}

	if err := p.vectors.AddBatch(ids, vectors, metas); err != nil {
		return err
	}

	p.logger.Debug("file embedded",
		slog.String("path", path), slog.Int("chunks", len(chunks)))
	return p.finishEmbedding(entry)
}

// finishEmbedding moves the file to its post-embedding status: completed
// when a summary already exists (dedup reuse), pending_summary plus a
// queued summary job otherwise.
func (p *Pipeline) finishEmbedding(entry *catalog.Entry) error {
	if entry.Summary != "" {
		return p.catalog.SetStatus(entry.Path, catalog.StatusCompleted)
	}
	if err := p.catalog.SetStatus(entry.Path, catalog.StatusPendingSummary); err != nil {
		return err
	}
	if q := p.enqueuer(); q != nil {
		q.EnqueueSummary(entry.Path)
	}
	return nil
}

// SummarizeFile generates and stores the 2-3 sentence file summary,
// completing the file's processing. Called by the background worker.
func (p *Pipeline) SummarizeFile(ctx context.Context, path string) error {
	entry, err := p.catalog.Get(path)
	if err != nil {
		if scouterr.IsKind(err, scouterr.KindNotFound) {
			return nil
		}
		return err
	}
	if entry.Summary != "" {
		if entry.Status == catalog.StatusPendingSummary {
			return p.catalog.SetStatus(path, catalog.StatusCompleted)
		}
		return nil
	}

	content := entry.Content
	if len(content) > summaryContentLimit {
		content = content[:summaryContentLimit]
	}

	prompt := fmt.Sprintf(summaryPromptTemplate, filepath.Base(path), content)
	summary, err := p.client.Generate(ctx, prompt, llm.Options{
		Temperature: 0.3,
		NumPredict:  150,
	})
	if err != nil {
		// Status stays pending_summary so Recover retries later.
		return err
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return scouterr.E(scouterr.KindModelRuntime, "ingest.SummarizeFile",
			"model returned empty summary for %s", path)
	}

	if err := p.catalog.SetSummary(path, summary); err != nil {
		return err
	}
	p.vectors.SetSummary(path, summary)
	p.keywords.SetSummary(path, summary)
	p.saveKeywords()

	p.logger.Debug("file summarized", slog.String("path", path))
	return nil
}

func (p *Pipeline) acquire(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[path] {
		return false
	}
	p.inflight[path] = true
	return true
}

func (p *Pipeline) release(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, path)
}
