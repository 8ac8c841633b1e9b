package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/natefinch/atomic"
)

// keywordDoc is one corpus entry. The corpus is the source of truth for
// persistence; the bleve memory index is rebuilt from it on load.
type keywordDoc struct {
	ID   string
	Text string
	Meta ChunkMeta
}

// keywordSnapshot is the gob-encoded on-disk form of the corpus.
type keywordSnapshot struct {
	Docs []keywordDoc
}

// KeywordIndex scores chunks with bleve's BM25-style ranking over an
// in-memory index. The corpus lives alongside the index so the whole
// thing persists as one atomic snapshot file.
type KeywordIndex struct {
	mu      sync.RWMutex
	index   bleve.Index
	docs    map[string]keywordDoc
	pathIDs map[string][]string

	logger *slog.Logger
	closed bool
}

// NewKeywordIndex creates an empty keyword index.
func NewKeywordIndex(logger *slog.Logger) (*KeywordIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	index, err := newMemIndex()
	if err != nil {
		return nil, err
	}
	return &KeywordIndex{
		index:   index,
		docs:    make(map[string]keywordDoc),
		pathIDs: make(map[string][]string),
		logger:  logger,
	}, nil
}

func newMemIndex() (bleve.Index, error) {
	mapping := bleve.NewIndexMapping()
	index, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create memory index: %w", err)
	}
	return index, nil
}

// Index adds or replaces one chunk.
func (k *KeywordIndex) Index(id, text string, meta ChunkMeta) error {
	return k.IndexBatch([]string{id}, []string{text}, []ChunkMeta{meta})
}

// IndexBatch adds or replaces chunks in one bleve batch.
func (k *KeywordIndex) IndexBatch(ids, texts []string, metas []ChunkMeta) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(texts) || len(ids) != len(metas) {
		return fmt.Errorf("ids, texts, metas length mismatch: %d, %d, %d",
			len(ids), len(texts), len(metas))
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := k.index.NewBatch()
	for i, id := range ids {
		if old, exists := k.docs[id]; exists {
			k.removePathID(old.Meta.Path, id)
		}
		doc := keywordDoc{ID: id, Text: texts[i], Meta: metas[i]}
		if err := batch.Index(id, map[string]any{"text": texts[i]}); err != nil {
			return fmt.Errorf("batch index %s: %w", id, err)
		}
		k.docs[id] = doc
		k.pathIDs[metas[i].Path] = append(k.pathIDs[metas[i].Path], id)
	}

	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	return nil
}

// Search returns up to limit chunks matching the query. Scores are raw
// bleve scores; only positive scores are returned and the caller
// normalizes by the per-query maximum.
func (k *KeywordIndex) Search(queryText string, limit int) ([]KeywordHit, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if queryText == "" || limit <= 0 || len(k.docs) == 0 {
		return nil, nil
	}

	query := bleve.NewMatchQuery(queryText)
	query.SetField("text")
	req := bleve.NewSearchRequest(query)
	req.Size = limit

	res, err := k.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]KeywordHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if hit.Score <= 0 {
			continue
		}
		doc, ok := k.docs[hit.ID]
		if !ok {
			continue
		}
		hits = append(hits, KeywordHit{ID: hit.ID, Meta: doc.Meta, Score: hit.Score})
	}
	return hits, nil
}

// DeleteByPath removes all chunks of a source path.
func (k *KeywordIndex) DeleteByPath(path string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := k.index.NewBatch()
	for _, id := range k.pathIDs[path] {
		batch.Delete(id)
		delete(k.docs, id)
	}
	delete(k.pathIDs, path)

	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("apply delete batch: %w", err)
	}
	return nil
}

// SetSummary updates the summary carried on every chunk of a path.
func (k *KeywordIndex) SetSummary(path, summary string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, id := range k.pathIDs[path] {
		doc := k.docs[id]
		doc.Meta.Summary = summary
		k.docs[id] = doc
	}
}

// Count returns the number of indexed chunks.
func (k *KeywordIndex) Count() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.docs)
}

// Save writes the corpus to a single atomic snapshot file.
func (k *KeywordIndex) Save(path string) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	snap := keywordSnapshot{Docs: make([]keywordDoc, 0, len(k.docs))}
	for _, doc := range k.docs {
		snap.Docs = append(snap.Docs, doc)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load restores the corpus from a snapshot and rebuilds the bleve memory
// index from it. Missing snapshots are fine; corrupt ones reset to empty
// with a warning.
func (k *KeywordIndex) Load(path string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer func() { _ = file.Close() }()

	var snap keywordSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		k.logger.Warn("keyword snapshot corrupt, starting empty",
			slog.String("path", path), slog.String("error", err.Error()))
		return k.resetLocked()
	}

	if err := k.resetLocked(); err != nil {
		return err
	}

	batch := k.index.NewBatch()
	for _, doc := range snap.Docs {
		if err := batch.Index(doc.ID, map[string]any{"text": doc.Text}); err != nil {
			return fmt.Errorf("rebuild index %s: %w", doc.ID, err)
		}
		k.docs[doc.ID] = doc
		k.pathIDs[doc.Meta.Path] = append(k.pathIDs[doc.Meta.Path], doc.ID)
	}
	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("apply rebuild batch: %w", err)
	}
	return nil
}

// Close closes the underlying bleve index.
func (k *KeywordIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.index.Close()
}

func (k *KeywordIndex) resetLocked() error {
	if err := k.index.Close(); err != nil {
		return fmt.Errorf("close old index: %w", err)
	}
	index, err := newMemIndex()
	if err != nil {
		return err
	}
	k.index = index
	k.docs = make(map[string]keywordDoc)
	k.pathIDs = make(map[string][]string)
	return nil
}

func (k *KeywordIndex) removePathID(path, id string) {
	ids := k.pathIDs[path]
	for i, existing := range ids {
		if existing == id {
			k.pathIDs[path] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}
