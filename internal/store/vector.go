package store

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	"github.com/natefinch/atomic"
)

// VectorIndex stores chunk embeddings in an HNSW graph with cosine
// distance. String chunk IDs map to internal uint64 keys; deletion is
// lazy (mappings removed, graph nodes orphaned) because removing the
// last graph node corrupts coder/hnsw graphs.
type VectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	meta    map[string]ChunkMeta // chunk ID -> metadata
	pathIDs map[string][]string  // source path -> chunk IDs

	logger *slog.Logger
	closed bool
}

// vectorSnapshotMeta is the gob sidecar persisted next to the graph.
type vectorSnapshotMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorConfig
	Meta    map[string]ChunkMeta
	PathIDs map[string][]string
}

// NewVectorIndex creates an empty vector index.
func NewVectorIndex(cfg VectorConfig, logger *slog.Logger) *VectorIndex {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorIndex{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		meta:    make(map[string]ChunkMeta),
		pathIDs: make(map[string][]string),
		logger:  logger,
	}
}

// Add inserts or replaces one chunk embedding.
func (s *VectorIndex) Add(id string, vector []float32, meta ChunkMeta) error {
	return s.AddBatch([]string{id}, [][]float32{vector}, []ChunkMeta{meta})
}

// AddBatch inserts chunk embeddings. Existing IDs are replaced via lazy
// deletion of the old node.
func (s *VectorIndex) AddBatch(ids []string, vectors [][]float32, metas []ChunkMeta) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) || len(ids) != len(metas) {
		return fmt.Errorf("ids, vectors, metas length mismatch: %d, %d, %d",
			len(ids), len(vectors), len(metas))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	if s.config.Dimensions == 0 && len(vectors[0]) > 0 {
		// First insert fixes the dimensionality.
		s.config.Dimensions = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
			s.removePathID(metas[i].Path, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
		s.meta[id] = metas[i]
		s.pathIDs[metas[i].Path] = append(s.pathIDs[metas[i].Path], id)
	}

	return nil
}

// Search returns the k nearest chunks to the query vector, scored as
// cosine similarity mapped to [0,1].
func (s *VectorIndex) Search(query []float32, k int) ([]VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if s.graph.Len() == 0 || k <= 0 {
		return nil, nil
	}
	if s.config.Dimensions != 0 && len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	// Overfetch to compensate for lazily deleted orphans.
	nodes := s.graph.Search(normalized, k+s.orphanBudget())

	hits := make([]VectorHit, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // orphaned by lazy deletion
		}
		distance := s.graph.Distance(normalized, node.Value)
		hits = append(hits, VectorHit{
			ID:    id,
			Meta:  s.meta[id],
			Score: 1.0 - distance/2.0,
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// orphanBudget sizes search overfetch by the number of orphaned graph
// nodes, capped so deletion storms don't explode search cost.
func (s *VectorIndex) orphanBudget() int {
	orphans := s.graph.Len() - len(s.idMap)
	if orphans < 0 {
		orphans = 0
	}
	if orphans > 64 {
		orphans = 64
	}
	return orphans
}

// DeleteByPath removes all chunks belonging to a source path.
func (s *VectorIndex) DeleteByPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.pathIDs[path] {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
		delete(s.meta, id)
	}
	delete(s.pathIDs, path)
}

// SetSummary updates the summary on every chunk of a path so later
// search hits carry it.
func (s *VectorIndex) SetSummary(path, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.pathIDs[path] {
		m := s.meta[id]
		m.Summary = summary
		s.meta[id] = m
	}
}

// Count returns the number of live chunks.
func (s *VectorIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Dimensions returns the configured dimensionality (0 until first insert).
func (s *VectorIndex) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Dimensions
}

// Save persists the graph and its sidecar metadata atomically.
func (s *VectorIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	var graphBuf bytes.Buffer
	if err := s.graph.Export(&graphBuf); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	if err := atomic.WriteFile(path, &graphBuf); err != nil {
		return fmt.Errorf("write graph snapshot: %w", err)
	}

	var metaBuf bytes.Buffer
	meta := vectorSnapshotMeta{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
		Meta:    s.meta,
		PathIDs: s.pathIDs,
	}
	if err := gob.NewEncoder(&metaBuf).Encode(meta); err != nil {
		return fmt.Errorf("encode snapshot metadata: %w", err)
	}
	if err := atomic.WriteFile(path+".meta", &metaBuf); err != nil {
		return fmt.Errorf("write snapshot metadata: %w", err)
	}
	return nil
}

// Load restores the index from a snapshot. A missing snapshot is not an
// error; a corrupt one resets to empty with a warning so the index can
// be rebuilt from the catalog.
func (s *VectorIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot metadata: %w", err)
	}
	defer func() { _ = metaFile.Close() }()

	var meta vectorSnapshotMeta
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		s.logger.Warn("vector snapshot metadata corrupt, starting empty",
			slog.String("path", path), slog.String("error", err.Error()))
		s.reset()
		return nil
	}

	graphFile, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open graph snapshot: %w", err)
	}
	defer func() { _ = graphFile.Close() }()

	// Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(graphFile)); err != nil {
		s.logger.Warn("vector snapshot corrupt, starting empty",
			slog.String("path", path), slog.String("error", err.Error()))
		s.reset()
		return nil
	}

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.config = meta.Config.WithDefaults()
	s.meta = meta.Meta
	s.pathIDs = meta.PathIDs
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	if s.meta == nil {
		s.meta = make(map[string]ChunkMeta)
	}
	if s.pathIDs == nil {
		s.pathIDs = make(map[string][]string)
	}
	return nil
}

// Close releases the graph.
func (s *VectorIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

func (s *VectorIndex) reset() {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25

	s.graph = graph
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.meta = make(map[string]ChunkMeta)
	s.pathIDs = make(map[string][]string)
	s.nextKey = 0
}

func (s *VectorIndex) removePathID(path, id string) {
	ids := s.pathIDs[path]
	for i, existing := range ids {
		if existing == id {
			s.pathIDs[path] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
