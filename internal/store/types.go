// Package store holds the two retrieval indexes: an HNSW vector index
// for semantic search and an in-memory keyword index scored by bleve.
// Both persist as atomic snapshots under the data directory.
package store

import "fmt"

// ChunkMeta describes one indexed chunk. Both indexes carry the same
// metadata so fusion can resolve hits back to source files.
type ChunkMeta struct {
	Path    string // source file path
	Ordinal int    // chunk position within the file
	Text    string // chunk text
	Summary string // file-level summary, empty until generated
}

// VectorHit is one semantic search result.
type VectorHit struct {
	ID    string
	Meta  ChunkMeta
	Score float32 // similarity in [0,1]
}

// KeywordHit is one keyword search result.
type KeywordHit struct {
	ID    string
	Meta  ChunkMeta
	Score float64 // raw bleve score, caller normalizes per query
}

// VectorConfig holds HNSW parameters.
type VectorConfig struct {
	Dimensions int
	M          int
	EfSearch   int
}

// WithDefaults fills zero fields with recommended values.
func (c VectorConfig) WithDefaults() VectorConfig {
	if c.M == 0 {
		c.M = 16
	}
	if c.EfSearch == 0 {
		c.EfSearch = 64
	}
	return c
}

// ErrDimensionMismatch reports a vector whose length does not match the
// index configuration.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
