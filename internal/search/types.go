// Package search runs hybrid retrieval: a semantic branch over the
// vector index and a keyword branch over the bleve index, fused per
// source file with weighted-max scoring.
package search

// Result is one fused search hit, one per source file. Status is the
// file's processing status, resolved from the catalog by the engine.
type Result struct {
	Path    string  `json:"path"`
	Content string  `json:"content"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
	Status  string  `json:"processing_status,omitempty"`
}

// Fusion weights. The final score for a file is
// max(SemanticWeight*semantic, KeywordWeight*keyword), plus
// ConvergenceBonus when both branches agree and TermBoost when a query
// term matches the file name or summary, clamped to 1.0.
const (
	SemanticWeight   = 0.65
	KeywordWeight    = 0.35
	ConvergenceBonus = 0.1
	TermBoost        = 0.3
)

// PendingSummaryText is shown for files whose summary has not been
// generated yet.
const PendingSummaryText = "[Summary pending]"

// DefaultLimit is the result count when the caller does not specify one.
const DefaultLimit = 5
