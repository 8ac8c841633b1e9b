package search

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/filescout/filescout/internal/embed"
	"github.com/filescout/filescout/internal/store"
)

// Hybrid fuses semantic and keyword retrieval over the two indexes.
type Hybrid struct {
	embedder embed.Embedder
	vectors  *store.VectorIndex
	keywords *store.KeywordIndex
	logger   *slog.Logger
}

// NewHybrid creates a hybrid searcher.
func NewHybrid(embedder embed.Embedder, vectors *store.VectorIndex, keywords *store.KeywordIndex, logger *slog.Logger) *Hybrid {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hybrid{
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		logger:   logger,
	}
}

// candidate accumulates per-file branch scores during fusion.
type candidate struct {
	path     string
	semantic float64 // best semantic similarity in [0,1]
	keyword  float64 // best normalized keyword score in [0,1]
	meta     store.ChunkMeta
	inBoth   bool
	hasSem   bool
	hasKw    bool
}

// Search runs both branches and fuses results per source file. A failed
// semantic branch (embedder down) degrades to keyword-only retrieval.
func (h *Hybrid) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	fetch := 2 * limit

	byPath := make(map[string]*candidate)

	// Semantic branch: full query, cosine similarity.
	queryVec, err := h.embedder.Embed(ctx, query)
	if err != nil {
		h.logger.Warn("semantic branch unavailable, keyword only",
			slog.String("error", err.Error()))
	} else {
		hits, err := h.vectors.Search(queryVec, fetch)
		if err != nil {
			h.logger.Warn("vector search failed", slog.String("error", err.Error()))
		} else {
			for _, hit := range hits {
				c := byPath[hit.Meta.Path]
				if c == nil {
					c = &candidate{path: hit.Meta.Path, meta: hit.Meta}
					byPath[hit.Meta.Path] = c
				}
				score := float64(hit.Score)
				if score > c.semantic {
					c.semantic = score
					c.meta = hit.Meta
				}
				c.hasSem = true
			}
		}
	}

	// Keyword branch: stop-word-stripped query, scores normalized by
	// the per-query maximum.
	keywordQuery := stripStopWords(query)
	kwHits, err := h.keywords.Search(keywordQuery, fetch)
	if err != nil {
		h.logger.Warn("keyword search failed", slog.String("error", err.Error()))
	} else if len(kwHits) > 0 {
		maxScore := kwHits[0].Score
		for _, hit := range kwHits {
			if hit.Score > maxScore {
				maxScore = hit.Score
			}
		}
		for _, hit := range kwHits {
			normalized := 0.0
			if maxScore > 0 {
				normalized = hit.Score / maxScore
			}
			c := byPath[hit.Meta.Path]
			if c == nil {
				c = &candidate{path: hit.Meta.Path, meta: hit.Meta}
				byPath[hit.Meta.Path] = c
			}
			if normalized > c.keyword {
				c.keyword = normalized
				if !c.hasSem {
					c.meta = hit.Meta
				}
			}
			c.hasKw = true
		}
	}

	terms := queryTerms(query)
	results := make([]Result, 0, len(byPath))
	seen := make(map[string]bool)

	for _, c := range byPath {
		c.inBoth = c.hasSem && c.hasKw
		score := fuse(c, terms)

		summary := c.meta.Summary
		if summary == "" {
			summary = PendingSummaryText
		}

		// Dedup on (content head, path): identical chunks of the same
		// file collapse to one result.
		key := dedupKey(c.meta.Text, c.path)
		if seen[key] {
			continue
		}
		seen[key] = true

		results = append(results, Result{
			Path:    c.path,
			Content: c.meta.Text,
			Summary: summary,
			Score:   score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Path < results[j].Path
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// fuse computes the final score for one file: weighted max of the two
// branches, a convergence bonus when both matched, and a term boost when
// a query term appears in the file name or summary. Clamped to 1.0.
func fuse(c *candidate, terms []string) float64 {
	score := SemanticWeight * c.semantic
	if kw := KeywordWeight * c.keyword; kw > score {
		score = kw
	}
	if c.inBoth {
		score += ConvergenceBonus
	}
	if matchesTerm(c.path, c.meta.Summary, terms) {
		score += TermBoost
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// matchesTerm reports whether any query term appears in the base name of
// the path or in the summary.
func matchesTerm(path, summary string, terms []string) bool {
	base := strings.ToLower(filepath.Base(path))
	lowerSummary := strings.ToLower(summary)
	for _, term := range terms {
		if strings.Contains(base, term) || (lowerSummary != "" && strings.Contains(lowerSummary, term)) {
			return true
		}
	}
	return false
}

func dedupKey(text, path string) string {
	head := text
	if len(head) > 100 {
		head = head[:100]
	}
	return head + "\x00" + path
}
