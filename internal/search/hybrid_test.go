package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filescout/filescout/internal/embed"
	"github.com/filescout/filescout/internal/store"
)

func TestStripStopWords(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"what is the merge sort file about", "merge sort file"},
		{"find me the parser", "parser"},
		{"merge sort", "merge sort"},
		{"the a an", "the a an"}, // all stop words: keep original
		{"How does the chunker work", "chunker work"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripStopWords(tt.in), tt.in)
	}
}

func TestFuseWeightedMax(t *testing.T) {
	// Semantic branch dominates when weighted higher.
	c := &candidate{semantic: 0.8, keyword: 0.9, hasSem: true, hasKw: false}
	assert.InDelta(t, 0.65*0.8, fuse(c, nil), 1e-9)

	// Keyword branch wins when semantic is weak.
	c = &candidate{semantic: 0.1, keyword: 1.0, hasSem: true, hasKw: false}
	assert.InDelta(t, 0.35*1.0, fuse(c, nil), 1e-9)
}

func TestFuseConvergenceBonus(t *testing.T) {
	c := &candidate{semantic: 0.8, keyword: 0.5, hasSem: true, hasKw: true, inBoth: true}
	assert.InDelta(t, 0.65*0.8+0.1, fuse(c, nil), 1e-9)
}

func TestFuseTermBoost(t *testing.T) {
	c := &candidate{
		path:     "/docs/parser_notes.md",
		semantic: 0.5,
		hasSem:   true,
		meta:     store.ChunkMeta{Path: "/docs/parser_notes.md"},
	}
	withBoost := fuse(c, []string{"parser"})
	assert.InDelta(t, 0.65*0.5+0.3, withBoost, 1e-9)

	noBoost := fuse(c, []string{"chunker"})
	assert.InDelta(t, 0.65*0.5, noBoost, 1e-9)
}

func TestFuseSummaryBoostAndClamp(t *testing.T) {
	c := &candidate{
		path:     "/x/file1.txt",
		semantic: 1.0,
		keyword:  1.0,
		hasSem:   true,
		hasKw:    true,
		inBoth:   true,
		meta:     store.ChunkMeta{Path: "/x/file1.txt", Summary: "Notes on the tokenizer internals."},
	}
	// 0.65 + 0.1 + 0.3 = 1.05, clamped.
	assert.Equal(t, 1.0, fuse(c, []string{"tokenizer"}))
}

func TestMatchesTerm(t *testing.T) {
	assert.True(t, matchesTerm("/a/ParserMain.go", "", []string{"parser"}))
	assert.True(t, matchesTerm("/a/b.txt", "summary about chunking", []string{"chunking"}))
	assert.False(t, matchesTerm("/a/b.txt", "", []string{"chunking"}))
}

func newTestHybrid(t *testing.T) (*Hybrid, *store.VectorIndex, *store.KeywordIndex, embed.Embedder) {
	t.Helper()
	embedder := embed.NewStaticEmbedder()
	vectors := store.NewVectorIndex(store.VectorConfig{Dimensions: embed.StaticDimensions}, nil)
	keywords, err := store.NewKeywordIndex(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = vectors.Close()
		_ = keywords.Close()
		_ = embedder.Close()
	})
	return NewHybrid(embedder, vectors, keywords, nil), vectors, keywords, embedder
}

func indexDoc(t *testing.T, vectors *store.VectorIndex, keywords *store.KeywordIndex, e embed.Embedder, id, path, text, summary string) {
	t.Helper()
	vec, err := e.Embed(context.Background(), text)
	require.NoError(t, err)
	meta := store.ChunkMeta{Path: path, Text: text, Summary: summary}
	require.NoError(t, vectors.Add(id, vec, meta))
	require.NoError(t, keywords.Index(id, text, meta))
}

func TestHybridSearchRanksRelevantFirst(t *testing.T) {
	h, vectors, keywords, e := newTestHybrid(t)

	indexDoc(t, vectors, keywords, e, "a:chunk:0", "/src/mergesort.cpp",
		"template mergesort vector recursion divide and conquer sorting", "Merge sort implementation.")
	indexDoc(t, vectors, keywords, e, "b:chunk:0", "/notes/groceries.txt",
		"bananas apples oat milk coffee beans", "Weekly grocery list.")

	results, err := h.Search(context.Background(), "merge sort algorithm", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "/src/mergesort.cpp", results[0].Path)
	assert.Equal(t, "Merge sort implementation.", results[0].Summary)
	assert.Greater(t, results[0].Score, 0.0)
	assert.LessOrEqual(t, results[0].Score, 1.0)
}

func TestHybridSearchPendingSummaryPlaceholder(t *testing.T) {
	h, vectors, keywords, e := newTestHybrid(t)

	indexDoc(t, vectors, keywords, e, "a:chunk:0", "/src/new.go",
		"freshly indexed content awaiting background summary", "")

	results, err := h.Search(context.Background(), "freshly indexed content", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, PendingSummaryText, results[0].Summary)
}

func TestHybridSearchOneResultPerFile(t *testing.T) {
	h, vectors, keywords, e := newTestHybrid(t)

	indexDoc(t, vectors, keywords, e, "a:chunk:0", "/doc.md",
		"chunk zero about retrieval pipelines", "")
	indexDoc(t, vectors, keywords, e, "a:chunk:1", "/doc.md",
		"chunk one more retrieval pipeline details", "")

	results, err := h.Search(context.Background(), "retrieval pipelines", 5)
	require.NoError(t, err)

	count := 0
	for _, r := range results {
		if r.Path == "/doc.md" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestHybridSearchEmptyQuery(t *testing.T) {
	h, _, _, _ := newTestHybrid(t)
	results, err := h.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHybridSearchLimit(t *testing.T) {
	h, vectors, keywords, e := newTestHybrid(t)

	for i := 0; i < 8; i++ {
		path := "/f" + string(rune('a'+i)) + ".txt"
		indexDoc(t, vectors, keywords, e, path+":chunk:0", path,
			"shared searchable content block number "+string(rune('a'+i)), "")
	}

	results, err := h.Search(context.Background(), "shared searchable content", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}
