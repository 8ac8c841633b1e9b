package catalog

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scouterr "github.com/filescout/filescout/internal/errors"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestUpsertAndGetRoundTrip(t *testing.T) {
	c := openTestCatalog(t)

	content := "package main\n\nfunc main() {}\n"
	hash := HashContent([]byte(content))
	require.NoError(t, c.Upsert("/src/main.go", hash, content, StatusPendingEmbedding))

	e, err := c.Get("/src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "/src/main.go", e.Path)
	assert.Equal(t, hash, e.Hash)
	assert.Equal(t, content, e.Content)
	assert.Equal(t, StatusPendingEmbedding, e.Status)
	assert.Empty(t, e.Summary)
	assert.False(t, e.LastIndexed.IsZero())
}

func TestGetMissing(t *testing.T) {
	c := openTestCatalog(t)
	_, err := c.Get("/nope")
	assert.True(t, scouterr.IsKind(err, scouterr.KindNotFound))
}

func TestUpsertConflictResetsSummary(t *testing.T) {
	c := openTestCatalog(t)

	require.NoError(t, c.Upsert("/a.md", "h1", "v1", StatusPendingSummary))
	require.NoError(t, c.SetSummary("/a.md", "old summary"))

	// Re-index with new content.
	require.NoError(t, c.Upsert("/a.md", "h2", "v2", StatusPendingEmbedding))

	e, err := c.Get("/a.md")
	require.NoError(t, err)
	assert.Equal(t, "h2", e.Hash)
	assert.Equal(t, "v2", e.Content)
	assert.Empty(t, e.Summary, "summary must be invalidated on content change")
	assert.Equal(t, StatusPendingEmbedding, e.Status)
}

func TestNeedsReindex(t *testing.T) {
	c := openTestCatalog(t)

	need, err := c.NeedsReindex("/new.txt", "h1")
	require.NoError(t, err)
	assert.True(t, need, "unknown path needs indexing")

	require.NoError(t, c.Upsert("/new.txt", "h1", "x", StatusCompleted))

	need, err = c.NeedsReindex("/new.txt", "h1")
	require.NoError(t, err)
	assert.False(t, need, "same hash is a no-op")

	need, err = c.NeedsReindex("/new.txt", "h2")
	require.NoError(t, err)
	assert.True(t, need, "changed hash needs reindex")
}

func TestGetByHashPrefersCompleted(t *testing.T) {
	c := openTestCatalog(t)

	require.NoError(t, c.Upsert("/copy1.txt", "same", "body", StatusPendingSummary))
	require.NoError(t, c.Upsert("/copy2.txt", "same", "body", StatusPendingSummary))
	require.NoError(t, c.SetSummary("/copy2.txt", "a summary"))

	e, err := c.GetByHash("same")
	require.NoError(t, err)
	assert.Equal(t, "/copy2.txt", e.Path)
	assert.Equal(t, StatusCompleted, e.Status)
	assert.Equal(t, "a summary", e.Summary)
}

func TestSetSummaryAdvancesStatus(t *testing.T) {
	c := openTestCatalog(t)

	require.NoError(t, c.Upsert("/s.md", "h", "text", StatusPendingSummary))
	require.NoError(t, c.SetSummary("/s.md", "two sentences"))

	e, err := c.Get("/s.md")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, e.Status)

	// Setting a summary on a completed row leaves status alone.
	require.NoError(t, c.SetSummary("/s.md", "revised"))
	e, err = c.Get("/s.md")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, e.Status)
	assert.Equal(t, "revised", e.Summary)
}

func TestSetSummaryMissingPath(t *testing.T) {
	c := openTestCatalog(t)
	err := c.SetSummary("/ghost", "s")
	assert.True(t, scouterr.IsKind(err, scouterr.KindNotFound))
}

func TestDeleteIsIdempotent(t *testing.T) {
	c := openTestCatalog(t)

	require.NoError(t, c.Upsert("/d.txt", "h", "x", StatusCompleted))
	require.NoError(t, c.Delete("/d.txt"))
	require.NoError(t, c.Delete("/d.txt"))

	_, err := c.Get("/d.txt")
	assert.True(t, scouterr.IsKind(err, scouterr.KindNotFound))
}

func TestPendingQueues(t *testing.T) {
	c := openTestCatalog(t)

	require.NoError(t, c.Upsert("/e1.txt", "h1", "x", StatusPendingEmbedding))
	require.NoError(t, c.Upsert("/e2.txt", "h2", "x", StatusPendingEmbedding))
	require.NoError(t, c.Upsert("/s1.txt", "h3", "x", StatusPendingSummary))
	require.NoError(t, c.Upsert("/done.txt", "h4", "x", StatusCompleted))

	embedding, err := c.PendingEmbedding()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/e1.txt", "/e2.txt"}, embedding)

	summary, err := c.PendingSummary()
	require.NoError(t, err)
	assert.Equal(t, []string{"/s1.txt"}, summary)
}

func TestStats(t *testing.T) {
	c := openTestCatalog(t)

	require.NoError(t, c.Upsert("/1", "a", "x", StatusPendingEmbedding))
	require.NoError(t, c.Upsert("/2", "b", "x", StatusPendingSummary))
	require.NoError(t, c.Upsert("/3", "c", "x", StatusCompleted))

	s, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalFiles)
	assert.Equal(t, 1, s.PendingEmbedding)
	assert.Equal(t, 1, s.PendingSummary)
	assert.Equal(t, 1, s.Completed)
}

func TestLargeContentCompression(t *testing.T) {
	c := openTestCatalog(t)

	content := strings.Repeat("the quick brown fox jumps over the lazy dog\n", 5000)
	require.NoError(t, c.Upsert("/big.txt", HashContent([]byte(content)), content, StatusCompleted))

	e, err := c.Get("/big.txt")
	require.NoError(t, err)
	assert.Equal(t, content, e.Content)
}

func TestHashContentStable(t *testing.T) {
	h1 := HashContent([]byte("abc"))
	h2 := HashContent([]byte("abc"))
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, HashContent([]byte("abd")))
}
