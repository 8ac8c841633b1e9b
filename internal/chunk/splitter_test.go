package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyInput(t *testing.T) {
	s := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\t  "))
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	chunks := s.Split("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitRespectsWindow(t *testing.T) {
	s := NewSplitter(100, 20)

	// Given paragraphs that cannot fit one window
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("some sentence about indexing files. ")
	}

	chunks := s.Split(b.String())
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 100, "chunk %d over window", i)
		assert.NotEmpty(t, c)
	}
}

func TestSplitDeterministic(t *testing.T) {
	s := NewSplitter(120, 30)
	text := strings.Repeat("alpha beta gamma delta epsilon. ", 40)

	first := s.Split(text)
	second := s.Split(text)
	assert.Equal(t, first, second)
}

func TestSplitOverlapSharedBetweenChunks(t *testing.T) {
	s := NewSplitter(100, 20)
	text := strings.Repeat("word ", 200)

	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	// Consecutive chunks share material: the head of each chunk appears
	// near the tail of its predecessor.
	for i := 1; i < len(chunks); i++ {
		head := chunks[i]
		if len(head) > 10 {
			head = head[:10]
		}
		assert.Contains(t, chunks[i-1], strings.TrimSpace(head),
			"chunk %d should overlap with predecessor", i)
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s := NewSplitter(60, 0)
	text := "first paragraph text here\n\nsecond paragraph text here\n\nthird paragraph text here"

	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasPrefix(chunks[0], "first paragraph"))
}

func TestSplitUnsplittableRun(t *testing.T) {
	s := NewSplitter(50, 10)
	// No separators at all: hard character split.
	text := strings.Repeat("x", 175)

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 50)
	}
	// All content survives in order.
	assert.True(t, strings.HasPrefix(chunks[0], "xxx"))
}

func TestNewSplitterClampsBadGeometry(t *testing.T) {
	s := NewSplitter(0, -5)
	assert.Equal(t, DefaultChunkSize, s.chunkSize)
	assert.Equal(t, DefaultChunkOverlap, s.overlap)

	s = NewSplitter(60, 90)
	assert.Less(t, s.overlap, s.chunkSize)
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "/docs/a.md:chunk:0", ID("/docs/a.md", 0))
	assert.Equal(t, "/docs/a.md:chunk:7", ID("/docs/a.md", 7))
}
