package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	v1, err := e.Embed(context.Background(), "hybrid search engine")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "hybrid search engine")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, StaticDimensions)
}

func TestStaticEmbedNormalized(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "some meaningful content")
	require.NoError(t, err)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
}

func TestStaticEmbedEmptyInput(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, v, StaticDimensions)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestStaticSimilarTextsCloserThanUnrelated(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	ctx := context.Background()
	a, err := e.Embed(ctx, "merge sort algorithm in cpp")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "merge sort implementation cpp")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "banana bread recipe with walnuts")
	require.NoError(t, err)

	assert.Greater(t, dot(a, b), dot(a, c))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"simple", []string{"simple"}},
		{"camelCase", []string{"camel", "Case"}},
		{"HTTPServer", []string{"HTTP", "Server"}},
		{"parseJSONBody", []string{"parse", "JSON", "Body"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitCamelCase(tt.in), tt.in)
	}
}

func TestTokenizeSplitsSnakeCase(t *testing.T) {
	tokens := tokenize("background_worker handleEvent")
	assert.Contains(t, tokens, "background")
	assert.Contains(t, tokens, "worker")
	assert.Contains(t, tokens, "handle")
	assert.Contains(t, tokens, "event")
}

func TestFilterStopWords(t *testing.T) {
	filtered := filterStopWords([]string{"func", "search", "return", "index"})
	assert.Equal(t, []string{"search", "index"}, filtered)
}

func TestStaticEmbedAfterClose(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
